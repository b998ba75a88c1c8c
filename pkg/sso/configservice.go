package sso

import (
	"context"
	"errors"
	"strings"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

// ConfigRepository is implemented by ConfigStore
type ConfigRepository interface {
	ConfigReader
	Upsert(ctx context.Context, cfg *SAMLConfiguration) error
}

// ConfigService manages the SAML configurations of the ambient tenant
type ConfigService struct {
	store ConfigRepository
}

// NewConfigService creates a configuration service
func NewConfigService(store ConfigRepository) *ConfigService {
	return &ConfigService{store: store}
}

// Setup creates a configuration, or replaces one when req carries its id and
// current version.
func (s *ConfigService) Setup(ctx context.Context, req SetupRequest) (*SAMLConfiguration, error) {
	tenantID := contextkeys.TenantID(ctx)
	if tenantID == "" {
		return nil, apperr.Invalid(domain, "tenant is required")
	}

	req.EntryPoint = strings.TrimSpace(req.EntryPoint)
	if err := ValidateRedirectURL(req.EntryPoint); err != nil {
		return nil, apperr.Invalid(domain, "entryPoint must be an absolute http(s) URL")
	}
	if _, err := ParseCertificate(req.Certificate); err != nil {
		return nil, apperr.Invalid(domain, "certificate is not a valid X.509 certificate")
	}

	cfg := &SAMLConfiguration{
		TenantID:      tenantID,
		EntryPoint:    req.EntryPoint,
		Certificate:   strings.TrimSpace(req.Certificate),
		Enabled:       req.Enabled,
		FieldsMapping: req.FieldsMapping,
	}

	if req.ID != "" {
		// Looking up first scopes the id to the tenant.
		if _, err := s.store.Get(ctx, tenantID, req.ID); err != nil {
			if errors.Is(err, postgres.ErrNotFound) {
				return nil, apperr.NotFound(domain, "SAMLConfiguration", req.ID)
			}
			return nil, err
		}
		cfg.ID = req.ID
		cfg.Version = req.Version
	}

	switch err := s.store.Upsert(ctx, cfg); {
	case err == nil:
	case errors.Is(err, postgres.ErrVersionMismatch):
		return nil, apperr.VersionConflict(domain, "SAMLConfiguration", req.ID, req.Version)
	case errors.Is(err, postgres.ErrNotFound):
		return nil, apperr.NotFound(domain, "SAMLConfiguration", req.ID)
	default:
		return nil, err
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"saml_configuration_id": cfg.ID,
		"version":               cfg.Version,
		"enabled":               cfg.Enabled,
	}).Info("saml configuration stored")
	return cfg, nil
}
