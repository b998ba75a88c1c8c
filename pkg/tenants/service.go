package tenants

import (
	"context"
	"strings"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// Repository is the tenant persistence surface
type Repository interface {
	CountByFriendlyIdentifier(ctx context.Context, identifier string) (int, error)
	Create(ctx context.Context, tenant *Tenant) error
}

// Service implements tenant operations
type Service struct {
	tenants Repository
}

// NewService creates a tenant service
func NewService(tenants Repository) *Service {
	return &Service{tenants: tenants}
}

// SetupTenant creates an ACTIVE tenant owned by ownerID. The identifier check is a
// read before the insert; the unique index decides when two signups race.
func (s *Service) SetupTenant(ctx context.Context, name, identifier, ownerID string) (*Tenant, error) {
	identifier = strings.TrimSpace(identifier)

	n, err := s.tenants.CountByFriendlyIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		observability.FromContext(ctx).WithField("identifier", identifier).Warn("tenant identifier already taken")
		return nil, apperr.Conflict(domain, "Tenant", "tenantFriendlyIdentifier", identifier)
	}

	tenant := &Tenant{
		Name:               strings.TrimSpace(name),
		FriendlyIdentifier: identifier,
		Status:             StatusActive,
		OwnerID:            ownerID,
	}
	if err := s.tenants.Create(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}
