package sso

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

// ConfigStore handles SAML configuration storage
type ConfigStore struct {
	db *sql.DB
}

// NewConfigStore creates a new configuration store
func NewConfigStore(db *sql.DB) *ConfigStore {
	return &ConfigStore{db: db}
}

// Get returns the live configuration id of tenantID, or postgres.ErrNotFound
func (s *ConfigStore) Get(ctx context.Context, tenantID, id string) (*SAMLConfiguration, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, postgres.ErrNotFound
	}
	if _, err := uuid.Parse(tenantID); err != nil {
		return nil, postgres.ErrNotFound
	}

	var (
		cfg         SAMLConfiguration
		mappingJSON []byte
	)
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, tenant_id, entry_point, certificate, enabled, fields_mapping, version, created_at, updated_at
		FROM saml_configurations
		WHERE id = $1 AND tenant_id = $2 AND archived_at IS NULL
	`, id, tenantID).Scan(
		&cfg.ID, &cfg.TenantID, &cfg.EntryPoint, &cfg.Certificate, &cfg.Enabled,
		&mappingJSON, &cfg.Version, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, postgres.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get saml configuration: %w", err)
	}

	if len(mappingJSON) > 0 {
		if err := json.Unmarshal(mappingJSON, &cfg.FieldsMapping); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fields mapping: %w", err)
		}
	}
	return &cfg, nil
}

// Upsert inserts cfg when it has no id and otherwise replaces it when the stored
// version equals cfg.Version. A replaced configuration gets the next version.
func (s *ConfigStore) Upsert(ctx context.Context, cfg *SAMLConfiguration) error {
	mappingJSON, err := json.Marshal(cfg.FieldsMapping)
	if err != nil {
		return fmt.Errorf("failed to marshal fields mapping: %w", err)
	}

	conn := postgres.Conn(ctx, s.db)
	now := time.Now().UTC()

	if cfg.ID == "" {
		id := uuid.NewString()
		_, err := conn.ExecContext(ctx, `
			INSERT INTO saml_configurations (id, tenant_id, entry_point, certificate, enabled, fields_mapping, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
		`, id, cfg.TenantID, cfg.EntryPoint, cfg.Certificate, cfg.Enabled, mappingJSON, now)
		if err != nil {
			return fmt.Errorf("failed to create saml configuration: %w", err)
		}
		cfg.ID = id
		cfg.Version = 1
		cfg.CreatedAt = now
		cfg.UpdatedAt = now
		return nil
	}

	if _, err := uuid.Parse(cfg.ID); err != nil {
		return postgres.ErrNotFound
	}
	res, err := conn.ExecContext(ctx, `
		UPDATE saml_configurations
		SET entry_point = $4, certificate = $5, enabled = $6, fields_mapping = $7,
			version = version + 1, updated_at = $8
		WHERE id = $1 AND version = $2 AND tenant_id = $3 AND archived_at IS NULL
	`, cfg.ID, cfg.Version, cfg.TenantID, cfg.EntryPoint, cfg.Certificate, cfg.Enabled, mappingJSON, now)
	if err != nil {
		return fmt.Errorf("failed to update saml configuration: %w", err)
	}
	if err := postgres.CheckVersionedWrite(ctx, conn, res, "saml_configurations", cfg.ID); err != nil {
		return err
	}
	cfg.Version++
	cfg.UpdatedAt = now
	return nil
}
