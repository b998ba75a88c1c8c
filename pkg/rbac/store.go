package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

// RoleStore handles role persistence. Every statement joins the transaction carried
// by the context when there is one.
type RoleStore struct {
	db *sql.DB
}

// NewRoleStore creates a new role store
func NewRoleStore(db *sql.DB) *RoleStore {
	return &RoleStore{db: db}
}

const roleColumns = `id, name, description, role_type, tenant_id, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRole(row rowScanner) (*Role, error) {
	var (
		role     Role
		roleType sql.NullString
		tenantID sql.NullString
	)
	if err := row.Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&roleType,
		&tenantID,
		&role.Version,
		&role.CreatedAt,
		&role.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if roleType.Valid {
		rt := RoleType(roleType.String)
		role.RoleType = &rt
	}
	if tenantID.Valid {
		role.TenantID = &tenantID.String
	}
	return &role, nil
}

// FindDefaultByType returns the live global role of the given type, or
// postgres.ErrNotFound.
func (s *RoleStore) FindDefaultByType(ctx context.Context, roleType RoleType) (*Role, error) {
	query := `
		SELECT ` + roleColumns + `
		FROM user_roles
		WHERE role_type = $1 AND tenant_id IS NULL AND archived_at IS NULL
		LIMIT 1
	`

	role, err := scanRole(postgres.Conn(ctx, s.db).QueryRowContext(ctx, query, string(roleType)))
	if err == sql.ErrNoRows {
		return nil, postgres.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default role: %w", err)
	}
	return role, nil
}

// FindOneForTenant returns a live role owned by tenantID or global, with its
// permissions, or postgres.ErrNotFound.
func (s *RoleStore) FindOneForTenant(ctx context.Context, tenantID, id string) (*Role, error) {
	query := `
		SELECT ` + roleColumns + `
		FROM user_roles
		WHERE id = $1 AND archived_at IS NULL AND (tenant_id = $2 OR tenant_id IS NULL)
	`

	role, err := scanRole(postgres.Conn(ctx, s.db).QueryRowContext(ctx, query, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, postgres.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	perms, err := s.permissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return role, nil
}

// ListForTenant lists the live roles visible to tenantID
func (s *RoleStore) ListForTenant(ctx context.Context, tenantID string, page Page) ([]Role, error) {
	page = page.Normalize()
	query := `
		SELECT ` + roleColumns + `
		FROM user_roles
		WHERE archived_at IS NULL AND (tenant_id = $1 OR tenant_id IS NULL)
		ORDER BY name, id
		LIMIT $2 OFFSET $3
	`

	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, query, tenantID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := make([]Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// Create inserts role and assigns its id, version and timestamps
func (s *RoleStore) Create(ctx context.Context, role *Role) error {
	query := `
		INSERT INTO user_roles (id, name, description, role_type, tenant_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $6)
	`

	var roleType interface{}
	if role.RoleType != nil {
		roleType = string(*role.RoleType)
	}
	var tenantID interface{}
	if role.TenantID != nil {
		tenantID = *role.TenantID
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	if _, err := postgres.Conn(ctx, s.db).ExecContext(ctx, query,
		id, role.Name, role.Description, roleType, tenantID, now,
	); err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.ID = id
	role.Version = 1
	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// Update rewrites name and description when the stored version equals version.
// It returns postgres.ErrVersionMismatch or postgres.ErrNotFound otherwise.
func (s *RoleStore) Update(ctx context.Context, role *Role, version int) error {
	query := `
		UPDATE user_roles
		SET name = $3, description = $4, version = version + 1, updated_at = $5
		WHERE id = $1 AND version = $2 AND archived_at IS NULL
	`

	conn := postgres.Conn(ctx, s.db)
	now := time.Now().UTC()
	res, err := conn.ExecContext(ctx, query, role.ID, version, role.Name, role.Description, now)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if err := postgres.CheckVersionedWrite(ctx, conn, res, "user_roles", role.ID); err != nil {
		return err
	}

	role.Version = version + 1
	role.UpdatedAt = now
	return nil
}

// Archive soft-deletes the role when the stored version equals version
func (s *RoleStore) Archive(ctx context.Context, id string, version int) error {
	return postgres.ArchiveVersioned(ctx, postgres.Conn(ctx, s.db), "user_roles", id, version)
}

// SetPermissions replaces the permissions bound to roleID
func (s *RoleStore) SetPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	conn := postgres.Conn(ctx, s.db)
	if _, err := conn.ExecContext(ctx, `DELETE FROM user_role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}
	return s.AddPermissions(ctx, roleID, permissionIDs)
}

// AddPermissions binds permissionIDs to roleID, ignoring existing bindings
func (s *RoleStore) AddPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	conn := postgres.Conn(ctx, s.db)
	for _, pid := range permissionIDs {
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO user_role_permissions (role_id, permission_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, roleID, pid); err != nil {
			return fmt.Errorf("failed to bind permission %s: %w", pid, err)
		}
	}
	return nil
}

func (s *RoleStore) permissions(ctx context.Context, roleID string) ([]Permission, error) {
	query := `
		SELECT p.id, p.name, p.description, p.action, p.permission_category_id, p.version
		FROM user_role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1 AND p.archived_at IS NULL
		ORDER BY p.action
	`

	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()

	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]Permission, error) {
	perms := make([]Permission, 0)
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Action, &p.CategoryID, &p.Version); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
