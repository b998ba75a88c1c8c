package tenants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

// Unique keys whose violation is reported as a Conflict
const (
	identifierConstraint = "tenants_friendly_identifier_key"
	membershipConstraint = "user_tenant_accounts_tenant_user_key"
)

const domain = "tenants"

// Store handles tenant persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new tenant store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CountByFriendlyIdentifier counts tenants, archived or not, holding identifier
func (s *Store) CountByFriendlyIdentifier(ctx context.Context, identifier string) (int, error) {
	var n int
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tenants WHERE tenant_friendly_identifier = $1`, identifier,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count tenants: %w", err)
	}
	return n, nil
}

// Create inserts tenant. A taken friendly identifier is a Conflict even when the
// caller's pre-check raced with another insert.
func (s *Store) Create(ctx context.Context, tenant *Tenant) error {
	query := `
		INSERT INTO tenants (id, tenant_name, tenant_friendly_identifier, tenant_status, owner_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $6)
	`

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, query,
		id, tenant.Name, tenant.FriendlyIdentifier, string(tenant.Status), tenant.OwnerID, now,
	)
	if postgres.ConstraintName(err) == identifierConstraint {
		return apperr.Conflict(domain, "Tenant", "tenantFriendlyIdentifier", tenant.FriendlyIdentifier)
	}
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	tenant.ID = id
	tenant.Version = 1
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	return nil
}

// AccountStore handles tenant account persistence
type AccountStore struct {
	db *sql.DB
}

// NewAccountStore creates a new account store
func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Create inserts account together with its role bindings
func (s *AccountStore) Create(ctx context.Context, account *Account) error {
	conn := postgres.Conn(ctx, s.db)

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := conn.ExecContext(ctx, `
		INSERT INTO user_tenant_accounts (id, tenant_id, user_profile_id, user_status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $5)
	`, id, account.TenantID, account.UserProfileID, string(account.Status), now)
	if postgres.ConstraintName(err) == membershipConstraint {
		return apperr.Conflict(domain, "UserTenantAccount", "tenantId", account.TenantID)
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	for _, roleID := range account.RoleIDs() {
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO user_tenant_account_roles (account_id, role_id) VALUES ($1, $2)
		`, id, roleID); err != nil {
			return fmt.Errorf("failed to bind role %s: %w", roleID, err)
		}
	}

	account.ID = id
	account.Version = 1
	return nil
}

// ListForUser returns the live accounts of userID with their live roles, oldest first
func (s *AccountStore) ListForUser(ctx context.Context, userID string) ([]Account, error) {
	query := `
		SELECT a.id, a.tenant_id, a.user_profile_id, a.user_status, a.version,
		       r.id, r.name, r.role_type, r.tenant_id, r.version
		FROM user_tenant_accounts a
		LEFT JOIN user_tenant_account_roles ar ON ar.account_id = a.id
		LEFT JOIN user_roles r ON r.id = ar.role_id AND r.archived_at IS NULL
		WHERE a.user_profile_id = $1 AND a.archived_at IS NULL
		ORDER BY a.created_at, a.id, r.name
	`

	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]Account, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			a            Account
			roleID       sql.NullString
			roleName     sql.NullString
			roleType     sql.NullString
			roleTenantID sql.NullString
			roleVersion  sql.NullInt64
		)
		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.UserProfileID, &a.Status, &a.Version,
			&roleID, &roleName, &roleType, &roleTenantID, &roleVersion,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}

		i, seen := index[a.ID]
		if !seen {
			a.Roles = []rbac.Role{}
			accounts = append(accounts, a)
			i = len(accounts) - 1
			index[a.ID] = i
		}
		if !roleID.Valid {
			continue
		}

		role := rbac.Role{ID: roleID.String, Name: roleName.String, Version: int(roleVersion.Int64)}
		if roleType.Valid {
			rt := rbac.RoleType(roleType.String)
			role.RoleType = &rt
		}
		if roleTenantID.Valid {
			tid := roleTenantID.String
			role.TenantID = &tid
		}
		accounts[i].Roles = append(accounts[i].Roles, role)
	}
	return accounts, rows.Err()
}

// IsMember reports whether userID holds a live account in tenantID
func (s *AccountStore) IsMember(ctx context.Context, tenantID, userID string) (bool, error) {
	var one int
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT 1 FROM user_tenant_accounts
		WHERE tenant_id = $1 AND user_profile_id = $2 AND archived_at IS NULL
		LIMIT 1
	`, tenantID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return true, nil
}
