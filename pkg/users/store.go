package users

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
)

// emailConstraint is the unique index over lower(email)
const emailConstraint = "user_profiles_email_key"

const domain = "users"

// AccountLister loads the tenant accounts of a user
type AccountLister interface {
	ListForUser(ctx context.Context, userID string) ([]tenants.Account, error)
}

// Store handles user profile persistence
type Store struct {
	db       *sql.DB
	accounts AccountLister
}

// NewStore creates a new user store
func NewStore(db *sql.DB, accounts AccountLister) *Store {
	return &Store{db: db, accounts: accounts}
}

const profileColumns = `id, email, password, first_name, last_name, status, version, created_at, updated_at`

func scanProfile(row *sql.Row) (*Profile, error) {
	var (
		p        Profile
		password sql.NullString
	)
	if err := row.Scan(
		&p.ID, &p.Email, &password, &p.FirstName, &p.LastName, &p.Status, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if password.Valid {
		p.PasswordHash = &password.String
	}
	return &p, nil
}

// FindByEmail returns the live profile with the normalized email, or
// postgres.ErrNotFound.
func (s *Store) FindByEmail(ctx context.Context, email string) (*Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM user_profiles
		WHERE lower(email) = $1 AND archived_at IS NULL
	`

	p, err := scanProfile(postgres.Conn(ctx, s.db).QueryRowContext(ctx, query, NormalizeEmail(email)))
	if err == sql.ErrNoRows {
		return nil, postgres.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return p, nil
}

// FindByID returns the live profile with id, or postgres.ErrNotFound
func (s *Store) FindByID(ctx context.Context, id string) (*Profile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, postgres.ErrNotFound
	}

	query := `
		SELECT ` + profileColumns + `
		FROM user_profiles
		WHERE id = $1 AND archived_at IS NULL
	`

	p, err := scanProfile(postgres.Conn(ctx, s.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, postgres.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return p, nil
}

// Create inserts profile with a normalized email. A taken email is a Conflict.
func (s *Store) Create(ctx context.Context, profile *Profile) error {
	query := `
		INSERT INTO user_profiles (id, email, password, first_name, last_name, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
	`

	var password interface{}
	if profile.PasswordHash != nil {
		password = *profile.PasswordHash
	}

	id := uuid.NewString()
	email := NormalizeEmail(profile.Email)
	now := time.Now().UTC()
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, query,
		id, email, password, profile.FirstName, profile.LastName, string(profile.Status), now,
	)
	if postgres.ConstraintName(err) == emailConstraint {
		return apperr.Conflict(domain, "User", "email", email)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	profile.ID = id
	profile.Email = email
	profile.Version = 1
	profile.CreatedAt = now
	profile.UpdatedAt = now
	return nil
}

// UpdateStatus moves the profile to status when the stored version equals version.
// It returns postgres.ErrVersionMismatch or postgres.ErrNotFound otherwise.
func (s *Store) UpdateStatus(ctx context.Context, id string, version int, status Status) error {
	query := `
		UPDATE user_profiles
		SET status = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $2 AND archived_at IS NULL
	`

	conn := postgres.Conn(ctx, s.db)
	res, err := conn.ExecContext(ctx, query, id, version, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	return postgres.CheckVersionedWrite(ctx, conn, res, "user_profiles", id)
}

// LoadAccounts populates profile.Accounts with its tenant accounts and roles
func (s *Store) LoadAccounts(ctx context.Context, profile *Profile) error {
	accounts, err := s.accounts.ListForUser(ctx, profile.ID)
	if err != nil {
		return err
	}
	profile.Accounts = accounts
	return nil
}

// ApprovalStore handles external approval persistence
type ApprovalStore struct {
	db *sql.DB
}

// NewApprovalStore creates a new approval store
func NewApprovalStore(db *sql.DB) *ApprovalStore {
	return &ApprovalStore{db: db}
}

// Create inserts approval
func (s *ApprovalStore) Create(ctx context.Context, approval *ExternalApproval) error {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO external_approvals (id, user_id, code, approval_type, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $5)
	`, id, approval.UserID, approval.Code, string(approval.ApprovalType), now)
	if err != nil {
		return fmt.Errorf("failed to create approval: %w", err)
	}

	approval.ID = id
	approval.Version = 1
	return nil
}

// FindPending returns an approval that has not been consumed, or postgres.ErrNotFound
func (s *ApprovalStore) FindPending(ctx context.Context, id string) (*ExternalApproval, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, postgres.ErrNotFound
	}

	var a ExternalApproval
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, user_id, code, approval_type, version
		FROM external_approvals
		WHERE id = $1 AND archived_at IS NULL
	`, id).Scan(&a.ID, &a.UserID, &a.Code, &a.ApprovalType, &a.Version)
	if err == sql.ErrNoRows {
		return nil, postgres.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	return &a, nil
}

// Archive consumes the approval when the stored version equals version
func (s *ApprovalStore) Archive(ctx context.Context, id string, version int) error {
	return postgres.ArchiveVersioned(ctx, postgres.Conn(ctx, s.db), "external_approvals", id, version)
}
