package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when the addressed row does not exist or is archived
	ErrNotFound = errors.New("row not found")
	// ErrVersionMismatch is returned when a versioned write lost the race
	ErrVersionMismatch = errors.New("version mismatch")
)

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// ConstraintName returns the unique constraint err violated, or "" for any other error
func ConstraintName(err error) string {
	if !IsUniqueViolation(err) {
		return ""
	}
	var pqErr *pq.Error
	errors.As(err, &pqErr)
	return pqErr.Constraint
}

var tableName = regexp.MustCompile(`^[a-z_]+$`)

// ArchiveVersioned soft-deletes one row of table with a single conditional update:
// the row is archived and its version bumped only when the stored version equals
// version. When nothing was updated a follow-up read tells ErrNotFound apart from
// ErrVersionMismatch; that read never decides whether the write happens.
func ArchiveVersioned(ctx context.Context, q DBTX, table, id string, version int) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}

	res, err := q.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET archived_at = NOW(), version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND archived_at IS NULL
	`, table), id, version)
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", table, err)
	}

	return CheckVersionedWrite(ctx, q, res, table, id)
}

// CheckVersionedWrite inspects the result of a "WHERE id = $1 AND version = $2"
// update and classifies a zero-row outcome.
func CheckVersionedWrite(ctx context.Context, q DBTX, res sql.Result, table, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 1 {
		return nil
	}

	if !tableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}

	var current int
	err = q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT version FROM %s WHERE id = $1 AND archived_at IS NULL`, table), id,
	).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read %s version: %w", table, err)
	}
	return ErrVersionMismatch
}
