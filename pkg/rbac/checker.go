package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

// Evaluator answers permission questions for a (tenant, user) pair
type Evaluator interface {
	HasAny(ctx context.Context, tenantID, userID string, permissions []string) (bool, error)
	HasEach(ctx context.Context, tenantID, userID string, permissions []string) (bool, error)
}

// Checker evaluates permissions against the account/role/permission graph
type Checker struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// NewChecker creates a permission checker. metrics may be nil.
func NewChecker(db *sql.DB, metrics *observability.Metrics) *Checker {
	return &Checker{db: db, metrics: metrics}
}

// grantedFrom joins an account to the live permissions of its live roles. A role
// applies when it is global or belongs to the account's tenant.
const grantedFrom = `
	FROM user_tenant_accounts a
	JOIN user_tenant_account_roles ar ON ar.account_id = a.id
	JOIN user_roles r ON r.id = ar.role_id
	JOIN user_role_permissions rp ON rp.role_id = r.id
	JOIN permissions p ON p.id = rp.permission_id
	WHERE a.tenant_id = $1
	  AND a.user_profile_id = $2
	  AND a.archived_at IS NULL
	  AND r.archived_at IS NULL
	  AND p.archived_at IS NULL
	  AND (r.tenant_id IS NULL OR r.tenant_id = a.tenant_id)
	  AND p.action IN (%s)`

// HasAny reports whether the user's roles in tenantID grant at least one of permissions
func (c *Checker) HasAny(ctx context.Context, tenantID, userID string, permissions []string) (allowed bool, err error) {
	actions := normalizeActions(permissions)
	if len(actions) == 0 {
		return false, nil
	}

	ctx, span := observability.StartSpan(ctx, "rbac.HasAny",
		attribute.String("tenant.id", tenantID),
		attribute.Int("permissions.count", len(actions)),
	)
	defer func() { observability.EndSpan(span, err) }()

	query := fmt.Sprintf("SELECT 1"+grantedFrom+" LIMIT 1", placeholders(3, len(actions)))

	var one int
	err = postgres.Conn(ctx, c.db).QueryRowContext(ctx, query, checkArgs(tenantID, userID, actions)...).Scan(&one)
	if err == sql.ErrNoRows {
		c.metrics.RecordPermissionCheck("any", false)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check permissions: %w", err)
	}

	c.metrics.RecordPermissionCheck("any", true)
	return true, nil
}

// HasEach reports whether the user's roles in tenantID grant every one of permissions
func (c *Checker) HasEach(ctx context.Context, tenantID, userID string, permissions []string) (allowed bool, err error) {
	actions := normalizeActions(permissions)
	if len(actions) == 0 {
		return true, nil
	}

	ctx, span := observability.StartSpan(ctx, "rbac.HasEach",
		attribute.String("tenant.id", tenantID),
		attribute.Int("permissions.count", len(actions)),
	)
	defer func() { observability.EndSpan(span, err) }()

	query := fmt.Sprintf("SELECT COUNT(DISTINCT p.action)"+grantedFrom, placeholders(3, len(actions)))

	var granted int
	if err = postgres.Conn(ctx, c.db).QueryRowContext(ctx, query, checkArgs(tenantID, userID, actions)...).Scan(&granted); err != nil {
		return false, fmt.Errorf("failed to check permissions: %w", err)
	}

	allowed = granted == len(actions)
	c.metrics.RecordPermissionCheck("each", allowed)
	return allowed, nil
}

func checkArgs(tenantID, userID string, actions []string) []interface{} {
	args := make([]interface{}, 0, len(actions)+2)
	args = append(args, tenantID, userID)
	for _, a := range actions {
		args = append(args, a)
	}
	return args
}

// placeholders renders n positional parameters starting at $start
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
