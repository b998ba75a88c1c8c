package rbac

import (
	"context"

	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// AccessChecker evaluates permissions for the tenant and user carried by the
// request context. A context without both is never allowed.
type AccessChecker struct {
	evaluator Evaluator
}

// NewAccessChecker wraps an evaluator
func NewAccessChecker(evaluator Evaluator) *AccessChecker {
	return &AccessChecker{evaluator: evaluator}
}

// HasAny reports whether the ambient user holds any of permissions in the ambient tenant
func (a *AccessChecker) HasAny(ctx context.Context, permissions ...string) (bool, error) {
	tenantID, userID, ok := ambient(ctx)
	if !ok {
		return false, nil
	}
	return a.evaluator.HasAny(ctx, tenantID, userID, permissions)
}

// HasEach reports whether the ambient user holds all of permissions in the ambient tenant
func (a *AccessChecker) HasEach(ctx context.Context, permissions ...string) (bool, error) {
	tenantID, userID, ok := ambient(ctx)
	if !ok {
		return false, nil
	}
	return a.evaluator.HasEach(ctx, tenantID, userID, permissions)
}

func ambient(ctx context.Context) (tenantID, userID string, ok bool) {
	tenantID = contextkeys.TenantID(ctx)
	userID = contextkeys.UserID(ctx)
	if tenantID == "" || userID == "" {
		observability.FromContext(ctx).Debug("permission check without tenant or user in context")
		return "", "", false
	}
	return tenantID, userID, true
}
