package rbac

import (
	"context"
	"net/http"

	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// PermissionMiddleware guards routes with permission checks
type PermissionMiddleware struct {
	access *AccessChecker
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(access *AccessChecker) *PermissionMiddleware {
	return &PermissionMiddleware{access: access}
}

// RequireAny requires at least one of permissions
func (pm *PermissionMiddleware) RequireAny(permissions ...string) func(http.Handler) http.Handler {
	return pm.require("any", permissions, pm.access.HasAny)
}

// RequireEach requires all of permissions
func (pm *PermissionMiddleware) RequireEach(permissions ...string) func(http.Handler) http.Handler {
	return pm.require("each", permissions, pm.access.HasEach)
}

func (pm *PermissionMiddleware) require(mode string, permissions []string, check func(context.Context, ...string) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if contextkeys.UserID(ctx) == "" {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			allowed, err := check(ctx, permissions...)
			if err != nil {
				observability.FromContext(ctx).WithError(err).Error("permission check failed")
				httputil.WriteAppError(w, err)
				return
			}
			if !allowed {
				observability.FromContext(ctx).WithFields(map[string]interface{}{
					"mode":        mode,
					"permissions": permissions,
				}).Info("permission denied")
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
