package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/token"
)

// AccessVerifier is implemented by token.JWTService
type AccessVerifier interface {
	VerifyAccess(raw string) (*token.AccessClaims, error)
}

// MembershipChecker is implemented by tenants.AccountStore
type MembershipChecker interface {
	IsMember(ctx context.Context, tenantID, userID string) (bool, error)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	tokens   AccessVerifier
	members  MembershipChecker
	optional bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware. members answers the
// tenant check for tokens that carry no tenant data and may be nil.
func NewAuthMiddleware(tokens AccessVerifier, members MembershipChecker, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:   tokens,
		members:  members,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		scheme, raw, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		claims, err := m.tokens.VerifyAccess(strings.TrimSpace(raw))
		if err != nil {
			observability.FromContext(ctx).WithError(err).Debug("access token rejected")
			httputil.WriteAppError(w, err)
			return
		}

		if tenantID := contextkeys.TenantID(ctx); tenantID != "" {
			member, err := m.isMember(ctx, claims, tenantID)
			if err != nil {
				observability.FromContext(ctx).WithError(err).Error("tenant membership check failed")
				httputil.WriteAppError(w, err)
				return
			}
			if !member {
				observability.FromContext(ctx).WithField("subject", claims.Subject).
					Warn("principal is not a member of the requested tenant")
				httputil.WriteAppError(w, apperr.Forbidden("middleware", "not a member of tenant"))
				return
			}
		}

		ctx = contextkeys.WithPrincipal(ctx, claims)
		ctx = contextkeys.WithUserID(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) isMember(ctx context.Context, claims *token.AccessClaims, tenantID string) (bool, error) {
	if claims.HasTenantData() {
		return claims.BelongsTo(tenantID), nil
	}
	if m.members == nil {
		return false, nil
	}
	return m.members.IsMember(ctx, tenantID, claims.Subject)
}

// Principal returns the verified claims of the request, or nil
func Principal(ctx context.Context) *token.AccessClaims {
	claims, _ := contextkeys.Principal(ctx).(*token.AccessClaims)
	return claims
}
