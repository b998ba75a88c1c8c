// Package contextkeys provides the request-scoped context keys.
//
// Everything a request carries implicitly (tenant, user, request id, verified
// claims, logger) lives here so that every package reads it the same way. Values
// are set by middleware on the per-request context only.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithTenantID(ctx, tenantID)
//	tenantID := contextkeys.TenantID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// TenantIDKey contains the ambient tenant id string
	// Set by: middleware.RequestContext (X-Tenant-Id header)
	// Used by: rbac.AccessChecker, rbac.RoleService, sso.Handler
	TenantIDKey Key = "tenant_id"

	// UserIDKey contains the authenticated user id string
	// Set by: middleware.AuthMiddleware
	UserIDKey Key = "user_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestContext
	// Used by: Logger, tracing
	RequestIDKey Key = "request_id"

	// PrincipalKey contains the verified access token claims
	// Set by: middleware.AuthMiddleware
	// Type: *token.AccessClaims
	PrincipalKey Key = "principal"

	// LoggerKey contains *observability.Logger
	LoggerKey Key = "logger"
)

// WithTenantID adds the ambient tenant id to the context
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithPrincipal adds verified claims to the context
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// TenantID retrieves the ambient tenant id from context
func TenantID(ctx context.Context) string {
	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok {
		return tenantID
	}
	return ""
}

// UserID retrieves user ID from context
func UserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// RequestID retrieves request ID from context
func RequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// Principal retrieves the raw principal value from context
func Principal(ctx context.Context) interface{} {
	return ctx.Value(PrincipalKey)
}

// Logger retrieves the raw logger value from context
func Logger(ctx context.Context) interface{} {
	return ctx.Value(LoggerKey)
}
