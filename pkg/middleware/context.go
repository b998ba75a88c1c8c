package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

const (
	// HeaderRequestID carries the request id in both directions
	HeaderRequestID = "X-Request-Id"
	// HeaderTenantID selects the ambient tenant
	HeaderTenantID = "X-Tenant-Id"
)

// RequestContext scopes the request: it assigns a request id (reusing a
// well-formed incoming one), attaches logger and sets the ambient tenant from
// X-Tenant-Id. A tenant header that is not a UUID is rejected.
func RequestContext(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := r.Header.Get(HeaderRequestID)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}
			ctx = contextkeys.WithRequestID(ctx, requestID)
			w.Header().Set(HeaderRequestID, requestID)

			if logger != nil {
				ctx = contextkeys.WithLogger(ctx, logger)
			}

			if tenantID := r.Header.Get(HeaderTenantID); tenantID != "" {
				if _, err := uuid.Parse(tenantID); err != nil {
					httputil.WriteBadRequest(w, HeaderTenantID+" must be a UUID")
					return
				}
				ctx = contextkeys.WithTenantID(ctx, tenantID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
