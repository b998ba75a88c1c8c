package auth

import (
	"net"
	"net/http"
	"strings"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// Audit actions
const (
	ActionSignup        = "auth.signup"
	ActionSignupTenant  = "auth.signup_tenant"
	ActionApproveSignup = "auth.approve_signup"
	ActionSignIn        = "auth.signin"
	ActionRefresh       = "auth.refresh"
)

// Audit statuses
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)

// AuditEvent is one security relevant request outcome
type AuditEvent struct {
	Action     string
	ResourceID string
	IPAddress  string
	UserAgent  string
	Status     string
	Err        error
}

// AuditLogger writes security audit events to the structured log
type AuditLogger struct{}

// NewAuditLogger creates a new audit logger
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

// Log writes event with the request scoped logger of r
func (al *AuditLogger) Log(r *http.Request, event AuditEvent) {
	fields := map[string]interface{}{
		"audit":       true,
		"action":      event.Action,
		"status":      event.Status,
		"ip_address":  event.IPAddress,
		"user_agent":  event.UserAgent,
		"resource_id": event.ResourceID,
	}
	logger := observability.FromContext(r.Context()).WithFields(fields)
	if event.Err != nil {
		logger = logger.WithError(event.Err)
	}

	if event.Status == StatusSuccess {
		logger.Info("audit")
	} else {
		logger.Warn("audit")
	}
}

// LogFromRequest builds an audit event from r and the outcome err
func (al *AuditLogger) LogFromRequest(r *http.Request, action, resourceID string, err error) {
	status := StatusSuccess
	switch {
	case err == nil:
	case apperr.HTTPStatus(err) == http.StatusUnauthorized, apperr.HTTPStatus(err) == http.StatusForbidden:
		status = StatusDenied
	default:
		status = StatusFailure
	}

	al.Log(r, AuditEvent{
		Action:     action,
		ResourceID: resourceID,
		IPAddress:  ClientIP(r),
		UserAgent:  r.UserAgent(),
		Status:     status,
		Err:        err,
	})
}

// ClientIP returns the originating address of r, preferring proxy headers
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
