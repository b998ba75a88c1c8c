package auth

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/token"
)

// Authenticator is implemented by Service
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*token.Tokens, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*token.Tokens, error)
	ApproveSignup(ctx context.Context, id, code string) error
}

// Signup is implemented by SignupService
type Signup interface {
	SignUp(ctx context.Context, req SignupRequest) (*SignupResult, error)
}

// TenantSignup is implemented by TenantSignupService
type TenantSignup interface {
	SignUp(ctx context.Context, req TenantSignupRequest) (*SignupResult, error)
}

// Handlers provides HTTP handlers for the public authentication endpoints
type Handlers struct {
	auth         Authenticator
	signup       Signup
	tenantSignup TenantSignup
	audit        *AuditLogger
}

// NewHandlers creates new authentication handlers
func NewHandlers(auth Authenticator, signup Signup, tenantSignup TenantSignup) *Handlers {
	return &Handlers{
		auth:         auth,
		signup:       signup,
		tenantSignup: tenantSignup,
		audit:        NewAuditLogger(),
	}
}

// RegisterRoutes registers the auth routes. attempts guards the endpoints that
// accept guessable secrets and may be nil.
func (h *Handlers) RegisterRoutes(router *mux.Router, attempts func(http.Handler) http.Handler) {
	if attempts == nil {
		attempts = func(next http.Handler) http.Handler { return next }
	}

	router.HandleFunc("/auth/signup", h.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/auth/signup-tenant", h.SignUpWithTenant).Methods(http.MethodPost)
	router.Handle("/auth/approve-signup", attempts(http.HandlerFunc(h.ApproveSignup))).Methods(http.MethodPost)
	router.Handle("/auth/signin", attempts(http.HandlerFunc(h.SignIn))).Methods(http.MethodPost)
	router.HandleFunc("/auth/refresh", h.Refresh).Methods(http.MethodPost)
}

// SignUp handles POST /auth/signup
func (h *Handlers) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.signup.SignUp(r.Context(), req)
	h.audit.LogFromRequest(r, ActionSignup, approvalID(result), err)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, result)
}

// SignUpWithTenant handles POST /auth/signup-tenant
func (h *Handlers) SignUpWithTenant(w http.ResponseWriter, r *http.Request) {
	var req TenantSignupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.tenantSignup.SignUp(r.Context(), req)
	h.audit.LogFromRequest(r, ActionSignupTenant, approvalID(result), err)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, result)
}

// ApproveSignup handles POST /auth/approve-signup
func (h *Handlers) ApproveSignup(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ID == "" || req.Code == "" {
		httputil.WriteBadRequest(w, "id and code are required")
		return
	}

	err := h.auth.ApproveSignup(r.Context(), req.ID, req.Code)
	h.audit.LogFromRequest(r, ActionApproveSignup, req.ID, err)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, map[string]bool{"approved": true})
}

// SignIn handles POST /auth/signin
func (h *Handlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	tokens, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	h.audit.LogFromRequest(r, ActionSignIn, "", err)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, tokens)
}

// Refresh handles POST /auth/refresh
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteBadRequest(w, "refreshToken is required")
		return
	}

	tokens, err := h.auth.RefreshAccessToken(r.Context(), req.RefreshToken)
	h.audit.LogFromRequest(r, ActionRefresh, "", err)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, tokens)
}

func approvalID(result *SignupResult) string {
	if result == nil {
		return ""
	}
	return result.ApprovalID
}
