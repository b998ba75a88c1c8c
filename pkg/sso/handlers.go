package sso

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// Handlers handles SSO-related HTTP requests
type Handlers struct {
	login   *Handler
	configs *ConfigService
	guard   *rbac.PermissionMiddleware
}

// NewHandlers creates a new SSO handlers instance
func NewHandlers(login *Handler, configs *ConfigService, guard *rbac.PermissionMiddleware) *Handlers {
	return &Handlers{login: login, configs: configs, guard: guard}
}

// RegisterRoutes registers the browser-facing login routes. They run without a
// bearer token; the tenant comes from the request context.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/saml/login", h.Login).Methods(http.MethodGet)
	router.HandleFunc("/auth/saml/acs", h.AssertionConsumer).Methods(http.MethodPost)
	router.HandleFunc("/auth/saml/metadata", h.ServiceProviderMetadata).Methods(http.MethodGet)
}

// RegisterAdminRoutes registers configuration routes on an authenticated router
func (h *Handlers) RegisterAdminRoutes(router *mux.Router) {
	router.Handle("/tenants/configuration/saml",
		h.guard.RequireAny(rbac.PermTenantsConfigure)(http.HandlerFunc(h.Setup)),
	).Methods(http.MethodPost)
}

// Login handles GET /auth/saml/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req := InitiateRequest{
		RedirectURL:         httputil.ParseQueryString(r, "redirectUrl", ""),
		SAMLConfigurationID: httputil.ParseQueryString(r, "samlConfigurationId", ""),
	}

	outcome, err := h.login.Initiate(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	outcome.Render(w, r)
}

// AssertionConsumer handles POST /auth/saml/acs
func (h *Handlers) AssertionConsumer(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.WriteBadRequest(w, "invalid form body")
		return
	}

	outcome := h.login.Consume(r.Context(), r.PostFormValue("SAMLResponse"), r.PostFormValue("RelayState"))
	outcome.Render(w, r)
}

// ServiceProviderMetadata handles GET /auth/saml/metadata
func (h *Handlers) ServiceProviderMetadata(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.ParseQueryString(r, "tenantId", contextkeys.TenantID(r.Context()))
	id := httputil.ParseQueryString(r, "samlConfigurationId", "")

	metadata, err := h.login.Metadata(r.Context(), tenantID, id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(metadata)
}

// Setup handles POST /tenants/configuration/saml
func (h *Handlers) Setup(w http.ResponseWriter, r *http.Request) {
	var req SetupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	cfg, err := h.configs.Setup(ctx, req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	fields := map[string]interface{}{
		"saml_configuration_id": cfg.ID,
		"version":               cfg.Version,
	}
	if principal := middleware.Principal(ctx); principal != nil {
		fields["actor_email"] = principal.Email
	}
	observability.FromContext(ctx).WithFields(fields).Info("SAML configuration stored")

	_ = httputil.WriteCreated(w, SetupResponse{
		ID:      cfg.ID,
		Version: cfg.Version,
		Message: "SAML configuration stored",
	})
}
