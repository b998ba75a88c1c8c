package rbac

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/httputil"
)

// Handlers provides HTTP handlers for tenant roles
type Handlers struct {
	service *RoleService
	guard   *PermissionMiddleware
}

// NewHandlers creates new role handlers
func NewHandlers(service *RoleService, guard *PermissionMiddleware) *Handlers {
	return &Handlers{service: service, guard: guard}
}

// RegisterRoutes registers the role routes on an authenticated router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/roles", h.guard.RequireAny(PermRolesRead)(http.HandlerFunc(h.ListRoles))).Methods(http.MethodGet)
	router.Handle("/roles", h.guard.RequireAny(PermRolesCreate)(http.HandlerFunc(h.CreateRole))).Methods(http.MethodPost)
	router.Handle("/roles/{id}", h.guard.RequireAny(PermRolesRead)(http.HandlerFunc(h.GetRole))).Methods(http.MethodGet)
	router.Handle("/roles/{id}", h.guard.RequireAny(PermRolesUpdate)(http.HandlerFunc(h.UpdateRole))).Methods(http.MethodPut)
	router.Handle("/roles/{id}", h.guard.RequireAny(PermRolesDelete)(http.HandlerFunc(h.DeleteRole))).Methods(http.MethodDelete)
}

// ListRoles lists the roles visible to the tenant
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	roles, err := h.service.ListForTenant(r.Context(), Page{Limit: limit, Offset: offset})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, map[string]interface{}{"roles": roles})
}

// GetRole returns one role with its permissions
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathIDOrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.service.FindOneForTenant(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, role)
}

// CreateRole creates a tenant role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req RoleInput
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.service.CreateForTenant(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, role)
}

type updateRoleRequest struct {
	RoleInput
	Version int `json:"version"`
}

// UpdateRole rewrites a tenant role; the body carries the expected version
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathIDOrError(w, r, "id")
	if !ok {
		return
	}
	var req updateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Version <= 0 {
		httputil.WriteBadRequest(w, "version is required")
		return
	}

	role, err := h.service.UpdateForTenant(r.Context(), id, req.Version, req.RoleInput)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, role)
}

// DeleteRole archives a tenant role; ?version= carries the expected version
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathIDOrError(w, r, "id")
	if !ok {
		return
	}
	version, err := httputil.ParseQueryInt(r, "version", 0)
	if err != nil || version <= 0 {
		httputil.WriteBadRequest(w, "version query parameter is required")
		return
	}

	if err := h.service.ArchiveOneForTenant(r.Context(), id, version); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
