package rbac

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
)

func newTestRouter(allow bool, evalErr error) (*mux.Router, *fakeRoles) {
	svc, roles := newTestRoleService()
	guard := NewPermissionMiddleware(NewAccessChecker(&recordingEvaluator{allow: allow, err: evalErr}))

	router := mux.NewRouter()
	NewHandlers(svc, guard).RegisterRoutes(router)
	return router, roles
}

func authed(r *http.Request) *http.Request {
	ctx := contextkeys.WithTenantID(r.Context(), "t1")
	ctx = contextkeys.WithUserID(ctx, "u1")
	return r.WithContext(ctx)
}

func TestPermissionMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		allow      bool
		evalErr    error
		auth       bool
		wantStatus int
	}{
		{"unauthenticated", true, nil, false, http.StatusUnauthorized},
		{"denied", false, nil, true, http.StatusForbidden},
		{"check error", false, errors.New("db down"), true, http.StatusInternalServerError},
		{"allowed", true, nil, true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(tt.allow, tt.evalErr)
			req := httptest.NewRequest(http.MethodGet, "/roles", nil)
			if tt.auth {
				req = authed(req)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestHandlers_GetRole(t *testing.T) {
	router, _ := newTestRouter(true, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authed(httptest.NewRequest(http.MethodGet, "/roles/"+roleT1ID, nil)))
	require.Equal(t, http.StatusOK, w.Code)

	var role Role
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &role))
	assert.Equal(t, "Writers", role.Name)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authed(httptest.NewRequest(http.MethodGet, "/roles/"+roleT2ID, nil)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_CreateRole(t *testing.T) {
	router, _ := newTestRouter(true, nil)

	body := `{"name":"Readers","permissions":["platform.roles.read"]}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authed(httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(body))))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "Readers")
}

func TestHandlers_UpdateRoleConflict(t *testing.T) {
	router, _ := newTestRouter(true, nil)

	body := `{"name":"Editors","version":1}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authed(httptest.NewRequest(http.MethodPut, "/roles/"+roleT1ID, strings.NewReader(body))))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandlers_DeleteRole(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantStatus int
		archived   bool
	}{
		{"missing version", "/roles/"+roleT1ID, http.StatusBadRequest, false},
		{"stale version", "/roles/"+roleT1ID+"?version=1", http.StatusConflict, false},
		{"unknown role", "/roles/nope?version=1", http.StatusNotFound, false},
		{"archived", "/roles/"+roleT1ID+"?version=3", http.StatusNoContent, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, roles := newTestRouter(true, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, authed(httptest.NewRequest(http.MethodDelete, tt.url, nil)))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.archived, roles.archived[roleT1ID])
		})
	}
}

func TestHandlers_ListRoles(t *testing.T) {
	router, _ := newTestRouter(true, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authed(httptest.NewRequest(http.MethodGet, "/roles?limit=10", nil)))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Roles []Role `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Roles, 2) // default admin and the tenant's own role

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authed(httptest.NewRequest(http.MethodGet, "/roles?limit=x", nil)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
