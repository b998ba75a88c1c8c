package sso

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/token"
)

type staticEvaluator bool

func (e staticEvaluator) HasAny(context.Context, string, string, []string) (bool, error) {
	return bool(e), nil
}

func (e staticEvaluator) HasEach(context.Context, string, string, []string) (bool, error) {
	return bool(e), nil
}

func newTestRouter(env *loginEnv, allow bool) *mux.Router {
	guard := rbac.NewPermissionMiddleware(rbac.NewAccessChecker(staticEvaluator(allow)))
	h := NewHandlers(env.handler, NewConfigService(env.configs), guard)

	router := mux.NewRouter()
	h.RegisterRoutes(router)
	h.RegisterAdminRoutes(router)
	return router
}

func withIdentity(r *http.Request, userID string) *http.Request {
	ctx := contextkeys.WithTenantID(r.Context(), testTenantID)
	if userID != "" {
		ctx = contextkeys.WithUserID(ctx, userID)
	}
	return r.WithContext(ctx)
}

func TestHandlers_Login(t *testing.T) {
	env := newLoginEnv()
	router := newTestRouter(env, true)

	q := url.Values{"redirectUrl": {"https://app.example.com/after"}, "samlConfigurationId": {testConfigID}}
	req := withIdentity(httptest.NewRequest(http.MethodGet, "/auth/saml/login?"+q.Encode(), nil), "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "https://idp.example.com/sso"))

	req = withIdentity(httptest.NewRequest(http.MethodGet, "/auth/saml/login?samlConfigurationId="+testConfigID, nil), "")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_AssertionConsumer(t *testing.T) {
	env := newLoginEnv()
	router := newTestRouter(env, true)

	form := url.Values{"SAMLResponse": {"PHNhbWw+"}, "RelayState": {relayBlob(t, nil)}}
	req := httptest.NewRequest(http.MethodPost, "/auth/saml/acs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusMovedPermanently, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "access.jwt", location.Query().Get("jwt"))

	form.Set("RelayState", "")
	req = httptest.NewRequest(http.MethodPost, "/auth/saml/acs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperr.CodeMissingStateData, body["code"])
}

func TestHandlers_Metadata(t *testing.T) {
	env := newLoginEnv()
	router := newTestRouter(env, true)

	req := httptest.NewRequest(http.MethodGet, "/auth/saml/metadata?tenantId="+testTenantID+"&samlConfigurationId="+testConfigID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "EntityDescriptor")

	req = httptest.NewRequest(http.MethodGet, "/auth/saml/metadata?samlConfigurationId="+testConfigID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_Setup(t *testing.T) {
	body, err := json.Marshal(setupRequest())
	require.NoError(t, err)

	tests := []struct {
		name   string
		userID string
		allow  bool
		want   int
	}{
		{"created", "u1", true, http.StatusCreated},
		{"anonymous", "", true, http.StatusUnauthorized},
		{"missing permission", "u1", false, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newLoginEnv()
			router := newTestRouter(env, tt.allow)

			req := withIdentity(httptest.NewRequest(http.MethodPost, "/tenants/configuration/saml", strings.NewReader(string(body))), tt.userID)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)

			if tt.want == http.StatusCreated {
				var resp SetupResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.ID)
				assert.Equal(t, 1, resp.Version)
			}
		})
	}
}

func TestHandlers_SetupLogsActor(t *testing.T) {
	body, err := json.Marshal(setupRequest())
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)
	router := newTestRouter(newLoginEnv(), true)

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/tenants/configuration/saml", strings.NewReader(string(body))), "u1")
	ctx := contextkeys.WithLogger(req.Context(), logger)
	ctx = contextkeys.WithPrincipal(ctx, &token.AccessClaims{Email: "admin@acme.example"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req.WithContext(ctx))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, buf.String(), "SAML configuration stored")
	assert.Contains(t, buf.String(), `"actor_email":"admin@acme.example"`)
}
