//go:build integration

package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

// setupPostgres starts a PostgreSQL container with the schema applied
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("tenantgate_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))

	require.NoError(t, postgres.Migrate(ctx, db))
	return db
}

func postJSON(t *testing.T, srv http.Handler, target string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestIntegration_TenantSignupApproveSignIn(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	cfg := testConfig()
	cfg.Auth.AttemptLimit = 100

	srv, err := NewServer(Dependencies{
		Config:  cfg,
		DB:      db,
		Logger:  observability.NewLogger(observability.InfoLevel, io.Discard),
		Metrics: observability.NewMetrics(prometheus.NewRegistry()),
		Version: "test",
	})
	require.NoError(t, err)
	require.NoError(t, srv.SyncCatalog(ctx))
	// A second sync must be a no-op.
	require.NoError(t, srv.SyncCatalog(ctx))

	signup := map[string]string{
		"email":             "Owner@Acme.example",
		"password":          "correct horse battery",
		"repeatedPassword":  "correct horse battery",
		"firstName":         "Ada",
		"lastName":          "Owner",
		"companyName":       "Acme",
		"companyIdentifier": "acme",
	}
	rec := postJSON(t, srv, "/api/v1/auth/signup-tenant", signup, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ApprovalID string `json:"approvalId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ApprovalID)

	// The same email cannot sign up twice, and the failed attempt leaves no tenant.
	signup["companyIdentifier"] = "acme-two"
	rec = postJSON(t, srv, "/api/v1/auth/signup-tenant", signup, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var tenants int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM tenants`).Scan(&tenants))
	assert.Equal(t, 1, tenants)

	// Pending users cannot sign in.
	credentials := map[string]string{"email": "owner@acme.example", "password": "correct horse battery"}
	rec = postJSON(t, srv, "/api/v1/auth/signin", credentials, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var code, tenantID string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT code FROM external_approvals WHERE id = $1`, created.ApprovalID).Scan(&code))
	require.NoError(t, db.QueryRowContext(ctx, `SELECT id FROM tenants`).Scan(&tenantID))

	rec = postJSON(t, srv, "/api/v1/auth/approve-signup", map[string]string{"id": created.ApprovalID, "code": "wrong"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postJSON(t, srv, "/api/v1/auth/approve-signup", map[string]string{"id": created.ApprovalID, "code": code}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The challenge is single use.
	rec = postJSON(t, srv, "/api/v1/auth/approve-signup", map[string]string{"id": created.ApprovalID, "code": code}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postJSON(t, srv, "/api/v1/auth/signin", credentials, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tokens struct {
		JWTToken     string `json:"jwtToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	require.NotEmpty(t, tokens.JWTToken)

	// The owner holds the admin role in the new tenant.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.JWTToken)
	req.Header.Set("X-Tenant-Id", tenantID)
	list := httptest.NewRecorder()
	srv.ServeHTTP(list, req)
	assert.Equal(t, http.StatusOK, list.Code, list.Body.String())

	// A tenant the token does not list is rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.JWTToken)
	req.Header.Set("X-Tenant-Id", "00000000-0000-4000-8000-000000000000")
	other := httptest.NewRecorder()
	srv.ServeHTTP(other, req)
	assert.Equal(t, http.StatusForbidden, other.Code)

	rec = postJSON(t, srv, "/api/v1/auth/refresh", map[string]string{"refreshToken": tokens.RefreshToken}, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
