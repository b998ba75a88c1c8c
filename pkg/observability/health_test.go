package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPingDB(t *testing.T, pingErr error) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.ExpectPing().WillReturnError(pingErr)
	return db
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestHealthChecker_Check(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		db := newPingDB(t, nil)
		client, _ := newRedis(t)

		status := NewHealthChecker(db, client, "v1").Check(context.Background())
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Equal(t, "v1", status.Version)
		assert.Equal(t, StatusHealthy, status.Dependencies["database"].Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["redis"].Status)
	})

	t.Run("database down is unhealthy", func(t *testing.T) {
		db := newPingDB(t, errors.New("connection refused"))

		status := NewHealthChecker(db, nil, "").Check(context.Background())
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Equal(t, "connection refused", status.Dependencies["database"].Message)
		assert.NotContains(t, status.Dependencies, "redis")
	})

	t.Run("redis down is degraded", func(t *testing.T) {
		db := newPingDB(t, nil)
		client, mr := newRedis(t)
		mr.Close()

		status := NewHealthChecker(db, client, "").Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
	})
}

func TestHealthRoutes(t *testing.T) {
	db := newPingDB(t, errors.New("down"))
	router := mux.NewRouter()
	RegisterHealthRoutes(router, NewHealthChecker(db, nil, "v1"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, StatusUnhealthy, status.Status)
}
