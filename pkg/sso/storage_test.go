package sso

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

var configCols = []string{"id", "tenant_id", "entry_point", "certificate", "enabled", "fields_mapping", "version", "created_at", "updated_at"}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestConfigStore_Get(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewConfigStore(db)
	now := time.Now()

	mock.ExpectQuery("FROM saml_configurations").
		WithArgs(testConfigID, testTenantID).
		WillReturnRows(sqlmock.NewRows(configCols).AddRow(
			testConfigID, testTenantID, "https://idp.example.com/sso", testCertificate, true,
			[]byte(`{"email":"mail"}`), 3, now, now,
		))

	cfg, err := store.Get(context.Background(), testTenantID, testConfigID)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Version)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "mail", cfg.FieldsMapping.Email)

	mock.ExpectQuery("FROM saml_configurations").
		WithArgs(testConfigID, otherTenant).
		WillReturnError(sql.ErrNoRows)

	_, err = store.Get(context.Background(), otherTenant, testConfigID)
	assert.ErrorIs(t, err, postgres.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigStore_GetRejectsMalformedIDs(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewConfigStore(db)

	_, err := store.Get(context.Background(), testTenantID, "not-a-uuid")
	assert.ErrorIs(t, err, postgres.ErrNotFound)
	_, err = store.Get(context.Background(), "acme", testConfigID)
	assert.ErrorIs(t, err, postgres.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigStore_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewConfigStore(db)

	mock.ExpectExec("INSERT INTO saml_configurations").
		WithArgs(sqlmock.AnyArg(), testTenantID, "https://idp.example.com/sso", testCertificate, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cfg := &SAMLConfiguration{TenantID: testTenantID, EntryPoint: "https://idp.example.com/sso", Certificate: testCertificate, Enabled: true}
	require.NoError(t, store.Upsert(context.Background(), cfg))
	assert.NotEmpty(t, cfg.ID)
	assert.Equal(t, 1, cfg.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigStore_UpdateChecksVersion(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewConfigStore(db)

	mock.ExpectExec("UPDATE saml_configurations").
		WithArgs(testConfigID, 2, testTenantID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cfg := testConfig()
	cfg.Version = 2
	require.NoError(t, store.Upsert(context.Background(), cfg))
	assert.Equal(t, 3, cfg.Version)

	mock.ExpectExec("UPDATE saml_configurations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM saml_configurations").
		WithArgs(testConfigID).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(4))

	stale := testConfig()
	stale.Version = 2
	err := store.Upsert(context.Background(), stale)
	assert.ErrorIs(t, err, postgres.ErrVersionMismatch)
	assert.Equal(t, 2, stale.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
