package rbac

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

var roleCols = []string{"id", "name", "description", "role_type", "tenant_id", "version", "created_at", "updated_at"}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestRoleStore_FindDefaultByType(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewRoleStore(db)
	now := time.Now()

	mock.ExpectQuery("FROM user_roles").
		WithArgs("ADMIN").
		WillReturnRows(sqlmock.NewRows(roleCols).AddRow("r-admin", "Admin", "", "ADMIN", nil, 1, now, now))

	role, err := store.FindDefaultByType(context.Background(), RoleTypeAdmin)
	require.NoError(t, err)
	assert.Equal(t, "r-admin", role.ID)
	require.NotNil(t, role.RoleType)
	assert.Equal(t, RoleTypeAdmin, *role.RoleType)
	assert.True(t, role.IsDefault())

	mock.ExpectQuery("FROM user_roles").
		WithArgs("SUPER_ADMIN").
		WillReturnRows(sqlmock.NewRows(roleCols))

	_, err = store.FindDefaultByType(context.Background(), RoleTypeSuperAdmin)
	assert.ErrorIs(t, err, postgres.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleStore_FindOneForTenant(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewRoleStore(db)
	now := time.Now()

	mock.ExpectQuery("FROM user_roles").
		WithArgs("r1", "t1").
		WillReturnRows(sqlmock.NewRows(roleCols).AddRow("r1", "Writers", "", nil, "t1", 2, now, now))
	mock.ExpectQuery("FROM user_role_permissions").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "action", "permission_category_id", "version"}).
			AddRow("p1", "Read roles", "", "platform.roles.read", "c1", 1))

	role, err := store.FindOneForTenant(context.Background(), "t1", "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, role.Version)
	require.NotNil(t, role.TenantID)
	assert.Equal(t, "t1", *role.TenantID)
	require.Len(t, role.Permissions, 1)
	assert.Equal(t, "platform.roles.read", role.Permissions[0].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleStore_FindOneForTenant_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewRoleStore(db)

	mock.ExpectQuery("FROM user_roles").
		WithArgs("r1", "t2").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindOneForTenant(context.Background(), "t2", "r1")
	assert.ErrorIs(t, err, postgres.ErrNotFound)
}

func TestRoleStore_Create(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewRoleStore(db)
	tenantID := "t1"

	mock.ExpectExec("INSERT INTO user_roles").
		WithArgs(sqlmock.AnyArg(), "Writers", "can write", nil, "t1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	role := &Role{Name: "Writers", Description: "can write", TenantID: &tenantID}
	require.NoError(t, store.Create(context.Background(), role))
	assert.NotEmpty(t, role.ID)
	assert.Equal(t, 1, role.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleStore_UpdateStaleVersion(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewRoleStore(db)

	mock.ExpectExec("UPDATE user_roles").
		WithArgs("r1", 1, "Renamed", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM user_roles").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(2))

	role := &Role{ID: "r1", Name: "Renamed", Version: 1}
	err := store.Update(context.Background(), role, 1)
	assert.ErrorIs(t, err, postgres.ErrVersionMismatch)
	assert.Equal(t, 1, role.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleStore_ArchiveStaleVersionLeavesRow(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewRoleStore(db)

	// the single conditional update matches nothing, so nothing is archived
	mock.ExpectExec("UPDATE user_roles").
		WithArgs("r1", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM user_roles").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(2))

	err := store.Archive(context.Background(), "r1", 1)
	assert.ErrorIs(t, err, postgres.ErrVersionMismatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleStore_SetPermissions(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewRoleStore(db)

	mock.ExpectExec("DELETE FROM user_role_permissions").WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO user_role_permissions").WithArgs("r1", "p1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_role_permissions").WithArgs("r1", "p2").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetPermissions(context.Background(), "r1", []string{"p1", "p2"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionStore_FindByActionsNormalizes(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPermissionStore(db)

	mock.ExpectQuery("FROM permissions").
		WithArgs("platform.roles.read").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "action", "permission_category_id", "version"}).
			AddRow("p1", "Read roles", "", "platform.roles.read", "c1", 1))

	perms, err := store.FindByActions(context.Background(), []string{" Platform.Roles.Read", "platform.roles.read"})
	require.NoError(t, err)
	assert.Len(t, perms, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionStore_SyncCatalog(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPermissionStore(db)

	catalog := &Catalog{
		Categories: []CatalogCategory{{
			Name:        "Roles",
			Permissions: []CatalogPermission{{Action: "platform.roles.read", Name: "Read roles"}},
		}},
		Roles: []CatalogRole{{Type: RoleTypeAdmin, Name: "Admin", Permissions: []string{AllPermissions}}},
	}
	require.NoError(t, catalog.Validate())

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO permission_categories").
		WithArgs(sqlmock.AnyArg(), "Roles", "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
	mock.ExpectQuery("INSERT INTO permissions").
		WithArgs(sqlmock.AnyArg(), "Read roles", "", "platform.roles.read", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1"))
	mock.ExpectQuery("FROM user_roles").
		WithArgs("ADMIN").
		WillReturnRows(sqlmock.NewRows(roleCols))
	mock.ExpectExec("INSERT INTO user_roles").
		WithArgs(sqlmock.AnyArg(), "Admin", "", "ADMIN", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_role_permissions").
		WithArgs(sqlmock.AnyArg(), "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SyncCatalog(context.Background(), catalog))
	assert.NoError(t, mock.ExpectationsWereMet())
}
