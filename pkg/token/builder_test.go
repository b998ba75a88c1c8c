package token

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
	"github.com/platinummonkey/tenantgate/pkg/users"
)

func roleType(t rbac.RoleType) *rbac.RoleType { return &t }

func profile(accounts ...tenants.Account) *users.Profile {
	return &users.Profile{
		ID:        "u1",
		Email:     "ann@example.com",
		FirstName: "Ann",
		LastName:  "Lee",
		Status:    users.StatusActive,
		Accounts:  accounts,
	}
}

func TestNewBuilder(t *testing.T) {
	for mode, want := range map[string]Builder{
		ModeNoTenant:     NoTenantBuilder{},
		ModeSingleTenant: SingleTenantBuilder{},
		ModeMultiTenant:  MultiTenantBuilder{},
	} {
		b, err := NewBuilder(mode)
		require.NoError(t, err)
		assert.IsType(t, want, b)
	}

	_, err := NewBuilder("sometimes")
	assert.Error(t, err)
}

func TestNoTenantBuilder(t *testing.T) {
	payload, err := NoTenantBuilder{}.BuildTokensPayload(context.Background(), profile())
	require.NoError(t, err)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"access": {"sub":"u1","email":"ann@example.com","firstName":"Ann","lastName":"Lee"},
		"refresh": {"sub":"u1","email":"ann@example.com"}
	}`, string(raw))
}

func TestSingleTenantBuilder(t *testing.T) {
	user := profile(tenants.Account{
		TenantID: "t1",
		Roles:    []rbac.Role{{ID: "r1"}, {ID: "r2"}},
	})

	payload, err := SingleTenantBuilder{}.BuildAccessTokenPayload(context.Background(), user)
	require.NoError(t, err)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"sub":"u1","email":"ann@example.com","firstName":"Ann","lastName":"Lee",
		"tenantId":"t1","roles":[{"roleId":"r1"},{"roleId":"r2"}]
	}`, string(raw))
}

func TestSingleTenantBuilderRequiresExactlyOneAccount(t *testing.T) {
	tests := []struct {
		name     string
		accounts []tenants.Account
	}{
		{"none", nil},
		{"two", []tenants.Account{{TenantID: "t1"}, {TenantID: "t2"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SingleTenantBuilder{}.BuildTokensPayload(context.Background(), profile(tt.accounts...))
			assert.ErrorIs(t, err, apperr.ErrInternal)
		})
	}
}

func TestMultiTenantBuilder(t *testing.T) {
	user := profile(
		tenants.Account{TenantID: "t1", Roles: []rbac.Role{{ID: "r1", RoleType: roleType(rbac.RoleTypeAdmin)}}},
		tenants.Account{TenantID: "t2", Roles: []rbac.Role{{ID: "r9"}}},
	)

	payload, err := MultiTenantBuilder{}.BuildTokensPayload(context.Background(), user)
	require.NoError(t, err)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"access": {
			"sub":"u1","email":"ann@example.com","firstName":"Ann","lastName":"Lee",
			"tenants":[
				{"tenantId":"t1","roles":[{"roleId":"r1","roleType":"ADMIN"}]},
				{"tenantId":"t2","roles":[{"roleId":"r9"}]}
			]
		},
		"refresh": {"sub":"u1","email":"ann@example.com"}
	}`, string(raw))
}

func TestMultiTenantBuilderWithoutAccounts(t *testing.T) {
	payload, err := MultiTenantBuilder{}.BuildAccessTokenPayload(context.Background(), profile())
	require.NoError(t, err)

	mt, ok := payload.(MultiTenantPayload)
	require.True(t, ok)
	assert.Empty(t, mt.Tenants)
	assert.Equal(t, "u1", mt.Base().Sub)
}
