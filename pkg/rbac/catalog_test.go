package rbac

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	assert.Contains(t, c.Actions(), PermRolesRead)
	assert.Contains(t, c.Actions(), PermTenantsConfigure)

	types := map[RoleType]CatalogRole{}
	for _, r := range c.Roles {
		types[r.Type] = r
	}
	require.Contains(t, types, RoleTypeAdmin)
	require.Contains(t, types, RoleTypeRegularUser)
	require.Contains(t, types, RoleTypeSuperAdmin)

	assert.ElementsMatch(t, c.Actions(), c.RolePermissions(types[RoleTypeSuperAdmin]))
	assert.Contains(t, c.RolePermissions(types[RoleTypeAdmin]), PermRolesDelete)
	assert.NotContains(t, c.RolePermissions(types[RoleTypeRegularUser]), PermRolesDelete)
}

func TestLoadCatalog_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "normalizes actions",
			yaml: `
categories:
  - name: Roles
    permissions:
      - action: " Platform.Roles.Read "
roles:
  - type: ADMIN
    name: Admin
    permissions: ["PLATFORM.ROLES.READ"]
`,
		},
		{
			name: "duplicate action",
			yaml: `
categories:
  - name: Roles
    permissions:
      - action: a.b
      - action: A.B
`,
			wantErr: "duplicate permission action",
		},
		{
			name: "unknown role type",
			yaml: `
roles:
  - type: OWNER
`,
			wantErr: "unknown role type",
		},
		{
			name: "unknown permission reference",
			yaml: `
roles:
  - type: ADMIN
    permissions: [x.y]
`,
			wantErr: "unknown permission",
		},
		{
			name:    "unknown field",
			yaml:    "colour: blue\n",
			wantErr: "failed to decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := LoadCatalog(strings.NewReader(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"platform.roles.read"}, c.Actions())
			assert.Equal(t, []string{"platform.roles.read"}, c.RolePermissions(c.Roles[0]))
		})
	}
}
