package auth

import (
	"context"

	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
	"github.com/platinummonkey/tenantgate/pkg/users"
)

// UserRepository is the part of users.Store the workflows need
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*users.Profile, error)
	FindByID(ctx context.Context, id string) (*users.Profile, error)
	Create(ctx context.Context, profile *users.Profile) error
	UpdateStatus(ctx context.Context, id string, version int, status users.Status) error
	LoadAccounts(ctx context.Context, profile *users.Profile) error
}

// ApprovalRepository is implemented by users.ApprovalStore
type ApprovalRepository interface {
	Create(ctx context.Context, approval *users.ExternalApproval) error
	FindPending(ctx context.Context, id string) (*users.ExternalApproval, error)
	Archive(ctx context.Context, id string, version int) error
}

// TenantSetup is implemented by tenants.Service
type TenantSetup interface {
	SetupTenant(ctx context.Context, name, identifier, ownerID string) (*tenants.Tenant, error)
}

// AccountCreator is implemented by tenants.AccountStore
type AccountCreator interface {
	Create(ctx context.Context, account *tenants.Account) error
}

// DefaultRoles is implemented by rbac.RoleService
type DefaultRoles interface {
	FindDefaultUserRole(ctx context.Context) (*rbac.Role, error)
	FindDefaultAdminRole(ctx context.Context) (*rbac.Role, error)
}
