package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
	"github.com/platinummonkey/tenantgate/pkg/token"
	"github.com/platinummonkey/tenantgate/pkg/users"
)

// world is an in-memory store shared by the fakes below. memTx snapshots it so a
// failing unit of work leaves no trace, like a rolled back transaction.
type world struct {
	users     map[string]users.Profile
	approvals map[string]approvalRow
	tenants   map[string]tenants.Tenant
	accounts  []tenants.Account
	roles     map[rbac.RoleType]rbac.Role
}

type approvalRow struct {
	users.ExternalApproval
	archived bool
}

func newWorld() *world {
	admin, regular := rbac.RoleTypeAdmin, rbac.RoleTypeRegularUser
	return &world{
		users:     map[string]users.Profile{},
		approvals: map[string]approvalRow{},
		tenants:   map[string]tenants.Tenant{},
		roles: map[rbac.RoleType]rbac.Role{
			admin:   {ID: uuid.NewString(), Name: "Admin", RoleType: &admin, Version: 1},
			regular: {ID: uuid.NewString(), Name: "User", RoleType: &regular, Version: 1},
		},
	}
}

func (w *world) clone() *world {
	c := &world{
		users:     make(map[string]users.Profile, len(w.users)),
		approvals: make(map[string]approvalRow, len(w.approvals)),
		tenants:   make(map[string]tenants.Tenant, len(w.tenants)),
		accounts:  append([]tenants.Account(nil), w.accounts...),
		roles:     make(map[rbac.RoleType]rbac.Role, len(w.roles)),
	}
	for k, v := range w.users {
		c.users[k] = v
	}
	for k, v := range w.approvals {
		c.approvals[k] = v
	}
	for k, v := range w.tenants {
		c.tenants[k] = v
	}
	for k, v := range w.roles {
		c.roles[k] = v
	}
	return c
}

type memTx struct{ w *world }

func (t memTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.w.clone()
	if err := fn(ctx); err != nil {
		*t.w = *snap
		return err
	}
	return nil
}

type fakeUsers struct{ w *world }

func (f fakeUsers) FindByEmail(_ context.Context, email string) (*users.Profile, error) {
	email = users.NormalizeEmail(email)
	for _, u := range f.w.users {
		if u.Email == email {
			cp := u
			return &cp, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (f fakeUsers) FindByID(_ context.Context, id string) (*users.Profile, error) {
	u, ok := f.w.users[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return &u, nil
}

func (f fakeUsers) Create(ctx context.Context, p *users.Profile) error {
	p.Email = users.NormalizeEmail(p.Email)
	if _, err := f.FindByEmail(ctx, p.Email); err == nil {
		return apperr.Conflict("users", "User", "email", p.Email)
	}
	p.ID = uuid.NewString()
	p.Version = 1
	p.CreatedAt = time.Now()
	stored := *p
	stored.Accounts = nil
	f.w.users[p.ID] = stored
	return nil
}

func (f fakeUsers) UpdateStatus(_ context.Context, id string, version int, status users.Status) error {
	u, ok := f.w.users[id]
	if !ok {
		return postgres.ErrNotFound
	}
	if u.Version != version {
		return postgres.ErrVersionMismatch
	}
	u.Status = status
	u.Version++
	f.w.users[id] = u
	return nil
}

func (f fakeUsers) LoadAccounts(_ context.Context, p *users.Profile) error {
	p.Accounts = []tenants.Account{}
	for _, a := range f.w.accounts {
		if a.UserProfileID == p.ID {
			p.Accounts = append(p.Accounts, a)
		}
	}
	return nil
}

type fakeApprovals struct{ w *world }

func (f fakeApprovals) Create(_ context.Context, a *users.ExternalApproval) error {
	a.ID = uuid.NewString()
	a.Version = 1
	f.w.approvals[a.ID] = approvalRow{ExternalApproval: *a}
	return nil
}

func (f fakeApprovals) FindPending(_ context.Context, id string) (*users.ExternalApproval, error) {
	row, ok := f.w.approvals[id]
	if !ok || row.archived {
		return nil, postgres.ErrNotFound
	}
	a := row.ExternalApproval
	return &a, nil
}

func (f fakeApprovals) Archive(_ context.Context, id string, version int) error {
	row, ok := f.w.approvals[id]
	if !ok || row.archived {
		return postgres.ErrNotFound
	}
	if row.Version != version {
		return postgres.ErrVersionMismatch
	}
	row.archived = true
	row.Version++
	f.w.approvals[id] = row
	return nil
}

type fakeTenantRepo struct{ w *world }

func (f fakeTenantRepo) CountByFriendlyIdentifier(_ context.Context, identifier string) (int, error) {
	n := 0
	for _, t := range f.w.tenants {
		if t.FriendlyIdentifier == identifier {
			n++
		}
	}
	return n, nil
}

func (f fakeTenantRepo) Create(_ context.Context, t *tenants.Tenant) error {
	t.ID = uuid.NewString()
	t.Version = 1
	f.w.tenants[t.ID] = *t
	return nil
}

type fakeAccounts struct{ w *world }

func (f fakeAccounts) Create(_ context.Context, a *tenants.Account) error {
	for _, existing := range f.w.accounts {
		if existing.TenantID == a.TenantID && existing.UserProfileID == a.UserProfileID {
			return apperr.Conflict("tenants", "UserTenantAccount", "tenantId", a.TenantID)
		}
	}
	a.ID = uuid.NewString()
	a.Version = 1
	f.w.accounts = append(f.w.accounts, *a)
	return nil
}

type fakeDefaultRoles struct{ w *world }

func (f fakeDefaultRoles) find(rt rbac.RoleType) (*rbac.Role, error) {
	r, ok := f.w.roles[rt]
	if !ok {
		return nil, apperr.Internal("rbac", "default %s role is missing", rt)
	}
	return &r, nil
}

func (f fakeDefaultRoles) FindDefaultUserRole(context.Context) (*rbac.Role, error) {
	return f.find(rbac.RoleTypeRegularUser)
}

func (f fakeDefaultRoles) FindDefaultAdminRole(context.Context) (*rbac.Role, error) {
	return f.find(rbac.RoleTypeAdmin)
}

// env wires every service of the package over one world
type env struct {
	w            *world
	signup       *SignupService
	tenantSignup *TenantSignupService
	approvals    *ApprovalService
	service      *Service
	tokens       *token.JWTService
}

func newEnv(t *testing.T, mode string) *env {
	t.Helper()

	w := newWorld()
	builder, err := token.NewBuilder(mode)
	require.NoError(t, err)
	tokens, err := token.NewJWTService(token.JWTConfig{
		Secret:     "0123456789abcdef0123456789abcdef",
		Issuer:     "tenantgate-test",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
	require.NoError(t, err)

	tx := memTx{w: w}
	hasher := NewBcryptHasher(4)
	signup := NewSignupService(SignupDeps{
		Users:     fakeUsers{w},
		Approvals: fakeApprovals{w},
		Hasher:    hasher,
		Builder:   builder,
		Tx:        tx,
	})
	approvals := NewApprovalService(fakeUsers{w}, fakeApprovals{w}, tx, nil)

	return &env{
		w:            w,
		signup:       signup,
		tenantSignup: NewTenantSignupService(signup, tenants.NewService(fakeTenantRepo{w}), fakeAccounts{w}, fakeDefaultRoles{w}),
		approvals:    approvals,
		service: NewService(ServiceDeps{
			Users:     fakeUsers{w},
			Accounts:  fakeAccounts{w},
			Roles:     fakeDefaultRoles{w},
			Approvals: approvals,
			Hasher:    hasher,
			Builder:   builder,
			Tokens:    tokens,
			Tx:        tx,
		}),
		tokens: tokens,
	}
}

func signupRequest(email string) SignupRequest {
	return SignupRequest{
		Email:            email,
		Password:         "s3cret-pass",
		RepeatedPassword: "s3cret-pass",
		FirstName:        "Ann",
		LastName:         "Lee",
	}
}
