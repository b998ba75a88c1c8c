package auth

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
	"github.com/platinummonkey/tenantgate/pkg/token"
	"github.com/platinummonkey/tenantgate/pkg/users"
)

// SignupDeps are the collaborators shared by both signup variants
type SignupDeps struct {
	Users      UserRepository
	Approvals  ApprovalRepository
	Hasher     PasswordHasher
	Builder    token.Builder
	Tx         postgres.TxRunner
	Metrics    *observability.Metrics
	CodeLength int
}

// SignupService registers users that do not create a tenant
type SignupService struct {
	deps SignupDeps
}

// NewSignupService creates a signup service
func NewSignupService(deps SignupDeps) *SignupService {
	if deps.CodeLength <= 0 {
		deps.CodeLength = defaultCodeLength
	}
	return &SignupService{deps: deps}
}

// SignUp creates a user waiting for email approval and its approval challenge
func (s *SignupService) SignUp(ctx context.Context, req SignupRequest) (result *SignupResult, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.SignUp")
	defer func() { observability.EndSpan(span, err) }()
	defer func() { s.deps.Metrics.RecordAuthEvent("signup", outcome(err)) }()

	if err := req.validate(); err != nil {
		return nil, err
	}

	err = s.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		user, approval, err := s.register(ctx, req)
		if err != nil {
			return err
		}

		payload, err := s.deps.Builder.BuildTokensPayload(ctx, user)
		if err != nil {
			return err
		}
		result = &SignupResult{ApprovalID: approval.ID, JWTPayload: payload}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// register runs the steps shared by both variants: uniqueness check, password hash,
// user creation and approval challenge.
func (s *SignupService) register(ctx context.Context, req SignupRequest) (*users.Profile, *users.ExternalApproval, error) {
	email := users.NormalizeEmail(req.Email)

	_, err := s.deps.Users.FindByEmail(ctx, email)
	if err == nil {
		observability.FromContext(ctx).WithField("email", email).Warn("signup with an email that is already registered")
		return nil, nil, apperr.Conflict(domain, "User", "email", email)
	}
	if !errors.Is(err, postgres.ErrNotFound) {
		return nil, nil, err
	}

	hash, err := s.deps.Hasher.Hash(req.Password)
	if err != nil {
		return nil, nil, err
	}

	user := &users.Profile{
		Email:        email,
		PasswordHash: &hash,
		FirstName:    trim(req.FirstName),
		LastName:     trim(req.LastName),
		Status:       users.StatusWaitingForEmailApproval,
	}
	if err := s.deps.Users.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	code, err := GenerateNumericCode(s.deps.CodeLength)
	if err != nil {
		return nil, nil, err
	}
	approval := &users.ExternalApproval{
		UserID:       user.ID,
		Code:         code,
		ApprovalType: users.ApprovalRegistration,
	}
	if err := s.deps.Approvals.Create(ctx, approval); err != nil {
		return nil, nil, err
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"user_id":     user.ID,
		"approval_id": approval.ID,
	}).Info("user registered, waiting for email approval")
	return user, approval, nil
}

// TenantSignupService registers a user together with a tenant it administers
type TenantSignupService struct {
	signup   *SignupService
	tenants  TenantSetup
	accounts AccountCreator
	roles    DefaultRoles
}

// NewTenantSignupService creates a tenant signup service
func NewTenantSignupService(signup *SignupService, tenants TenantSetup, accounts AccountCreator, roles DefaultRoles) *TenantSignupService {
	return &TenantSignupService{signup: signup, tenants: tenants, accounts: accounts, roles: roles}
}

// SignUp registers the user, creates the tenant, binds the user to it with the
// default admin role and builds tokens from the re-read user.
func (s *TenantSignupService) SignUp(ctx context.Context, req TenantSignupRequest) (result *SignupResult, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.SignUpWithTenant",
		attribute.String("tenant.identifier", req.CompanyIdentifier))
	defer func() { observability.EndSpan(span, err) }()
	defer func() { s.signup.deps.Metrics.RecordAuthEvent("signup_tenant", outcome(err)) }()

	if err := req.validate(); err != nil {
		return nil, err
	}

	deps := s.signup.deps
	err = deps.Tx.InTx(ctx, func(ctx context.Context) error {
		user, approval, err := s.signup.register(ctx, req.SignupRequest)
		if err != nil {
			return err
		}

		tenant, err := s.tenants.SetupTenant(ctx, req.CompanyName, req.CompanyIdentifier, user.ID)
		if err != nil {
			return err
		}

		admin, err := s.roles.FindDefaultAdminRole(ctx)
		if err != nil {
			return err
		}

		account := &tenants.Account{
			TenantID:      tenant.ID,
			UserProfileID: user.ID,
			Status:        tenants.AccountActive,
			Roles:         []rbac.Role{*admin},
		}
		if err := s.accounts.Create(ctx, account); err != nil {
			return err
		}

		user, err = reload(ctx, deps.Users, user.ID)
		if err != nil {
			return err
		}

		payload, err := deps.Builder.BuildTokensPayload(ctx, user)
		if err != nil {
			return err
		}
		result = &SignupResult{ApprovalID: approval.ID, JWTPayload: payload}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// reload re-reads a user written in the current transaction with its accounts
func reload(ctx context.Context, repo UserRepository, id string) (*users.Profile, error) {
	user, err := repo.FindByID(ctx, id)
	if errors.Is(err, postgres.ErrNotFound) {
		return nil, apperr.Internal(domain, "user %s vanished inside its own transaction", id)
	}
	if err != nil {
		return nil, err
	}
	if err := repo.LoadAccounts(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
