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

// SAML attribute OIDs for the given name and surname
const (
	OIDFirstName = "urn:oid:2.5.4.42"
	OIDLastName  = "urn:oid:2.5.4.4"

	unknownName = "unknown"
)

// Service authenticates users and issues tokens
type Service struct {
	users     UserRepository
	accounts  AccountCreator
	roles     DefaultRoles
	approvals *ApprovalService
	hasher    PasswordHasher
	builder   token.Builder
	tokens    token.Service
	tx        postgres.TxRunner
	metrics   *observability.Metrics
}

// ServiceDeps are the collaborators of Service
type ServiceDeps struct {
	Users     UserRepository
	Accounts  AccountCreator
	Roles     DefaultRoles
	Approvals *ApprovalService
	Hasher    PasswordHasher
	Builder   token.Builder
	Tokens    token.Service
	Tx        postgres.TxRunner
	Metrics   *observability.Metrics
}

// NewService creates an authentication service
func NewService(deps ServiceDeps) *Service {
	return &Service{
		users:     deps.Users,
		accounts:  deps.Accounts,
		roles:     deps.Roles,
		approvals: deps.Approvals,
		hasher:    deps.Hasher,
		builder:   deps.Builder,
		tokens:    deps.Tokens,
		tx:        deps.Tx,
		metrics:   deps.Metrics,
	}
}

func invalidCredentials(reason string) error {
	return apperr.Unauthorized(domain, apperr.CodeInvalidCredentials, reason)
}

// SignIn checks a password and issues tokens. Every rejection returns the same
// Unauthorized error so callers cannot probe for registered emails.
func (s *Service) SignIn(ctx context.Context, email, password string) (tokens *token.Tokens, err error) {
	defer func() { s.metrics.RecordAuthEvent("signin", outcome(err)) }()

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, postgres.ErrNotFound) {
		return nil, invalidCredentials("unknown email")
	}
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == nil {
		return nil, invalidCredentials("federated user has no password")
	}
	if !s.hasher.Compare(*user.PasswordHash, password) {
		return nil, invalidCredentials("password mismatch")
	}
	if user.Status != users.StatusActive {
		return nil, invalidCredentials("user is not active")
	}

	return s.issue(ctx, user)
}

// RefreshAccessToken issues a new access token for the subject of refreshToken
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (tokens *token.Tokens, err error) {
	defer func() { s.metrics.RecordAuthEvent("refresh", outcome(err)) }()

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, claims.Email)
	if errors.Is(err, postgres.ErrNotFound) {
		return nil, invalidCredentials("refresh token subject no longer exists")
	}
	if err != nil {
		return nil, err
	}
	if user.ID != claims.Subject || user.Status != users.StatusActive {
		return nil, invalidCredentials("refresh token subject is not an active user")
	}

	if err := s.users.LoadAccounts(ctx, user); err != nil {
		return nil, err
	}
	payload, err := s.builder.BuildAccessTokenPayload(ctx, user)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.SignAccess(payload)
	if err != nil {
		return nil, err
	}
	return &token.Tokens{JWTToken: access, RefreshToken: refreshToken}, nil
}

// SignInSAML issues tokens for an identity asserted by the tenant's identity
// provider, creating the user with the default user role on first login.
func (s *Service) SignInSAML(ctx context.Context, login FederatedLogin) (tokens *token.Tokens, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.SignInSAML", attribute.String("tenant.id", login.TenantID))
	defer func() { observability.EndSpan(span, err) }()
	defer func() { s.metrics.RecordAuthEvent("signin_saml", outcome(err)) }()

	logger := observability.FromContext(ctx).WithField("tenant_id", login.TenantID)

	email := users.NormalizeEmail(login.Email)
	if !ValidEmail(email) {
		logger.WithField("email", login.Email).Error("identity provider asserted an invalid email")
		return nil, apperr.Forbidden(domain, "asserted email is not a valid address")
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		user, err := s.users.FindByEmail(ctx, email)
		if errors.Is(err, postgres.ErrNotFound) {
			user, err = s.createFederatedUser(ctx, login.TenantID, email, login.Attributes)
		}
		if err != nil {
			return err
		}

		tokens, err = s.issue(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func (s *Service) createFederatedUser(ctx context.Context, tenantID, email string, attrs map[string][]string) (*users.Profile, error) {
	role, err := s.roles.FindDefaultUserRole(ctx)
	if err != nil {
		return nil, err
	}

	user := &users.Profile{
		Email:     email,
		FirstName: attribute1(ctx, attrs, OIDFirstName),
		LastName:  attribute1(ctx, attrs, OIDLastName),
		Status:    users.StatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.accounts.Create(ctx, &tenants.Account{
		TenantID:      tenantID,
		UserProfileID: user.ID,
		Status:        tenants.AccountActive,
		Roles:         []rbac.Role{*role},
	}); err != nil {
		return nil, err
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"user_id":   user.ID,
		"tenant_id": tenantID,
	}).Info("provisioned federated user")
	return reload(ctx, s.users, user.ID)
}

// attribute1 returns the first non-empty value of an assertion attribute, or
// "unknown" when the identity provider did not send it.
func attribute1(ctx context.Context, attrs map[string][]string, oid string) string {
	for _, v := range attrs[oid] {
		if v = trim(v); v != "" {
			return v
		}
	}
	observability.FromContext(ctx).WithField("attribute", oid).Error("assertion is missing a name attribute, using fallback")
	return unknownName
}

// ApproveSignup consumes an approval challenge; a rejected approval is NotFound
func (s *Service) ApproveSignup(ctx context.Context, id, code string) error {
	ok, err := s.approvals.Approve(ctx, id, code)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound(domain, "ExternalApproval", id)
	}
	return nil
}

func (s *Service) issue(ctx context.Context, user *users.Profile) (*token.Tokens, error) {
	if user.Accounts == nil {
		if err := s.users.LoadAccounts(ctx, user); err != nil {
			return nil, err
		}
	}
	payload, err := s.builder.BuildTokensPayload(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.tokens.Sign(payload)
}
