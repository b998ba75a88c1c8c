package token

import (
	"context"
	"fmt"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/users"
)

const domain = "token"

// Mode names a Builder
const (
	ModeNoTenant     = "none"
	ModeSingleTenant = "single"
	ModeMultiTenant  = "multi"
)

// Builder maps an identity, with its accounts loaded, to token payloads
type Builder interface {
	BuildAccessTokenPayload(ctx context.Context, user *users.Profile) (AccessPayload, error)
	BuildRefreshTokenPayload(user *users.Profile) RefreshPayload
	BuildTokensPayload(ctx context.Context, user *users.Profile) (TokensPayload, error)
}

// NewBuilder returns the builder for mode
func NewBuilder(mode string) (Builder, error) {
	switch mode {
	case ModeNoTenant:
		return NoTenantBuilder{}, nil
	case ModeSingleTenant:
		return SingleTenantBuilder{}, nil
	case ModeMultiTenant:
		return MultiTenantBuilder{}, nil
	}
	return nil, fmt.Errorf("unknown token mode %q", mode)
}

func basePayload(user *users.Profile) BasePayload {
	return BasePayload{
		Sub:       user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

func refreshPayload(user *users.Profile) RefreshPayload {
	return RefreshPayload{Sub: user.ID, Email: user.Email}
}

func tokensPayload(ctx context.Context, b Builder, user *users.Profile) (TokensPayload, error) {
	access, err := b.BuildAccessTokenPayload(ctx, user)
	if err != nil {
		return TokensPayload{}, err
	}
	return TokensPayload{Access: access, Refresh: b.BuildRefreshTokenPayload(user)}, nil
}

// NoTenantBuilder issues identity-only tokens
type NoTenantBuilder struct{}

// BuildAccessTokenPayload implements Builder
func (NoTenantBuilder) BuildAccessTokenPayload(_ context.Context, user *users.Profile) (AccessPayload, error) {
	return basePayload(user), nil
}

// BuildRefreshTokenPayload implements Builder
func (NoTenantBuilder) BuildRefreshTokenPayload(user *users.Profile) RefreshPayload {
	return refreshPayload(user)
}

// BuildTokensPayload implements Builder
func (b NoTenantBuilder) BuildTokensPayload(ctx context.Context, user *users.Profile) (TokensPayload, error) {
	return tokensPayload(ctx, b, user)
}

// SingleTenantBuilder requires exactly one account per user
type SingleTenantBuilder struct{}

// BuildAccessTokenPayload fails with an internal error unless the user holds
// exactly one account; it never picks one of several.
func (SingleTenantBuilder) BuildAccessTokenPayload(ctx context.Context, user *users.Profile) (AccessPayload, error) {
	if len(user.Accounts) != 1 {
		observability.FromContext(ctx).WithFields(map[string]interface{}{
			"user_id":  user.ID,
			"accounts": len(user.Accounts),
		}).Error("single tenant deployment found a user without exactly one tenant account")
		return nil, apperr.Internal(domain, "user %s has %d tenant accounts, expected exactly one", user.ID, len(user.Accounts))
	}

	account := user.Accounts[0]
	roles := make([]RoleRef, len(account.Roles))
	for i, r := range account.Roles {
		roles[i] = RoleRef{RoleID: r.ID}
	}

	return SingleTenantPayload{
		BasePayload: basePayload(user),
		TenantID:    account.TenantID,
		Roles:       roles,
	}, nil
}

// BuildRefreshTokenPayload implements Builder
func (SingleTenantBuilder) BuildRefreshTokenPayload(user *users.Profile) RefreshPayload {
	return refreshPayload(user)
}

// BuildTokensPayload implements Builder
func (b SingleTenantBuilder) BuildTokensPayload(ctx context.Context, user *users.Profile) (TokensPayload, error) {
	return tokensPayload(ctx, b, user)
}

// MultiTenantBuilder lists every membership of the user
type MultiTenantBuilder struct{}

// BuildAccessTokenPayload implements Builder
func (MultiTenantBuilder) BuildAccessTokenPayload(_ context.Context, user *users.Profile) (AccessPayload, error) {
	tenants := make([]TenantRef, len(user.Accounts))
	for i, account := range user.Accounts {
		roles := make([]TypedRoleRef, len(account.Roles))
		for j, r := range account.Roles {
			roles[j] = TypedRoleRef{RoleID: r.ID, RoleType: r.RoleType}
		}
		tenants[i] = TenantRef{TenantID: account.TenantID, Roles: roles}
	}

	return MultiTenantPayload{BasePayload: basePayload(user), Tenants: tenants}, nil
}

// BuildRefreshTokenPayload implements Builder
func (MultiTenantBuilder) BuildRefreshTokenPayload(user *users.Profile) RefreshPayload {
	return refreshPayload(user)
}

// BuildTokensPayload implements Builder
func (b MultiTenantBuilder) BuildTokensPayload(ctx context.Context, user *users.Profile) (TokensPayload, error) {
	return tokensPayload(ctx, b, user)
}
