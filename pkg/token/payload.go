// Package token builds and signs session tokens.
//
// The shape of the access token depends on the tenancy model of the deployment and
// is fixed once at start-up by choosing a Builder:
//
//	none    {sub, email, firstName, lastName}
//	single  ... + {tenantId, roles: [{roleId}]}
//	multi   ... + {tenants: [{tenantId, roles: [{roleId, roleType}]}]}
//
// Refresh tokens always carry {sub, email} only, so they never hold tenant or role
// data that could go stale.
package token

import "github.com/platinummonkey/tenantgate/pkg/rbac"

// AccessPayload is one of BasePayload, SingleTenantPayload or MultiTenantPayload
type AccessPayload interface {
	Base() BasePayload
}

// BasePayload is the identity part shared by every access token shape
type BasePayload struct {
	Sub       string `json:"sub"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Base implements AccessPayload
func (p BasePayload) Base() BasePayload { return p }

// RoleRef references a role in a single tenant token
type RoleRef struct {
	RoleID string `json:"roleId"`
}

// SingleTenantPayload is issued when every user belongs to exactly one tenant
type SingleTenantPayload struct {
	BasePayload
	TenantID string    `json:"tenantId"`
	Roles    []RoleRef `json:"roles"`
}

// TypedRoleRef references a role and its type in a multi tenant token
type TypedRoleRef struct {
	RoleID   string         `json:"roleId"`
	RoleType *rbac.RoleType `json:"roleType,omitempty"`
}

// TenantRef is one tenant membership in a multi tenant token
type TenantRef struct {
	TenantID string         `json:"tenantId"`
	Roles    []TypedRoleRef `json:"roles"`
}

// MultiTenantPayload carries every membership of the user
type MultiTenantPayload struct {
	BasePayload
	Tenants []TenantRef `json:"tenants"`
}

// RefreshPayload is the uniform refresh token payload
type RefreshPayload struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

// TokensPayload pairs the payloads of an access and a refresh token
type TokensPayload struct {
	Access  AccessPayload  `json:"access"`
	Refresh RefreshPayload `json:"refresh"`
}
