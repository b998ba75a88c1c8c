// Package tenants manages tenants and the accounts that bind users to them.
//
// A user joins a tenant through exactly one Account per (tenant, user) pair; the
// account carries the roles the user holds in that tenant.
package tenants

import (
	"time"

	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// Status is the lifecycle state of a tenant
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// AccountStatus is the lifecycle state of a tenant account
type AccountStatus string

const (
	AccountActive   AccountStatus = "ACTIVE"
	AccountInactive AccountStatus = "INACTIVE"
)

// Tenant is an isolated organization
type Tenant struct {
	ID                 string    `json:"id"`
	Name               string    `json:"tenantName"`
	FriendlyIdentifier string    `json:"tenantFriendlyIdentifier"`
	Status             Status    `json:"tenantStatus"`
	OwnerID            string    `json:"ownerId"`
	Version            int       `json:"version"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Account binds one user to one tenant with a set of roles
type Account struct {
	ID            string        `json:"id"`
	TenantID      string        `json:"tenantId"`
	UserProfileID string        `json:"userProfileId"`
	Status        AccountStatus `json:"userStatus"`
	Roles         []rbac.Role   `json:"roles"`
	Version       int           `json:"version"`
}

// RoleIDs returns the ids of the account roles
func (a *Account) RoleIDs() []string {
	ids := make([]string, len(a.Roles))
	for i, r := range a.Roles {
		ids[i] = r.ID
	}
	return ids
}
