package rbac

import (
	"strings"
	"time"
)

// RoleType discriminates default roles
type RoleType string

const (
	RoleTypeAdmin       RoleType = "ADMIN"
	RoleTypeRegularUser RoleType = "REGULAR_USER"
	RoleTypeSuperAdmin  RoleType = "SUPER_ADMIN"
)

// Valid reports whether t is a known role type
func (t RoleType) Valid() bool {
	switch t {
	case RoleTypeAdmin, RoleTypeRegularUser, RoleTypeSuperAdmin:
		return true
	}
	return false
}

// Platform permission actions checked by the HTTP layer
const (
	PermRolesRead        = "platform.roles.read"
	PermRolesCreate      = "platform.roles.create"
	PermRolesUpdate      = "platform.roles.update"
	PermRolesDelete      = "platform.roles.delete"
	PermTenantsConfigure = "platform.tenants.configure"
)

// Role represents a named set of permissions
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	RoleType    *RoleType    `json:"roleType,omitempty"`
	TenantID    *string      `json:"tenantId,omitempty"` // nil for default roles
	Permissions []Permission `json:"permissions,omitempty"`
	Version     int          `json:"version"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// IsDefault reports whether the role is global
func (r *Role) IsDefault() bool {
	return r.TenantID == nil
}

// Permission is an atomic capability addressed by its action
type Permission struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Action      string `json:"action"`
	CategoryID  string `json:"categoryId"`
	Version     int    `json:"version"`
}

// PermissionCategory groups permissions
type PermissionCategory struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RoleInput carries the writable fields of a tenant role
type RoleInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// Page bounds list queries
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Normalize applies the default and maximum limit
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// NormalizeAction lower-cases and trims a permission action
func NormalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}

// normalizeActions returns the distinct non-empty normalized actions, in input order
func normalizeActions(actions []string) []string {
	seen := make(map[string]struct{}, len(actions))
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		n := NormalizeAction(a)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
