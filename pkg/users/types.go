// Package users stores user profiles and their email approval challenges.
package users

import (
	"strings"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/tenants"
)

// Status is the lifecycle state of a user profile
type Status string

const (
	StatusWaitingForEmailApproval Status = "WAITING_FOR_EMAIL_APPROVAL"
	StatusActive                  Status = "ACTIVE"
	StatusDeactivated             Status = "DEACTIVATED"
)

// ApprovalType identifies what an external approval gates
type ApprovalType string

const (
	ApprovalRegistration ApprovalType = "REGISTRATION"
)

// Profile is a global identity. PasswordHash is nil for SSO-only identities.
type Profile struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	PasswordHash *string           `json:"-"`
	FirstName    string            `json:"firstName"`
	LastName     string            `json:"lastName"`
	Status       Status            `json:"status"`
	Version      int               `json:"version"`
	Accounts     []tenants.Account `json:"accounts,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// ExternalApproval is a pending one-shot verification challenge
type ExternalApproval struct {
	ID           string       `json:"id"`
	UserID       string       `json:"userId"`
	Code         string       `json:"-"`
	ApprovalType ApprovalType `json:"approvalType"`
	Version      int          `json:"version"`
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
