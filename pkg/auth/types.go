// Package auth implements signup, email approval and sign-in.
//
// Every workflow that writes runs inside one database transaction obtained from a
// postgres.TxRunner, so a failure in any step leaves no partial user, tenant or
// approval behind.
package auth

import (
	"net/mail"
	"strings"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/token"
	"github.com/platinummonkey/tenantgate/pkg/users"
)

const (
	domain = "auth"

	maxNameLength     = 127
	defaultCodeLength = 6

	// maxPasswordBytes is the longest input bcrypt accepts
	maxPasswordBytes = 72
)

// SignupRequest creates a user without a tenant
type SignupRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	RepeatedPassword string `json:"repeatedPassword"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
}

func (r *SignupRequest) validate() error {
	if !ValidEmail(r.Email) {
		return apperr.Invalid(domain, "email must be a valid email address")
	}
	if r.Password == "" {
		return apperr.Invalid(domain, "password is required")
	}
	if len(r.Password) > maxPasswordBytes {
		return apperr.Invalid(domain, "password must be at most 72 bytes")
	}
	if r.Password != r.RepeatedPassword {
		return apperr.Invalid(domain, "passwords do not match")
	}
	if err := checkLength("firstName", r.FirstName); err != nil {
		return err
	}
	return checkLength("lastName", r.LastName)
}

// TenantSignupRequest creates a user together with a new tenant it administers
type TenantSignupRequest struct {
	SignupRequest
	CompanyName       string `json:"companyName"`
	CompanyIdentifier string `json:"companyIdentifier"`
}

func (r *TenantSignupRequest) validate() error {
	if err := r.SignupRequest.validate(); err != nil {
		return err
	}
	if err := checkLength("companyName", r.CompanyName); err != nil {
		return err
	}
	return checkLength("companyIdentifier", r.CompanyIdentifier)
}

func checkLength(field, value string) error {
	n := len(strings.TrimSpace(value))
	if n == 0 || n > maxNameLength {
		return apperr.Invalid(domain, field+" must be between 1 and 127 characters")
	}
	return nil
}

// ValidEmail reports whether s is a bare email address
func ValidEmail(s string) bool {
	s = users.NormalizeEmail(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@")+1:], ".")
}

// SignupResult is returned by both signup variants. The token payload is issued
// before the email is approved; callers decide whether to gate on approval.
type SignupResult struct {
	ApprovalID string              `json:"approvalId"`
	JWTPayload token.TokensPayload `json:"jwtPayload"`
}

// ApproveRequest consumes an approval challenge
type ApproveRequest struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// SignInRequest authenticates with a password
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest exchanges a refresh token for a new access token
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// FederatedLogin is an identity asserted by a tenant's identity provider
type FederatedLogin struct {
	TenantID   string
	Email      string
	Attributes map[string][]string
}

func trim(s string) string { return strings.TrimSpace(s) }
