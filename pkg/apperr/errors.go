// Package apperr defines the error kinds shared by every domain package and their
// mapping onto HTTP responses.
//
// Errors are built with samber/oops so that they carry the originating domain and
// structured attributes for logging, while the sentinel kinds stay reachable through
// errors.Is:
//
//	err := apperr.Conflict("signup", "User", "email", email)
//	errors.Is(err, apperr.ErrConflict) // true
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/oops"
)

// Error kinds
var (
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrInvalid      = errors.New("invalid request")
	ErrInternal     = errors.New("internal error")
)

// Machine readable codes returned alongside unauthorized responses
const (
	CodeMissingStateData          = "MISSING_STATE_DATA"
	CodeSAMLAuthenticationFailure = "SAML_AUTHENTICATION_FAILURE"
	CodeInvalidCredentials        = "INVALID_CREDENTIALS"
	CodeInvalidToken              = "INVALID_TOKEN"
)

// publicError carries the caller-facing code and message of an error.
type publicError struct {
	code    string
	message string
	err     error
}

func (e *publicError) Error() string {
	if e.message == "" {
		return e.err.Error()
	}
	return e.message
}

func (e *publicError) Unwrap() error { return e.err }

func withPublic(kind error, code, message string) error {
	return &publicError{code: code, message: message, err: kind}
}

// Conflict reports that entity already holds value in field.
func Conflict(domain, entity, field, value string) error {
	msg := fmt.Sprintf("%s with %s %q already exists", entity, field, value)
	return oops.In(domain).
		With("entity", entity, "field", field).
		Wrapf(withPublic(ErrConflict, "", msg), "conflict")
}

// VersionConflict reports a stale optimistic-lock version.
func VersionConflict(domain, entity, id string, version int) error {
	msg := fmt.Sprintf("%s %s was modified concurrently", entity, id)
	return oops.In(domain).
		With("entity", entity, "id", id, "version", version).
		Wrapf(withPublic(ErrConflict, "", msg), "version conflict")
}

// NotFound reports that no entity with id is visible to the caller.
func NotFound(domain, entity, id string) error {
	msg := fmt.Sprintf("%s %s not found", entity, id)
	return oops.In(domain).
		With("entity", entity, "id", id).
		Wrapf(withPublic(ErrNotFound, "", msg), "not found")
}

// Unauthorized builds an authentication failure. The reason is kept for logs only.
func Unauthorized(domain, code, reason string) error {
	return oops.In(domain).
		With("reason", reason).
		Wrapf(withPublic(ErrUnauthorized, code, ""), "unauthorized")
}

// Forbidden reports an authenticated caller that may not perform the action.
func Forbidden(domain, reason string) error {
	return oops.In(domain).
		With("reason", reason).
		Wrapf(withPublic(ErrForbidden, "", ""), "forbidden")
}

// Invalid reports a malformed request; message is returned to the caller.
func Invalid(domain, message string) error {
	return oops.In(domain).Wrapf(withPublic(ErrInvalid, "", message), "invalid request")
}

// Internal reports a broken configuration or data-integrity invariant.
func Internal(domain, format string, args ...any) error {
	return oops.In(domain).
		Hint("check default roles and tenant memberships").
		Wrapf(ErrInternal, format, args...)
}

// Kind returns the sentinel kind of err, defaulting to ErrInternal.
func Kind(err error) error {
	for _, kind := range []error{ErrConflict, ErrUnauthorized, ErrForbidden, ErrNotFound, ErrInvalid, ErrInternal} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInternal
}

// HTTPStatus maps err onto a response status code.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case ErrConflict:
		return http.StatusConflict
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine readable code attached to err, if any.
func Code(err error) string {
	var pe *publicError
	if errors.As(err, &pe) {
		return pe.code
	}
	return ""
}

// PublicMessage returns the message that is safe to show to the caller.
// Authentication and internal failures never expose their cause.
func PublicMessage(err error) string {
	switch Kind(err) {
	case ErrUnauthorized:
		return "unauthorized"
	case ErrForbidden:
		return "forbidden"
	case ErrInternal:
		return "internal server error"
	}
	var pe *publicError
	if errors.As(err, &pe) && pe.message != "" {
		return pe.message
	}
	return Kind(err).Error()
}
