// ABOUTME: Error taxonomy for admin provisioning outcomes
// ABOUTME: Each failure kind maps to one HTTP status and one gRPC code

package provision

import (
	"errors"
	"net/http"
)

// Kind classifies a provisioning failure.
type Kind string

const (
	KindAuthentication  Kind = "authentication"
	KindPermissionCheck Kind = "permission_check"
	KindAuthorization   Kind = "authorization"
	KindValidation      Kind = "validation"
	KindCreation        Kind = "creation"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal"
)

// Error is implemented by every taxonomy error.
type Error interface {
	error
	Kind() Kind
}

// AuthenticationError means the bearer token was missing or could not be verified.
type AuthenticationError struct {
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string { return e.Message }
func (e *AuthenticationError) Unwrap() error { return e.Err }
func (e *AuthenticationError) Kind() Kind    { return KindAuthentication }

// PermissionCheckError means the role lookup itself failed. It is not a denial.
type PermissionCheckError struct {
	Message string
	Err     error
}

func (e *PermissionCheckError) Error() string { return e.Message }
func (e *PermissionCheckError) Unwrap() error { return e.Err }
func (e *PermissionCheckError) Kind() Kind    { return KindPermissionCheck }

// AuthorizationError means the caller was verified but is not an admin.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string { return e.Message }
func (e *AuthorizationError) Kind() Kind    { return KindAuthorization }

// ValidationError names the first input field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Kind() Kind    { return KindValidation }

// Creation steps, in execution order.
const (
	StepCreateIdentity = "create_identity"
	StepUpsertProfile  = "upsert_profile"
	StepGrantRole      = "grant_role"
)

// CreationError means one of the write steps failed. Records written by
// earlier steps persist unless rollback is enabled; Compensation holds any
// error raised while removing them.
type CreationError struct {
	Step         string
	Message      string
	Err          error
	RolledBack   bool
	Compensation error
}

func (e *CreationError) Error() string { return e.Message }
func (e *CreationError) Unwrap() error { return e.Err }
func (e *CreationError) Kind() Kind    { return KindCreation }

// NotFoundError means the target of a management operation does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }
func (e *NotFoundError) Kind() Kind    { return KindNotFound }

// InternalError covers unexpected failures outside the other kinds.
type InternalError struct {
	Message string
	Err     error
}

func (e *InternalError) Error() string { return e.Message }
func (e *InternalError) Unwrap() error { return e.Err }
func (e *InternalError) Kind() Kind    { return KindInternal }

// KindOf returns the taxonomy kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var pe Error
	if errors.As(err, &pe) {
		return pe.Kind()
	}
	return KindInternal
}

// StatusCode maps err to the HTTP status reported to callers.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindPermissionCheck:
		return http.StatusInternalServerError
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation, KindCreation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
