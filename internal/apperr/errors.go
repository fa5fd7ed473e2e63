package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthenticated         = errors.New("unauthenticated")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrInvalidRefreshToken     = errors.New("invalid refresh token")
	ErrTenantNotSpecified      = errors.New("tenant not specified")
	ErrUnauthorizedTenant      = errors.New("unauthorized tenant")
	ErrMembershipInactive      = errors.New("membership inactive")
	ErrInsufficientPermissions = errors.New("insufficient permissions")

	ErrDuplicate           = errors.New("already exists")
	ErrDuplicateEmail      = duplicate("email already exists")
	ErrDuplicateDomain     = duplicate("tenant domain already exists")
	ErrDuplicatePermission = duplicate("permission already exists")
	ErrDuplicateRole       = duplicate("role already exists")
	ErrDuplicateMembership = duplicate("user is already assigned to this tenant")

	ErrNotFound          = errors.New("not found")
	ErrUnknownPermission = errors.New("unknown permission")
	ErrInvalidInput      = errors.New("invalid input")
	ErrOwnerRoleMissing  = errors.New("owner role not configured")
)

// duplicateError lets every Duplicate* error match ErrDuplicate as well as itself.
type duplicateError struct{ msg string }

func duplicate(msg string) error { return &duplicateError{msg: msg} }

func (e *duplicateError) Error() string { return e.msg }

func (e *duplicateError) Is(target error) bool { return target == ErrDuplicate }

// HTTPStatus maps a domain error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidRefreshToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTenantNotSpecified),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnknownPermission):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorizedTenant),
		errors.Is(err, ErrMembershipInactive),
		errors.Is(err, ErrInsufficientPermissions):
		return http.StatusForbidden
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show to API callers. Internal
// failures are not described.
func PublicMessage(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
