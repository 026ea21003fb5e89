// Package apperror defines the error kinds shared by every layer.
//
// Services and repositories return *AppError values; handlers and the CLI
// map them to status codes or exit messages with errors.Is against the
// sentinels below.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("Validation Error")
	ErrConflict         = errors.New("conflict")
	ErrForbidden        = errors.New("forbidden")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrStoreUnavailable = errors.New("store unavailable")
)

type AppError struct {
	Err     error  // error kind, one of the sentinels above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying driver or network error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause, so errors.Is matches
// apperror.ErrStoreUnavailable as well as context.DeadlineExceeded.
func (e *AppError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// NotAuthenticated is returned by every mutating operation called without a user.
func NotAuthenticated() *AppError {
	return &AppError{
		Err:     ErrNotAuthenticated,
		Message: "an authenticated user is required",
	}
}

// StoreUnavailable wraps a failed store call. op names the operation
// ("creating streak", "listing badges") and shows up in logs.
func StoreUnavailable(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStoreUnavailable,
		Message: op + " failed",
		Cause:   cause,
	}
}

// Is reports whether err carries any of the given kinds.
func Is(err error, kinds ...error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
