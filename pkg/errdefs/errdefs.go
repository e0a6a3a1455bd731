// Package errdefs defines the error taxonomy shared across the service.
//
// Handlers map these sentinels to HTTP status codes; lower layers wrap them
// with context via fmt.Errorf and %w so callers can classify with errors.Is.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated indicates a missing, malformed, or expired credential,
	// or a token that references a user that no longer exists.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden indicates a valid identity with insufficient rights.
	// Callers must check identity before permission, so an anonymous request
	// never surfaces as ErrForbidden.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates a referenced entity does not exist or is inactive.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation (duplicate email, role name, etc).
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates malformed or out-of-bounds input.
	ErrValidation = errors.New("validation failed")

	// ErrStorage indicates the backing object store is unreachable or a write
	// failed. Distinct from ErrNotFound: unavailable vs. legitimately absent.
	ErrStorage = errors.New("storage failure")
)

// Unauthenticated wraps ErrUnauthenticated with a formatted message.
func Unauthenticated(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrUnauthenticated)...)
}

// Forbidden wraps ErrForbidden with a formatted message.
func Forbidden(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrForbidden)...)
}

// NotFound wraps ErrNotFound with a formatted message.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Conflict wraps ErrConflict with a formatted message.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// Validation wraps ErrValidation with a formatted message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// Storage wraps ErrStorage with a formatted message.
func Storage(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrStorage)...)
}

// IsUnauthenticated reports whether err is classified as an authentication failure.
func IsUnauthenticated(err error) bool { return errors.Is(err, ErrUnauthenticated) }

// IsForbidden reports whether err is classified as an authorization failure.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsNotFound reports whether err is classified as a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is classified as a uniqueness violation.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsValidation reports whether err is classified as invalid input.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsStorage reports whether err is classified as an object-store failure.
func IsStorage(err error) bool { return errors.Is(err, ErrStorage) }
