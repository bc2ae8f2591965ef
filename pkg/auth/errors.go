package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates valid credentials without access to the tenant.
	ErrForbidden = errors.New("forbidden")
)

// AuthorizationError wraps an authorization failure with the reason it was denied.
type AuthorizationError struct {
	Reason string
	Err    error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Reason)
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

func unauthorized(reason string) error {
	return &AuthorizationError{Reason: reason, Err: ErrUnauthorized}
}

func forbidden(reason string) error {
	return &AuthorizationError{Reason: reason, Err: ErrForbidden}
}

// IsUnauthorized checks if an error is due to missing or invalid credentials.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsForbidden checks if an error is due to a caller lacking tenant access.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
