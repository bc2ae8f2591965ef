package actions

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates an action block whose configuration cannot be parsed.
	ErrInvalidConfig = errors.New("invalid action config")

	// ErrMissingRecipient indicates the resolved recipient of a message is empty.
	ErrMissingRecipient = errors.New("missing recipient")

	// ErrProviderNotConfigured indicates a live action has no collaborator wired.
	ErrProviderNotConfigured = errors.New("provider not configured")
)

// ProviderError is a failure reported by a downstream email, SMS or webhook provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider returned status %d: %v", e.Provider, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("%s provider failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError checks if an error was reported by a downstream provider.
func IsProviderError(err error) bool {
	var providerErr *ProviderError

	return errors.As(err, &providerErr)
}

// IsMissingRecipient checks if an error indicates an empty resolved recipient.
func IsMissingRecipient(err error) bool {
	return errors.Is(err, ErrMissingRecipient)
}
