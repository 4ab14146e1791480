package auth

import (
	"fmt"
)

// Error reports a credential acquisition or signing failure. It is the only
// error type this package returns once a provider has been selected: callers
// can rely on errors.As to distinguish credential failures from transport
// failures.
type Error struct {
	// Provider is the cloud provider the failure belongs to, empty when the
	// failure is mode-level (e.g. signing requested on a non-signing mode).
	Provider CloudProvider

	// Op names the operation that failed (e.g. "metadata token", "sign request").
	Op string

	// Message is a human-readable cause safe to log; credential material is
	// never included.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("authentication failed: %s", e.Message)
	if e.Provider != "" {
		msg = fmt.Sprintf("authentication failed [%s]: %s", e.Provider, e.Message)
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Op)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(provider CloudProvider, op, message string, cause error) *Error {
	return &Error{Provider: provider, Op: op, Message: message, Cause: cause}
}
