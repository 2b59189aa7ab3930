// Package memerr defines the error taxonomy shared by the memory engine.
package memerr

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a miss: unknown id, or an id outside the caller's
// owner scope. Callers surface it as absence, not as a failure.
var ErrNotFound = errors.New("not found")

// ErrConflict marks a lost supersede race: the target record was
// invalidated by a concurrent writer. It is recovered internally by
// retrying as a fresh similarity lookup and never reaches callers.
var ErrConflict = errors.New("conflict")

// ValidationError reports malformed caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// UpstreamError reports a failure of an external provider (embedding or
// extraction). Fatal to the single operation in progress.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream wraps err as a provider failure.
func Upstream(provider string, err error) error {
	return &UpstreamError{Provider: provider, Err: err}
}

// IsUpstream reports whether err is a provider failure.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// IsValidation reports whether err is a caller-input failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
