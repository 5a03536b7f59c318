// Package apperror defines the failure taxonomy of the collection pipeline.
//
// Auth failures are non-retryable and abort a run. Transient failures are
// retried with backoff and then degrade a single organization. Parse failures
// capture the offending payload for diagnostics. Storage failures degrade the
// run without stopping collection for other organizations.
package apperror

import (
	"errors"
	"fmt"
)

// AuthError indicates rejected credentials. It aborts the whole run.
type AuthError struct {
	StatusCode int
	Cause      error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed (status %d): %v", e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("authentication failed (status %d)", e.StatusCode)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// TransientError indicates a retryable condition that exhausted its retry
// budget. It degrades one organization without aborting the batch.
type TransientError struct {
	OrgID    string
	Attempts int
	Cause    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure for %s after %d attempts: %v", e.OrgID, e.Attempts, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// ParseError indicates a malformed or unexpected API response. The raw
// payload is kept (truncated) for diagnostics.
type ParseError struct {
	OrgID string
	Raw   []byte
	Cause error
}

const maxRawCapture = 2048

func NewParseError(orgID string, raw []byte, cause error) *ParseError {
	if len(raw) > maxRawCapture {
		raw = raw[:maxRawCapture]
	}
	captured := make([]byte, len(raw))
	copy(captured, raw)
	return &ParseError{OrgID: orgID, Raw: captured, Cause: cause}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unexpected response shape for %s: %v", e.OrgID, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// StorageError indicates a snapshot or alert store I/O failure.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

func IsTransient(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

func IsParse(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}
