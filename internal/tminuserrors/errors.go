// Package tminuserrors defines the error taxonomy of §7: a small set
// of typed errors the coordinator and its collaborators return, each
// carrying the HTTP-equivalent status the RPC surface should map it to.
package tminuserrors

import "fmt"

// ValidationError signals a caller bug: bad IDs, bad enum values,
// self-loop edges, inverted time ranges.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string    { return e.Message }
func (e *ValidationError) StatusCode() int  { return 400 }

// NewValidation builds a ValidationError with a formatted message.
func NewValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError signals the requested entity does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string   { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }
func (e *NotFoundError) StatusCode() int { return 404 }

// NewNotFound builds a NotFoundError.
func NewNotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// InvariantViolationError signals an internal bug: the aborted
// operation left no partial writes behind.
type InvariantViolationError struct {
	Message string
}

func (e *InvariantViolationError) Error() string   { return e.Message }
func (e *InvariantViolationError) StatusCode() int { return 500 }

// NewInvariantViolation builds an InvariantViolationError.
func NewInvariantViolation(format string, args ...interface{}) *InvariantViolationError {
	return &InvariantViolationError{Message: fmt.Sprintf(format, args...)}
}

// AuthRevokedError signals a terminal token-refresh failure; the
// account is marked inactive and its pipelines halt until re-linked.
type AuthRevokedError struct {
	AccountID string
	Reason    string
}

func (e *AuthRevokedError) Error() string {
	return fmt.Sprintf("auth revoked for account %s: %s", e.AccountID, e.Reason)
}
func (e *AuthRevokedError) StatusCode() int { return 401 }

// CursorStaleError signals a provider 410 Gone; triggers SYNC_FULL.
type CursorStaleError struct {
	AccountID string
}

func (e *CursorStaleError) Error() string {
	return fmt.Sprintf("sync cursor stale for account %s", e.AccountID)
}
func (e *CursorStaleError) StatusCode() int { return 410 }

// ProviderTransientError signals a retryable upstream failure.
type ProviderTransientError struct {
	Cause error
}

func (e *ProviderTransientError) Error() string { return fmt.Sprintf("transient provider error: %v", e.Cause) }
func (e *ProviderTransientError) Unwrap() error { return e.Cause }
func (e *ProviderTransientError) StatusCode() int { return 502 }

// ProviderFatalError signals a non-retryable upstream failure; the
// message should go to the dead-letter queue.
type ProviderFatalError struct {
	Cause error
}

func (e *ProviderFatalError) Error() string   { return fmt.Sprintf("fatal provider error: %v", e.Cause) }
func (e *ProviderFatalError) Unwrap() error   { return e.Cause }
func (e *ProviderFatalError) StatusCode() int { return 502 }

// StorageFullError signals the per-user storage limit was reached.
type StorageFullError struct {
	Limit int64
}

func (e *StorageFullError) Error() string {
	return fmt.Sprintf("per-user storage limit of %d reached", e.Limit)
}
func (e *StorageFullError) StatusCode() int { return 507 }

// StatusCoder is implemented by every error in this package so the
// HTTP surface can map an error to a response status without a type
// switch over every concrete type.
type StatusCoder interface {
	StatusCode() int
}

// HTTPStatus extracts the HTTP-equivalent status from any error in
// this taxonomy, defaulting to 500 for anything else (a redacted
// internal failure, per §7's propagation policy).
func HTTPStatus(err error) int {
	if sc, ok := err.(StatusCoder); ok {
		return sc.StatusCode()
	}
	return 500
}
