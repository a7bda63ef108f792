/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every business rejection leaving the core is an *Error carrying one of the
  kind sentinels below, plus a message that is safe to show to an end user.

ERROR KINDS:
  ErrValidation    - malformed or policy-violating input (bad date order,
                     past start date, zero chargeable days, minimum stay)
  ErrConflict      - clashes with existing state (overlap, capacity full,
                     balance insufficient, duplicate holiday)
  ErrNotFound      - request, balance row, user or holiday missing
  ErrInvalidState  - operating on a request not in the expected status
  ErrForbidden     - actor may not perform the operation
  ErrIntegrity     - transaction/write failure; infrastructure, not business

STORE SENTINELS:
  Stores never build *Error values. They return ErrRecordNotFound,
  ErrDuplicateRecord or ErrConcurrentModification (wrapped) and the service
  layer turns them into kinds with context.

USAGE:
  if errors.Is(err, generic.ErrConflict) {
      // show generic.Message(err) to the user
  }

SEE ALSO:
  - leave/service.go: Produces these errors
  - api/handlers.go: Maps kinds to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

// Kinds of business errors.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrForbidden    = errors.New("forbidden")
	ErrIntegrity    = errors.New("integrity failure")
)

// Store-level sentinels.
var (
	// ErrRecordNotFound is returned by stores when a row does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrDuplicateRecord is returned when a unique constraint rejects a write
	// (holiday date, employee email, balance user/year, ledger entry key).
	ErrDuplicateRecord = errors.New("duplicate record")

	// ErrConcurrentModification is returned when the database aborts a
	// transaction because of a serialization conflict or lock timeout.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERROR
// =============================================================================

// Error is a classified failure with a user-facing message.
type Error struct {
	Kind    error  // one of the kind sentinels
	Message string // shown verbatim to the caller
	Cause   error  // optional underlying error, never shown
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newError(ErrValidation, format, args...) }
func Conflict(format string, args ...any) *Error   { return newError(ErrConflict, format, args...) }
func NotFound(format string, args ...any) *Error   { return newError(ErrNotFound, format, args...) }
func State(format string, args ...any) *Error      { return newError(ErrInvalidState, format, args...) }
func Forbidden(format string, args ...any) *Error  { return newError(ErrForbidden, format, args...) }

// Integrity wraps an infrastructure failure.
func Integrity(cause error, format string, args ...any) *Error {
	e := newError(ErrIntegrity, format, args...)
	e.Cause = cause
	return e
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// KindOf returns the kind sentinel of err, or nil when err is unclassified.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// Message returns the user-facing message of a classified error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error"
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is a business rejection rather
// than an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrForbidden)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrRecordNotFound)
}
