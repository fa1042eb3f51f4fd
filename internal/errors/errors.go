package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error is the structured error type for Quarry.
// It carries enough context for error handling, logging, and the
// backoff decisions callers make on capacity errors.
type Error struct {
	// Code is the unique error code (e.g., "ERR_601_QUEUE_FULL").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Validation, Capacity, Phase, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error, keeping its message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Validation creates an input validation error.
func Validation(message string, cause error) *Error {
	return New(ErrCodeInvalidInput, message, cause)
}

// Capacity creates a queue-full backpressure error.
func Capacity(message string) *Error {
	return New(ErrCodeQueueFull, message, nil)
}

// Phase creates a terminal ingestion phase failure.
func Phase(phase string, cause error) *Error {
	e := New(ErrCodePhaseFailed, fmt.Sprintf("%s phase failed", phase), cause)
	return e.WithDetail("phase", phase)
}

// Source creates a retrieval/rerank backend unavailability error.
func Source(source string, cause error) *Error {
	e := New(ErrCodeSourceUnavailable, fmt.Sprintf("%s source unavailable", source), cause)
	return e.WithDetail("source", source)
}

// Cancelled creates a caller-initiated abort error.
func Cancelled(message string, cause error) *Error {
	return New(ErrCodeCancelled, message, cause)
}

// IsCapacity reports whether err is a queue-full backpressure error.
func IsCapacity(err error) bool {
	return hasCategory(err, CategoryCapacity)
}

// IsCancelled reports whether err is a caller-initiated abort.
// Plain context errors count: cancellation propagates as ctx.Err()
// through code that never wraps it.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return hasCategory(err, CategoryCancelled)
}

// IsValidation reports whether err is an input validation error.
func IsValidation(err error) bool {
	return hasCategory(err, CategoryValidation)
}

// IsSource reports whether err is a backend unavailability error.
func IsSource(err error) bool {
	return hasCategory(err, CategorySource)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Retryable
	}
	return false
}

// GetCode extracts the error code, or empty string if not an *Error.
func GetCode(err error) string {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

func hasCategory(err error, cat Category) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Category == cat
	}
	return false
}
