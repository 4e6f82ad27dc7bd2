package event

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Category represents how a handler failure should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: timeouts, temporary resource exhaustion.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: malformed payloads, unknown references.
	CategoryPermanent
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Classifier decides whether a handler failure is worth retrying.
// Each subscription may supply its own; Classify is the default.
type Classifier func(error) Category

// TransientError marks a handler failure as recoverable by retrying.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps an error as transient.
func Transient(err error) *TransientError {
	return &TransientError{Err: err}
}

// PermanentError marks a handler failure as non-recoverable.
type PermanentError struct {
	Err error
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps an error as permanent.
func Permanent(err error) *PermanentError {
	return &PermanentError{Err: err}
}

// Classify determines how a handler failure should be handled.
// Invocation timeouts count as transient; unmarked errors are treated
// as permanent (fail safe).
func Classify(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return CategoryTransient
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return CategoryPermanent
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	return CategoryPermanent
}

// ValidationError reports a malformed event. It is returned
// synchronously from publish and is never retried.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// CircuitOpenError reports a fast-fail: the circuit for a handler is
// open and the handler was not invoked. The pipeline does not
// auto-resubmit; affected events surface through the dead-letter API.
type CircuitOpenError struct {
	Key        string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit open for %s (retry after %s)", e.Key, e.RetryAfter)
	}
	return fmt.Sprintf("circuit open for %s", e.Key)
}

// QueueFullError is the backpressure signal returned synchronously to
// publishers when the ordering queue is at capacity.
type QueueFullError struct {
	Capacity int
}

// Error implements the error interface.
func (e *QueueFullError) Error() string {
	return fmt.Sprintf("ordering queue full (capacity %d)", e.Capacity)
}
