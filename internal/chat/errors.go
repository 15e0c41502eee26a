package chat

import (
	"errors"
	"fmt"
)

// ErrTargetNotFound is returned when a regeneration target is not present in
// the current history.
var ErrTargetNotFound = errors.New("regeneration target not found")

// ValidationError is a failed send precondition. Non-retryable, surfaced
// immediately.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// NetworkError is a completion call failure that survived the retry budget.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "completion request failed: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ResponseFormatError is a completion response missing usable content.
// Non-retryable and reported distinctly from network failure.
type ResponseFormatError struct {
	Detail string
}

func (e *ResponseFormatError) Error() string {
	return fmt.Sprintf("malformed completion response: %s", e.Detail)
}

// PersistenceError is a storage failure after the result was already shown
// to the user. It is logged, never surfaced, and never retried.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence failed: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }
