package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while executing an operation.
//
// Runtime errors include:
//   - Cascade depth exceeded: the unmark cascade went deeper than allowed
//   - Sweep not converged: the orphan sweep hit its iteration bound
//   - Store failure: a store read or write failed; the index is unchanged
//   - Session errors: no session, a locked session or an unknown alignment
//
// RuntimeError wraps its cause, so errors.Is and errors.As see through it.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Alignment identifies the affected alignment graph.
	Alignment string

	// Term identifies the term being processed, if any.
	Term string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeCascadeDepth indicates the unmark cascade exceeded its depth cap.
	ErrCodeCascadeDepth RuntimeErrorCode = "CASCADE_DEPTH_EXCEEDED"

	// ErrCodeSweepNotConverged indicates the orphan sweep hit its bound.
	ErrCodeSweepNotConverged RuntimeErrorCode = "SWEEP_NOT_CONVERGED"

	// ErrCodeStoreFailure indicates a store read or write failed.
	ErrCodeStoreFailure RuntimeErrorCode = "STORE_FAILURE"

	// ErrCodeSessionLocked indicates another owner holds the session lock.
	ErrCodeSessionLocked RuntimeErrorCode = "SESSION_LOCKED"

	// ErrCodeNoSession indicates an operation needs a loaded session.
	ErrCodeNoSession RuntimeErrorCode = "NO_SESSION"

	// ErrCodeUnknownAlignment indicates the alignment graph is not registered.
	ErrCodeUnknownAlignment RuntimeErrorCode = "UNKNOWN_ALIGNMENT"

	// ErrCodeInvalidEdge indicates an edge failed validation.
	ErrCodeInvalidEdge RuntimeErrorCode = "INVALID_EDGE"
)

// ErrStopped is returned when a command is submitted after Stop.
var ErrStopped = errors.New("engine stopped")

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Alignment != "" && e.Term != "" {
		msg = fmt.Sprintf("%s (alignment=%s, term=%s)", msg, e.Alignment, e.Term)
	} else if e.Alignment != "" {
		msg = fmt.Sprintf("%s (alignment=%s)", msg, e.Alignment)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// HasCode returns true if err is a RuntimeError with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsStoreError returns true if the error is a store failure.
func IsStoreError(err error) bool {
	return HasCode(err, ErrCodeStoreFailure)
}

// IsLimitError returns true if a cascade, sweep or drift walk exceeded its
// bound. Matches RuntimeError limit codes and IterationLimitError.
func IsLimitError(err error) bool {
	if HasCode(err, ErrCodeCascadeDepth) || HasCode(err, ErrCodeSweepNotConverged) {
		return true
	}
	var le *IterationLimitError
	return errors.As(err, &le)
}

func storeError(alignment, termID, op string, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeStoreFailure,
		Message:   op,
		Alignment: alignment,
		Term:      termID,
		Err:       err,
	}
}

func cascadeDepthError(alignment, termID string, depth, limit int) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeCascadeDepth,
		Message:   fmt.Sprintf("unmark cascade exceeded max depth (%d > %d)", depth, limit),
		Alignment: alignment,
		Term:      termID,
	}
}

func noSessionError() *RuntimeError {
	return &RuntimeError{Code: ErrCodeNoSession, Message: "no alignment session loaded"}
}
