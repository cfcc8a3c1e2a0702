package scope

import (
	"errors"
	"fmt"
)

const Namespace = "scope"

var (
	// ErrCancelled is the cancellation sentinel. Every error produced
	// by scope cancellation matches it under errors.Is, and nothing
	// else does; the fault classifier relies on that exclusivity.
	ErrCancelled = errors.New(Namespace + ": cancelled")

	// ErrAdmissionClosed reports a spawn or child attachment against a
	// scope that is no longer running.
	ErrAdmissionClosed = errors.New(Namespace + ": admission closed")
)

// CancelError carries the reason a scope became not-ok. It matches
// ErrCancelled under errors.Is and unwraps to the reason.
type CancelError struct {
	Reason error
}

// Error implements the error interface.
func (e *CancelError) Error() string {
	if e.Reason == nil {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s: cancelled: %v", Namespace, e.Reason)
}

// Is reports whether target is the cancellation sentinel.
func (e *CancelError) Is(target error) bool { return target == ErrCancelled }

// Unwrap returns the cancellation reason.
func (e *CancelError) Unwrap() error { return e.Reason }

// Cancelled wraps reason in the cancellation sentinel. A reason that
// already is a cancellation is returned unchanged.
func Cancelled(reason error) error {
	if reason == nil {
		return ErrCancelled
	}
	if IsCancellation(reason) {
		return reason
	}
	return &CancelError{Reason: reason}
}

// IsCancellation reports whether err was produced by scope
// cancellation rather than a fault.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// asError converts a committed any value back to an error; nil stays
// nil.
func asError(v any) error {
	if v == nil {
		return nil
	}
	return v.(error)
}
