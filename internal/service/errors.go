package service

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes returned by the floor workflows. Transport failures are
// the gateway package's ErrUnavailable / *gateway.APIError, wrapped.
var (
	ErrPrecondition   = errors.New("precondition failed")
	ErrPartialFailure = errors.New("partial failure")
	ErrForbidden      = errors.New("session may not operate the floor")
	ErrInvalidStatus  = errors.New("invalid table status")
	ErrEmptyOrder     = errors.New("order has no line items")
	ErrInvalidMethod  = errors.New("invalid payment method")
)

// PreconditionError rejects an operation before any gateway call because
// the entity is not in the required state.
type PreconditionError struct {
	Op     string
	Reason string
	// Cause is an optional more specific sentinel (e.g. ErrEmptyOrder).
	Cause error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition || (e.Cause != nil && errors.Is(e.Cause, target))
}

func precondition(op, format string, args ...interface{}) error {
	return &PreconditionError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// PartialFailureError reports a multi-step operation that stopped after
// some steps had already taken effect at the gateway. The operator may need
// to clean up the listed artefacts by hand.
type PartialFailureError struct {
	Op         string
	Completed  []string
	FailedStep string
	CustomerID int64
	OrderID    int64
	Err        error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s: %s failed after [%s]: %v",
		e.Op, e.FailedStep, strings.Join(e.Completed, ", "), e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

func (e *PartialFailureError) Is(target error) bool { return target == ErrPartialFailure }

func isPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}
