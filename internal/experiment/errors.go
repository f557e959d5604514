package experiment

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes experiment failures.
type ErrorCode string

const (
	// CodeSetupPrecondition indicates the store was not provisioned, e.g. the
	// next_workspace_id row is missing. Never retried.
	CodeSetupPrecondition ErrorCode = "SETUP_PRECONDITION"

	// CodeUnitFailed indicates one concurrent unit could not begin, read, write
	// or commit. The unit's transaction is rolled back.
	CodeUnitFailed ErrorCode = "UNIT_FAILED"

	// CodeInvalidPlan indicates the caller asked for something impossible,
	// e.g. an empty account or a concurrency below one. Nothing touched the
	// store.
	CodeInvalidPlan ErrorCode = "INVALID_PLAN"

	// CodeStore indicates a store failure outside the concurrent units
	// (allocation, seeding, the final read).
	CodeStore ErrorCode = "STORE"
)

// Error is a failure raised by one of the experiment components.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the component operation, e.g. "allocate" or "seed".
	Op string

	// Unit is the index of the failing runner unit, or -1.
	Unit int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Unit >= 0 {
		return fmt.Sprintf("%s: %s unit %d: %v", e.Code, e.Op, e.Unit, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Unit: -1, Err: err}
}

// HasCode reports whether err wraps an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
