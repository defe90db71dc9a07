package utils

import "fmt"

// AppError annotates a failure with the engine operation that produced it
// (dotted package.verb names like "lifecycle.create" or
// "recovery.run_strategy") and a short operator-facing message. The
// underlying cause stays reachable through Unwrap, so sentinel checks
// against the domain taxonomy keep working across the wrap.
type AppError struct {
	Op  string // operation that failed
	Msg string // short operator-facing summary
	Err error  // underlying cause, may be nil
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Msg
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

// Unwrap exposes the cause for errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError wraps err with operation context.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}
