package domain

import "errors"

// Error categories shared across components. Packages wrap these with
// fmt.Errorf("...: %w", ...) and the HTTP layer maps them to status codes.
var (
	// ErrValidation marks a request rejected before any work started.
	ErrValidation = errors.New("validation failed")

	// ErrExecution marks a backtest run that started and then failed. It
	// surfaces as a FAILED job, never as a crash.
	ErrExecution = errors.New("execution failed")
)
