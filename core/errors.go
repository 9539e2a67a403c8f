package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMaxTurnsExceeded matches *MaxTurnsExceededError.
	ErrMaxTurnsExceeded = errors.New("max turns exceeded")
	// ErrModelBehavior matches *ModelBehaviorError.
	ErrModelBehavior = errors.New("model behavior error")
	// ErrTimeout matches *TimeoutError.
	ErrTimeout = errors.New("timeout")
	// ErrUserCode matches failures raised by user supplied tool or guardrail code.
	ErrUserCode = errors.New("user code failed")
)

// MaxTurnsExceededError is returned when a run needs more turns than allowed.
type MaxTurnsExceededError struct {
	MaxTurns int
}

func (e *MaxTurnsExceededError) Error() string {
	return fmt.Sprintf("max turns (%d) exceeded", e.MaxTurns)
}

// Is reports whether target is ErrMaxTurnsExceeded.
func (e *MaxTurnsExceededError) Is(target error) bool { return target == ErrMaxTurnsExceeded }

// ModelBehaviorError is returned when the model produces an action the runtime
// cannot interpret (unknown tool, empty response, invalid structured output).
type ModelBehaviorError struct {
	Agent   string
	Message string
	Err     error
}

func (e *ModelBehaviorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model behavior error in agent %s: %s: %v", e.Agent, e.Message, e.Err)
	}
	return fmt.Sprintf("model behavior error in agent %s: %s", e.Agent, e.Message)
}

// Is reports whether target is ErrModelBehavior.
func (e *ModelBehaviorError) Is(target error) bool { return target == ErrModelBehavior }

// Unwrap returns the underlying cause.
func (e *ModelBehaviorError) Unwrap() error { return e.Err }

// TimeoutError is returned when a caller supplied wall clock bound is exceeded.
// Scope is "run" or "turn".
type TimeoutError struct {
	Scope   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timeout of %s exceeded", e.Scope, e.Timeout)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
