package guardrail

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentrelay/core"
)

var (
	// ErrInputTripwire matches *InputTripwireError.
	ErrInputTripwire = errors.New("input guardrail tripwire triggered")
	// ErrOutputTripwire matches *OutputTripwireError.
	ErrOutputTripwire = errors.New("output guardrail tripwire triggered")
)

// InputTripwireError reports the first tripping input guardrail.
type InputTripwireError struct {
	Guardrail  string
	Agent      string
	OutputInfo any
	Results    []InputResult
}

func (e *InputTripwireError) Error() string {
	return fmt.Sprintf("input guardrail %q triggered tripwire for agent %s", e.Guardrail, e.Agent)
}

// Is reports whether target is ErrInputTripwire.
func (e *InputTripwireError) Is(target error) bool { return target == ErrInputTripwire }

// OutputTripwireError reports the first tripping output guardrail. The
// blocked output is not part of the error.
type OutputTripwireError struct {
	Guardrail  string
	Agent      string
	OutputInfo any
	Results    []OutputResult
}

func (e *OutputTripwireError) Error() string {
	return fmt.Sprintf("output guardrail %q triggered tripwire for agent %s", e.Guardrail, e.Agent)
}

// Is reports whether target is ErrOutputTripwire.
func (e *OutputTripwireError) Is(target error) bool { return target == ErrOutputTripwire }

// ExecutionError is returned when a guardrail function fails or panics.
// Phase is "input" or "output".
type ExecutionError struct {
	Guardrail string
	Phase     string
	Panic     any
	Err       error
}

func (e *ExecutionError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s guardrail %q panicked: %v", e.Phase, e.Guardrail, e.Panic)
	}
	return fmt.Sprintf("%s guardrail %q failed: %v", e.Phase, e.Guardrail, e.Err)
}

// Is reports whether target is core.ErrUserCode.
func (e *ExecutionError) Is(target error) bool { return target == core.ErrUserCode }

// Unwrap returns the guardrail's error.
func (e *ExecutionError) Unwrap() error { return e.Err }
