package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrHandoff matches *HandoffError.
	ErrHandoff = errors.New("handoff failed")
	// ErrInvalidAgent is returned by New for inconsistent definitions.
	ErrInvalidAgent = errors.New("invalid agent definition")
)

// HandoffErrorCode classifies a failed handoff.
type HandoffErrorCode string

const (
	HandoffCodeValidation    HandoffErrorCode = "validation"
	HandoffCodeResolve       HandoffErrorCode = "resolve"
	HandoffCodeNotAllowed    HandoffErrorCode = "not_allowed"
	HandoffCodeNotRegistered HandoffErrorCode = "not_registered"
	HandoffCodeCallback      HandoffErrorCode = "callback"
)

// HandoffError reports a handoff that could not be carried out.
type HandoffError struct {
	Code     HandoffErrorCode
	Source   string
	Target   string
	ToolName string
	Err      error
}

func (e *HandoffError) Error() string {
	msg := fmt.Sprintf("handoff %s from %s", e.ToolName, e.Source)
	if e.Target != "" {
		msg += " to " + e.Target
	}
	msg += " failed (" + string(e.Code) + ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is ErrHandoff.
func (e *HandoffError) Is(target error) bool { return target == ErrHandoff }

// Unwrap returns the underlying cause.
func (e *HandoffError) Unwrap() error { return e.Err }
