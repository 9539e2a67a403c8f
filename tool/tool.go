// Package tool implements the function calling subsystem that lets agents
// invoke structured capabilities with schema validated arguments, consistent
// error handling and concurrent dispatch.
package tool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/model"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define a proper JSON schema for parameters
//   - Be safe for concurrent use; calls of one turn run in parallel
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should be descriptive and follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// Every call is validated against it before Call runs.
	Parameters() map[string]any

	// Call executes the tool with validated arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ErrorReporter is implemented by tools that turn their own failures into a
// message for the model instead of failing the run.
type ErrorReporter interface {
	ReportError(toolCtx *core.ToolContext, err error) (string, bool)
}

// Definition converts t into the declaration handed to models.
func Definition(t Tool) model.ToolDefinition {
	return model.NewToolDefinition(t.Name(), t.Description(), t.Parameters())
}

// Definitions converts tools in order.
func Definitions(tools []Tool) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, Definition(t))
	}
	return defs
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes of ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// ToolError is an in-band tool failure: it is reported to the model as the
// call's result and the run continues.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// ExecutionError is returned when a tool callable fails or panics and the
// tool does not report the failure in-band. It terminates the run.
type ExecutionError struct {
	Tool   string
	CallID string
	Panic  any
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("tool %s panicked: %v", e.Tool, e.Panic)
	}
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

// Is reports whether target is core.ErrUserCode.
func (e *ExecutionError) Is(target error) bool { return target == core.ErrUserCode }

// Unwrap returns the callable's error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// AsToolError reports whether err carries an in-band *ToolError.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
