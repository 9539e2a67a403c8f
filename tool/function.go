package tool

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
)

// ErrorFunc turns a tool failure into the message sent back to the model.
type ErrorFunc func(toolCtx *core.ToolContext, err error) string

// Options override the defaults of a FunctionTool.
type Options struct {
	Name        string
	Description string
	ErrorFunc   ErrorFunc
}

// WithName overrides the tool name.
func WithName(name string) func(o *Options) {
	return func(o *Options) { o.Name = name }
}

// WithDescription overrides the tool description.
func WithDescription(desc string) func(o *Options) {
	return func(o *Options) { o.Description = desc }
}

// WithErrorFunc reports callable failures to the model through fn instead of
// failing the run.
func WithErrorFunc(fn ErrorFunc) func(o *Options) {
	return func(o *Options) { o.ErrorFunc = fn }
}

// DefaultErrorFunc reports the error text.
func DefaultErrorFunc(_ *core.ToolContext, err error) string {
	return fmt.Sprintf("An error occurred while running the tool: %v", err)
}

// FunctionTool exposes a plain Go function as a tool.
//
// A FunctionTool has no mutable state after construction apart from its
// lazily compiled validator and is safe for concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(toolCtx *core.ToolContext, args map[string]any) (any, error)
	errorFn     ErrorFunc

	once      sync.Once
	validator *util.Validator
	schemaErr error
}

var (
	_ Tool          = (*FunctionTool)(nil)
	_ ErrorReporter = (*FunctionTool)(nil)
)

func newFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns []func(o *Options),
) *FunctionTool {
	opts := Options{Name: name, Description: description}
	for _, f := range optFns {
		f(&opts)
	}

	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	return &FunctionTool{
		name:        opts.Name,
		description: opts.Description,
		parameters:  parameters,
		fn:          fn,
		errorFn:     opts.ErrorFunc,
	}
}

// New wraps a function that only needs its arguments.
//
//	add := tool.New("add", "Add two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func New(
	name, description string,
	parameters map[string]any,
	fn func(args map[string]any) (any, error),
	optFns ...func(o *Options),
) *FunctionTool {
	return newFunctionTool(name, description, parameters, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return fn(args)
	}, optFns)
}

// NewWithContext wraps a function that also receives the ToolContext (and
// through it the RunContext of the run).
func NewWithContext(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...func(o *Options),
) *FunctionTool {
	return newFunctionTool(name, description, parameters, fn, optFns)
}

// NewTyped derives the parameter schema from struct T (json and description
// tags) and decodes validated arguments into T.
//
//	type AddArgs struct {
//	  A int `json:"a" description:"First addend"`
//	  B int `json:"b" description:"Second addend"`
//	}
//
//	add := tool.NewTyped("add", "Add two numbers", func(_ *core.ToolContext, in AddArgs) (int, error) {
//	  return in.A + in.B, nil
//	})
func NewTyped[T any, R any](
	name, description string,
	fn func(toolCtx *core.ToolContext, args T) (R, error),
	optFns ...func(o *Options),
) *FunctionTool {
	schema := util.CreateSchemaForType(reflect.TypeFor[T]())

	return newFunctionTool(name, description, schema, func(tc *core.ToolContext, args map[string]any) (any, error) {
		var in T

		raw, err := json.Marshal(args)
		if err != nil {
			return nil, NewToolError(name, fmt.Sprintf("encode arguments: %v", err), CodeValidation)
		}

		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewToolError(name, fmt.Sprintf("decode arguments: %v", err), CodeValidation)
		}

		return fn(tc, in)
	}, optFns)
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Validator returns the compiled parameter schema.
func (t *FunctionTool) Validator() (*util.Validator, error) {
	t.once.Do(func() {
		t.validator, t.schemaErr = util.CompileSchema(t.parameters)
	})
	return t.validator, t.schemaErr
}

// Call invokes the wrapped function. Arguments are expected to be validated
// by the caller (see Invoker).
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	return t.fn(toolCtx, args)
}

// ReportError implements ErrorReporter when an ErrorFunc is configured.
func (t *FunctionTool) ReportError(toolCtx *core.ToolContext, err error) (string, bool) {
	if t.errorFn == nil {
		return "", false
	}
	return t.errorFn(toolCtx, err), true
}
