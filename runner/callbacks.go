package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

// CallbackType defines the lifecycle points where callbacks are executed.
//
// Callbacks run synchronously on the run's goroutine. A callback returning an
// error terminates the run with that error.
type CallbackType string

const (
	// CallbackBeforeAgent is triggered when an agent becomes current.
	CallbackBeforeAgent CallbackType = "before_agent"
	// CallbackAfterAgent is triggered when an agent stops being current,
	// either through a handoff or because the run ended.
	CallbackAfterAgent CallbackType = "after_agent"
	// CallbackBeforeModel is triggered before each model call.
	CallbackBeforeModel CallbackType = "before_model"
	// CallbackAfterModel is triggered after each successful model call.
	CallbackAfterModel CallbackType = "after_model"
	// CallbackBeforeTools is triggered before the tool calls of a turn run.
	CallbackBeforeTools CallbackType = "before_tools"
	// CallbackAfterTools is triggered after the tool calls of a turn finished.
	CallbackAfterTools CallbackType = "after_tools"
	// CallbackOnHandoff is triggered after a handoff was resolved.
	CallbackOnHandoff CallbackType = "on_handoff"
	// CallbackOnError is triggered once when a run fails. Its return value is
	// ignored.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries the details of a lifecycle point. Only the fields
// relevant to the callback type are set.
type CallbackContext struct {
	RunContext   *core.RunContext
	Agent        core.AgentInfo
	CallbackType CallbackType
	Request      *model.Request
	Response     *model.Response
	ToolCalls    []core.ToolCallItem
	ToolResults  []core.ToolResultItem
	// HandoffTarget is the agent taking over (CallbackOnHandoff).
	HandoffTarget core.AgentInfo
	// Err is the run error (CallbackOnError).
	Err error
}

// Callback is a run lifecycle hook.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType
	// Execute performs the callback logic.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackBeforeAgent, func(ctx context.Context, cc *CallbackContext) error {
//		log.Printf("agent %s is current", cc.Agent.Name)
//		return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a function based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute calls the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager routes lifecycle points to registered callbacks. Callbacks
// of one type run in registration order; the first error stops the chain.
// It is safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates a manager holding callbacks.
func NewCallbackManager(callbacks ...Callback) *CallbackManager {
	cm := &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
	for _, cb := range callbacks {
		cm.RegisterCallback(cb)
	}
	return cm
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	t := callback.Type()
	cm.callbacks[t] = append(cm.callbacks[t], callback)
}

// ExecuteCallbacks runs all callbacks registered for callbackType.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := cm.callbacks[callbackType]
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType

	for _, cb := range callbacks {
		if err := cb.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return nil
}

// LoggingCallback forwards lifecycle points to a logging function.
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a logging callback for callbackType.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{callbackType: callbackType, logger: logger}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute logs the callback type and agent.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger != nil {
		c.logger(fmt.Sprintf("[%s] agent: %s", c.callbackType, callbackCtx.Agent.Name))
	}
	return nil
}

// StateValidationCallback validates the run state after every tool batch and
// fails the run when validator rejects it.
type StateValidationCallback struct {
	validator func(state map[string]any) error
}

// NewStateValidationCallback creates a state validation callback.
func NewStateValidationCallback(validator func(state map[string]any) error) *StateValidationCallback {
	return &StateValidationCallback{validator: validator}
}

// Type returns CallbackAfterTools.
func (c *StateValidationCallback) Type() CallbackType { return CallbackAfterTools }

// Execute validates the current run state.
func (c *StateValidationCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.validator == nil || callbackCtx.RunContext == nil {
		return nil
	}
	return c.validator(callbackCtx.RunContext.State())
}
