package core

import (
	"context"

	"github.com/hupe1980/agentrelay/logging"
)

// ToolContext is the surface a tool implementation sees for one call: the
// cancellation context of the call, the run scoped RunContext, and identifiers
// of the call and the calling agent.
type ToolContext struct {
	ctx            context.Context
	runCtx         *RunContext
	functionCallID string
	agentInfo      AgentInfo

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a RunContext and a
// function call id.
func NewToolContext(ctx context.Context, runCtx *RunContext, agent AgentInfo, functionCallID string) *ToolContext {
	logger := logging.With(runCtx.Logger(), "agent", agent.Name, "fc_id", functionCallID)

	return &ToolContext{
		ctx:            ctx,
		runCtx:         runCtx,
		functionCallID: functionCallID,
		agentInfo:      agent,
		loggerAdapter:  newLoggerAdapter(logger),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// RunContext returns the run scoped context.
func (tc *ToolContext) RunContext() *RunContext { return tc.runCtx }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the name of the agent that requested the call.
func (tc *ToolContext) AgentName() string { return tc.agentInfo.Name }

// GetState reads run state.
func (tc *ToolContext) GetState(k string) (any, bool) { return tc.runCtx.GetState(k) }

// SetState writes run state.
func (tc *ToolContext) SetState(k string, v any) { tc.runCtx.SetState(k, v) }
