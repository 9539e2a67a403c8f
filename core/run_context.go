package core

import (
	"maps"
	"sync"

	"github.com/hupe1980/agentrelay/logging"
)

// RunContext carries the run scoped state handed to tools, guardrails, dynamic
// instructions and handoff callbacks. One RunContext exists per run and is
// never shared between concurrent runs. It aggregates:
//   - the run identifier
//   - the caller supplied opaque Value
//   - a key/value state map safe for concurrent tool calls
//   - accumulated model usage
//   - the run logger
//
// Nothing in a RunContext outlives the run.
type RunContext struct {
	RunID string
	// Value is the caller supplied context object.
	Value any

	mu    sync.RWMutex
	state map[string]any
	usage Usage
	agent AgentInfo

	*loggerAdapter
}

// NewRunContext constructs a RunContext with empty state.
func NewRunContext(runID string, value any, logger logging.Logger) *RunContext {
	return &RunContext{
		RunID:         runID,
		Value:         value,
		state:         map[string]any{},
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// GetState returns the value stored under k.
func (rc *RunContext) GetState(k string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	v, ok := rc.state[k]

	return v, ok
}

// SetState stores v under k.
func (rc *RunContext) SetState(k string, v any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.state[k] = v
}

// DeleteState removes k from the state.
func (rc *RunContext) DeleteState(k string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	delete(rc.state, k)
}

// ApplyStateDelta merges all pairs from d into the state.
func (rc *RunContext) ApplyStateDelta(d map[string]any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	maps.Copy(rc.state, d)
}

// State returns a snapshot copy of the state map.
func (rc *RunContext) State() map[string]any {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	return maps.Clone(rc.state)
}

// AddUsage accumulates model usage.
func (rc *RunContext) AddUsage(u Usage) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.usage = rc.usage.Add(u)
}

// Usage returns the usage accumulated so far.
func (rc *RunContext) Usage() Usage {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	return rc.usage
}

// SetAgent records the current agent of the run.
func (rc *RunContext) SetAgent(a AgentInfo) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.agent = a
}

// Agent returns the current agent of the run.
func (rc *RunContext) Agent() AgentInfo {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	return rc.agent
}
