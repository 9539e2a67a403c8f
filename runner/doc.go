// Package runner implements the run orchestrator.
//
// A Runner drives a turn loop for one agent at a time. Each turn calls the
// current agent's model and classifies the response into an Action: tool
// calls are executed and fed back, a handoff makes the target agent current,
// and a final message ends the run once the output guardrails pass. Input
// guardrails run on the first turn of every agent that becomes current.
//
// Run blocks until the run ends; RunStreamed returns immediately and
// publishes events while the run progresses. Both share the same loop, so
// ordering and guardrail semantics are identical.
//
// Every run records a trace through the configured tracing.Provider. The
// current span travels in the context, so concurrent runs on one Runner never
// share span nesting.
package runner
