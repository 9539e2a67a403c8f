// Package core provides the foundational domain types shared by every other
// agentrelay package:
//
//   - Items, the closed set of records a run produces (messages, tool calls,
//     tool results, handoff calls and handoff outputs)
//   - Content and Parts, the role based shape handed to model adapters
//   - RunContext and ToolContext, the run scoped state passed to tools and
//     guardrails
//   - the run level error taxonomy (max turns, model behavior, timeout)
//
// The package has no knowledge of agents, models or tracing so it can be
// imported from all of them.
package core
