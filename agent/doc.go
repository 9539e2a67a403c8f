// Package agent defines the immutable Agent value the runner drives, the
// Handoff that transfers control between agents, the Registry of known
// agents and dynamic instructions.
//
// An Agent is built once with New and never changes afterwards. Derivations
// such as WithHandoffs or WithTools return a new Agent sharing every other
// field with the original, so agents can be reused across concurrent runs
// without locking.
package agent
