// Package guardrail validates agent input and final output.
//
// A guardrail is a named function returning a Result. All guardrails of one
// phase run concurrently; the phase trips when any of them reports
// TripwireTriggered, and the first tripping guardrail in declaration order is
// surfaced as *InputTripwireError or *OutputTripwireError. A guardrail that
// fails or panics is reported as *ExecutionError.
package guardrail
