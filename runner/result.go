package runner

import (
	"fmt"
	"slices"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/model"
)

// RunResult is the outcome of a successful run. It is not modified after
// the run returns it.
type RunResult struct {
	RunID string
	// Input is the input of the run, including history loaded from a session.
	Input []core.Item
	// NewItems are all items generated during the run in order.
	NewItems []core.Item
	// FinalOutput is the final text, or the decoded value for agents with an
	// output schema.
	FinalOutput            any
	LastAgent              *agent.Agent
	RawResponses           []model.Response
	InputGuardrailResults  []guardrail.InputResult
	OutputGuardrailResults []guardrail.OutputResult
	Usage                  core.Usage
	Turns                  int
	TraceID                string
}

// FinalOutputText renders FinalOutput as text.
func (r *RunResult) FinalOutputText() string {
	switch v := r.FinalOutput.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// ToInputList returns the input followed by the new items, ready to be used
// as the input of a follow-up run.
func (r *RunResult) ToInputList() []core.Item {
	return slices.Concat(r.Input, r.NewItems)
}
