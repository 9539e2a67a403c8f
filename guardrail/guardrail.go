package guardrail

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentrelay/core"
)

// Result is what a guardrail function reports.
type Result struct {
	TripwireTriggered bool `json:"tripwire_triggered"`
	// OutputInfo carries guardrail specific details surfaced to the caller.
	OutputInfo any `json:"output_info,omitempty"`
}

// InputFunc inspects the input items of the agent's first turn.
type InputFunc func(ctx context.Context, runCtx *core.RunContext, agent core.AgentInfo, input []core.Item) (Result, error)

// OutputFunc inspects the final output of an agent.
type OutputFunc func(ctx context.Context, runCtx *core.RunContext, agent core.AgentInfo, output any) (Result, error)

// Input is a named input guardrail.
type Input struct {
	Name string
	Func InputFunc
}

// Output is a named output guardrail.
type Output struct {
	Name string
	Func OutputFunc
}

// NewInput builds an input guardrail.
func NewInput(name string, fn InputFunc) Input {
	return Input{Name: name, Func: fn}
}

// NewOutput builds an output guardrail.
func NewOutput(name string, fn OutputFunc) Output {
	return Output{Name: name, Func: fn}
}

// InputResult is the outcome of one input guardrail.
type InputResult struct {
	Guardrail string `json:"guardrail"`
	Agent     string `json:"agent"`
	Result
}

// OutputResult is the outcome of one output guardrail. It never carries the
// evaluated output.
type OutputResult struct {
	Guardrail string `json:"guardrail"`
	Agent     string `json:"agent"`
	Result
}

// KeywordInput trips when the user text of the input contains any of the
// keywords (case insensitive). OutputInfo holds the matched keyword.
func KeywordInput(name string, keywords ...string) Input {
	return NewInput(name, func(_ context.Context, _ *core.RunContext, _ core.AgentInfo, input []core.Item) (Result, error) {
		return matchKeywords(core.UserText(input), keywords), nil
	})
}

// KeywordOutput trips when the final output contains any of the keywords
// (case insensitive).
func KeywordOutput(name string, keywords ...string) Output {
	return NewOutput(name, func(_ context.Context, _ *core.RunContext, _ core.AgentInfo, output any) (Result, error) {
		return matchKeywords(fmt.Sprint(output), keywords), nil
	})
}

// MaxInputLength trips when the user text of the input is longer than n runes.
func MaxInputLength(name string, n int) Input {
	return NewInput(name, func(_ context.Context, _ *core.RunContext, _ core.AgentInfo, input []core.Item) (Result, error) {
		l := len([]rune(core.UserText(input)))
		if l > n {
			return Result{TripwireTriggered: true, OutputInfo: map[string]any{"length": l, "max": n}}, nil
		}
		return Result{}, nil
	})
}

func matchKeywords(text string, keywords []string) Result {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return Result{TripwireTriggered: true, OutputInfo: map[string]any{"matched": kw}}
		}
	}
	return Result{}
}
