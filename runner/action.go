package runner

import (
	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

// Action is what the runner does with one model response. The set of
// actions is closed: ToolCallsAction, HandoffAction, FinalMessageAction and
// ErrorAction.
type Action interface{ isAction() }

// ToolCallsAction executes tools and feeds the results back to the model.
type ToolCallsAction struct {
	Text  string
	Calls []core.ToolCallItem
}

// HandoffAction transfers control. Regular tool calls of the same response
// run before the transfer; further handoff calls are ignored.
type HandoffAction struct {
	Text      string
	Handoff   agent.Handoff
	Call      core.HandoffCallItem
	ToolCalls []core.ToolCallItem
	Ignored   []core.HandoffCallItem
}

// FinalMessageAction ends the run with Text as output.
type FinalMessageAction struct {
	Text string
}

// ErrorAction ends the run with Err.
type ErrorAction struct {
	Err error
}

func (ToolCallsAction) isAction()    {}
func (HandoffAction) isAction()      {}
func (FinalMessageAction) isAction() {}
func (ErrorAction) isAction()        {}

// Classify maps a model response of a to an Action. Calls naming neither a
// tool nor a handoff of a and empty responses are model behavior errors.
func Classify(a *agent.Agent, resp model.Response) Action {
	info := a.Info()
	text := resp.Content.Text()
	calls := resp.Content.FunctionCalls()

	var (
		toolCalls    []core.ToolCallItem
		handoffCalls []core.HandoffCallItem
		handoffs     []agent.Handoff
	)

	for _, fc := range calls {
		if h, ok := a.Handoff(fc.Name); ok {
			handoffCalls = append(handoffCalls, core.HandoffCallItem{
				ID:        core.NewID(),
				Agent:     info.Name,
				CallID:    fc.ID,
				ToolName:  fc.Name,
				Arguments: fc.Arguments,
			})
			handoffs = append(handoffs, h)
			continue
		}

		if _, ok := a.Tool(fc.Name); ok {
			toolCalls = append(toolCalls, core.ToolCallItem{
				ID:        core.NewID(),
				Agent:     info.Name,
				CallID:    fc.ID,
				Name:      fc.Name,
				Arguments: fc.Arguments,
			})
			continue
		}

		return ErrorAction{Err: &core.ModelBehaviorError{Agent: info.Name, Message: "model called unknown tool " + fc.Name}}
	}

	switch {
	case len(handoffCalls) > 0:
		return HandoffAction{
			Text:      text,
			Handoff:   handoffs[0],
			Call:      handoffCalls[0],
			ToolCalls: toolCalls,
			Ignored:   handoffCalls[1:],
		}
	case len(toolCalls) > 0:
		return ToolCallsAction{Text: text, Calls: toolCalls}
	case text != "":
		return FinalMessageAction{Text: text}
	default:
		return ErrorAction{Err: &core.ModelBehaviorError{Agent: info.Name, Message: "model returned neither text nor tool calls"}}
	}
}
