package runner_test

import (
	"testing"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/testutil"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/runner"
	"github.com/hupe1980/agentrelay/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classifyAgent(t *testing.T) *agent.Agent {
	t.Helper()

	billing := agent.MustNew("billing")
	support := agent.MustNew("support")

	return newAgent(t, "triage", nil, func(o *agent.Options) {
		o.Tools = []tool.Tool{addTool()}
		o.Handoffs = []agent.Handoff{agent.NewHandoff(billing), agent.NewHandoff(support)}
	})
}

func TestClassify(t *testing.T) {
	a := classifyAgent(t)

	t.Run("final message", func(t *testing.T) {
		act := runner.Classify(a, model.TextResponse("done"))
		assert.Equal(t, runner.FinalMessageAction{Text: "done"}, act)
	})

	t.Run("tool calls keep order", func(t *testing.T) {
		resp := testutil.NewResponseBuilder().
			Text("let me add").
			Call("add", `{"a":1,"b":2}`).
			Call("add", `{"a":3,"b":4}`).
			Build()

		act, ok := runner.Classify(a, resp).(runner.ToolCallsAction)
		require.True(t, ok)
		assert.Equal(t, "let me add", act.Text)
		require.Len(t, act.Calls, 2)
		assert.Equal(t, `{"a":1,"b":2}`, act.Calls[0].Arguments)
		assert.Equal(t, `{"a":3,"b":4}`, act.Calls[1].Arguments)
		assert.Equal(t, "triage", act.Calls[0].Agent)
	})

	t.Run("first handoff wins", func(t *testing.T) {
		resp := testutil.NewResponseBuilder().
			Call("add", `{"a":1,"b":2}`).
			Call("transfer_to_support", `{}`).
			Call("transfer_to_billing", `{}`).
			Build()

		act, ok := runner.Classify(a, resp).(runner.HandoffAction)
		require.True(t, ok)
		assert.Equal(t, "transfer_to_support", act.Call.ToolName)
		assert.Equal(t, "support", act.Handoff.Target.Name())
		require.Len(t, act.ToolCalls, 1)
		assert.Equal(t, "add", act.ToolCalls[0].Name)
		require.Len(t, act.Ignored, 1)
		assert.Equal(t, "transfer_to_billing", act.Ignored[0].ToolName)
	})

	t.Run("unknown tool", func(t *testing.T) {
		resp := testutil.NewResponseBuilder().Call("delete_everything", `{}`).Build()

		act, ok := runner.Classify(a, resp).(runner.ErrorAction)
		require.True(t, ok)
		assert.ErrorIs(t, act.Err, core.ErrModelBehavior)
		assert.Contains(t, act.Err.Error(), "delete_everything")
	})

	t.Run("empty response", func(t *testing.T) {
		act, ok := runner.Classify(a, testutil.NewResponseBuilder().Build()).(runner.ErrorAction)
		require.True(t, ok)
		assert.ErrorIs(t, act.Err, core.ErrModelBehavior)
	})
}

func TestClassify_ExhaustiveSwitch(t *testing.T) {
	a := classifyAgent(t)

	responses := []model.Response{
		model.TextResponse("hi"),
		testutil.NewResponseBuilder().Call("add", `{}`).Build(),
		testutil.NewResponseBuilder().Call("transfer_to_billing", `{}`).Build(),
		testutil.NewResponseBuilder().Build(),
	}

	seen := map[string]bool{}
	for _, resp := range responses {
		switch runner.Classify(a, resp).(type) {
		case runner.FinalMessageAction:
			seen["final"] = true
		case runner.ToolCallsAction:
			seen["tools"] = true
		case runner.HandoffAction:
			seen["handoff"] = true
		case runner.ErrorAction:
			seen["error"] = true
		default:
			t.Fatalf("unexpected action")
		}
	}

	assert.Len(t, seen, 4)
}
