package runner_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/internal/testutil"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/runner"
	"github.com/hupe1980/agentrelay/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s *runner.StreamedRun) []runner.StreamEvent {
	t.Helper()

	var events []runner.StreamEvent
	for ev := range s.Events() {
		events = append(events, ev)
	}

	return events
}

func TestRunStreamed_EventOrder(t *testing.T) {
	m := model.NewScriptedModel("m",
		model.CallTools(core.FunctionCall{Name: "add", Arguments: `{"a":2,"b":3}`}),
		model.Reply("The answer is 5"),
	)
	a := newAgent(t, "math", m, func(o *agent.Options) { o.Tools = []tool.Tool{addTool()} })

	s, err := newRunner().RunStreamed(context.Background(), a, core.TextInput("2+3"))
	require.NoError(t, err)

	events := collect(t, s)
	res, err := s.Wait()
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assert.Equal(t, runner.AgentUpdatedEvent{Agent: core.AgentInfo{Name: "math"}}, events[0])
	assert.Equal(t, runner.RunCompleteEvent{Result: res}, events[len(events)-1])

	var (
		items   []core.Item
		partial strings.Builder
		lastRaw = -1
		message = -1
	)

	for i, ev := range events {
		switch e := ev.(type) {
		case runner.ItemEvent:
			items = append(items, e.Item)
			if core.ItemType(e.Item) == core.ItemTypeMessage {
				message = i
			}
		case runner.RawResponseEvent:
			assert.True(t, e.Response.Partial)
			partial.WriteString(e.Response.Content.Text())
			lastRaw = i
		}
	}

	assert.Equal(t, res.NewItems, items)
	assert.Equal(t, "The answer is 5", partial.String())
	assert.Less(t, lastRaw, message, "deltas precede the final message")
	assert.True(t, m.Requests()[0].Stream)

	select {
	case <-s.Done():
	default:
		t.Fatal("run not done after Wait")
	}
}

func TestRunStreamed_HoldsPartialsForOutputGuardrails(t *testing.T) {
	t.Run("tripped", func(t *testing.T) {
		m := model.NewScriptedModel("m", model.Reply("the secret is out"))
		a := newAgent(t, "leaky", m, func(o *agent.Options) {
			o.OutputGuardrails = []guardrail.Output{guardrail.KeywordOutput("no_secrets", "secret")}
		})

		s, err := newRunner().RunStreamed(context.Background(), a, core.TextInput("tell me"))
		require.NoError(t, err)

		events := collect(t, s)
		_, err = s.Wait()
		assert.ErrorIs(t, err, guardrail.ErrOutputTripwire)

		for _, ev := range events {
			switch e := ev.(type) {
			case runner.RawResponseEvent:
				t.Fatalf("partial output leaked: %q", e.Response.Content.Text())
			case runner.ItemEvent:
				t.Fatalf("item leaked: %#v", e.Item)
			case runner.RunCompleteEvent:
				t.Fatal("failed run completed")
			}
		}
	})

	t.Run("passed", func(t *testing.T) {
		m := model.NewScriptedModel("m", model.Reply("all good here"))
		a := newAgent(t, "careful", m, func(o *agent.Options) {
			o.OutputGuardrails = []guardrail.Output{guardrail.KeywordOutput("no_secrets", "secret")}
		})

		s, err := newRunner().RunStreamed(context.Background(), a, core.TextInput("tell me"))
		require.NoError(t, err)

		events := collect(t, s)
		_, err = s.Wait()
		require.NoError(t, err)

		var raw int
		for _, ev := range events {
			if _, ok := ev.(runner.RawResponseEvent); ok {
				raw++
			}
		}
		assert.Equal(t, 3, raw)
	})
}

func TestRunStreamed_Handoff(t *testing.T) {
	d := newDesk(t, []model.Step{model.CallTools(core.FunctionCall{Name: "transfer_to_billing"})})

	s, err := newRunner().RunStreamed(context.Background(), d.triage, core.TextInput("invoice"))
	require.NoError(t, err)

	var agents []string
	for ev := range s.Events() {
		if e, ok := ev.(runner.AgentUpdatedEvent); ok {
			agents = append(agents, e.Agent.Name)
		}
	}

	res, err := s.Wait()
	require.NoError(t, err)
	assert.Equal(t, []string{"triage", "billing"}, agents)
	assert.Equal(t, "billing", res.LastAgent.Name())
}

func TestRunStreamed_HoldsPartialsWhileInputGuardrailsRun(t *testing.T) {
	slow := func(trip bool) guardrail.Input {
		return guardrail.NewInput("slow", func(context.Context, *core.RunContext, core.AgentInfo, []core.Item) (guardrail.Result, error) {
			time.Sleep(30 * time.Millisecond)
			return guardrail.Result{TripwireTriggered: trip}, nil
		})
	}

	r := newRunner(func(o *runner.Options) { o.InputGuardrailMode = runner.GuardrailsParallel })

	t.Run("tripped", func(t *testing.T) {
		m := model.NewScriptedModel("m", model.Reply("secret answer leaked"))
		a := newAgent(t, "a", m, func(o *agent.Options) { o.InputGuardrails = []guardrail.Input{slow(true)} })

		s, err := r.RunStreamed(context.Background(), a, core.TextInput("hi"))
		require.NoError(t, err)

		events := collect(t, s)
		_, err = s.Wait()
		assert.ErrorIs(t, err, guardrail.ErrInputTripwire)

		for _, ev := range events {
			if e, ok := ev.(runner.RawResponseEvent); ok {
				t.Fatalf("partial output leaked: %q", e.Response.Content.Text())
			}
		}
	})

	t.Run("passed", func(t *testing.T) {
		m := model.NewScriptedModel("m", model.Reply("all good here"))
		a := newAgent(t, "a", m, func(o *agent.Options) { o.InputGuardrails = []guardrail.Input{slow(false)} })

		s, err := r.RunStreamed(context.Background(), a, core.TextInput("hi"))
		require.NoError(t, err)

		events := collect(t, s)
		_, err = s.Wait()
		require.NoError(t, err)

		var partial strings.Builder
		for _, ev := range events {
			if e, ok := ev.(runner.RawResponseEvent); ok {
				partial.WriteString(e.Response.Content.Text())
			}
		}
		assert.Equal(t, "all good here", partial.String())
	})
}

func TestRunStreamed_HandoffTurnPublishesCallsBeforeTools(t *testing.T) {
	seen := make(chan struct{})

	gate := tool.New("gate", "Returns once its call was published", nil, func(map[string]any) (any, error) {
		select {
		case <-seen:
			return "open", nil
		case <-time.After(time.Second):
			return nil, errors.New("call not published before the tool ran")
		}
	})

	b := newAgent(t, "b", model.NewScriptedModel("b-model", model.Reply("done")))
	a := newAgent(t, "a", model.NewScriptedModel("a-model",
		testutil.NewResponseBuilder().Call("gate", `{}`).Call("transfer_to_b", `{}`).Step(),
	), func(o *agent.Options) {
		o.Tools = []tool.Tool{gate}
		o.Handoffs = []agent.Handoff{agent.NewHandoff(b)}
	})

	s, err := newRunner().RunStreamed(context.Background(), a, core.TextInput("go"))
	require.NoError(t, err)

	var order []string
	for ev := range s.Events() {
		e, ok := ev.(runner.ItemEvent)
		if !ok {
			continue
		}
		order = append(order, core.ItemType(e.Item))
		if c, ok := e.Item.(core.ToolCallItem); ok && c.Name == "gate" {
			close(seen)
		}
	}

	res, err := s.Wait()
	require.NoError(t, err)
	assert.Equal(t, "b", res.LastAgent.Name())
	assert.Equal(t, itemTypes(res.NewItems), order)
}

func TestRunStreamed_WaitWithoutConsuming(t *testing.T) {
	m := model.NewScriptedModel("m", model.Reply("one two three four five"))
	r := newRunner(func(o *runner.Options) { o.EventBufferSize = 0 })

	s, err := r.RunStreamed(context.Background(), newAgent(t, "a", m), core.TextInput("count"))
	require.NoError(t, err)

	res, err := s.Wait()
	require.NoError(t, err)
	assert.Equal(t, "one two three four five", res.FinalOutput)
}

func TestRunStreamed_Error(t *testing.T) {
	m := model.NewScriptedModel("m", model.CallTools(core.FunctionCall{Name: "nope"}))

	s, err := newRunner().RunStreamed(context.Background(), newAgent(t, "a", m), core.TextInput("hi"))
	require.NoError(t, err)

	events := collect(t, s)
	res, err := s.Wait()
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrModelBehavior)

	for _, ev := range events {
		_, complete := ev.(runner.RunCompleteEvent)
		assert.False(t, complete)
	}
}
