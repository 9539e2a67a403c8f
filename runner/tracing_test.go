package runner_test

import (
	"context"
	"testing"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/runner"
	"github.com/hupe1980/agentrelay/tool"
	"github.com/hupe1980/agentrelay/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracing_SpanTree(t *testing.T) {
	r, p, rec := newTracedRunner()

	m := model.NewScriptedModel("m",
		model.CallTools(core.FunctionCall{Name: "add", Arguments: `{"a":2,"b":3}`}),
		lastToolOutput,
	)
	a := newAgent(t, "math", m, func(o *agent.Options) { o.Tools = []tool.Tool{addTool()} })

	res, err := r.Run(context.Background(), a, core.TextInput("2+3"), func(o *runner.RunOptions) {
		o.TraceName = "math run"
		o.GroupID = "conversation-1"
	})
	require.NoError(t, err)
	require.NoError(t, p.ForceFlush(context.Background()))

	traces := rec.Traces()
	require.Len(t, traces, 1)
	assert.Equal(t, res.TraceID, traces[0].TraceID)
	assert.Equal(t, "math run", traces[0].Name)
	assert.Equal(t, "conversation-1", traces[0].GroupID)
	assert.Nil(t, traces[0].Error)

	// Every started span finished exactly once.
	assert.Len(t, rec.Spans(), len(rec.SpanStarts()))

	agents := rec.SpansOfKind(tracing.SpanKindAgent)
	require.Len(t, agents, 1)
	assert.Empty(t, agents[0].ParentID)

	gens := rec.SpansOfKind(tracing.SpanKindGeneration)
	require.Len(t, gens, 2)
	funcs := rec.SpansOfKind(tracing.SpanKindFunction)
	require.Len(t, funcs, 1)

	for _, s := range append(gens, funcs...) {
		assert.Equal(t, agents[0].SpanID, s.ParentID, s.Name)
		assert.Equal(t, res.TraceID, s.TraceID)
		assert.False(t, s.EndedAt.IsZero())
	}

	assert.Equal(t, "5", funcs[0].Data.(tracing.FunctionSpanData).Output)
	assert.Equal(t, 1, gens[0].Data.(tracing.GenerationSpanData).Usage.Requests)
}

func TestTracing_Handoff(t *testing.T) {
	r, p, rec := newTracedRunner()
	d := newDesk(t, []model.Step{model.CallTools(core.FunctionCall{Name: "transfer_to_support"})})

	_, err := r.Run(context.Background(), d.triage, core.TextInput("help"))
	require.NoError(t, err)
	require.NoError(t, p.ForceFlush(context.Background()))

	agents := rec.SpansOfKind(tracing.SpanKindAgent)
	require.Len(t, agents, 2)
	assert.Equal(t, "triage", agents[0].Name)
	assert.Equal(t, "support", agents[1].Name)

	handoffs := rec.SpansOfKind(tracing.SpanKindHandoff)
	require.Len(t, handoffs, 1)
	assert.Equal(t, agents[0].SpanID, handoffs[0].ParentID)
	assert.Equal(t, tracing.HandoffSpanData{From: "triage", To: "support"}, handoffs[0].Data)
}

func TestTracing_ErrorIsRecorded(t *testing.T) {
	r, p, rec := newTracedRunner()

	m := model.NewScriptedModel("m", model.CallTools(core.FunctionCall{Name: "missing"}))

	_, err := r.Run(context.Background(), newAgent(t, "a", m), core.TextInput("hi"))
	require.Error(t, err)
	require.NoError(t, p.ForceFlush(context.Background()))

	traces := rec.Traces()
	require.Len(t, traces, 1)
	require.NotNil(t, traces[0].Error)
	assert.Contains(t, traces[0].Error.Message, "missing")

	agents := rec.SpansOfKind(tracing.SpanKindAgent)
	require.Len(t, agents, 1)
	assert.NotNil(t, agents[0].Error)
	assert.Len(t, rec.Spans(), len(rec.SpanStarts()))
}

func TestTracing_Disabled(t *testing.T) {
	t.Run("runner option", func(t *testing.T) {
		r, p, rec := newTracedRunner(func(o *runner.Options) { o.TracingDisabled = true })

		m := model.NewScriptedModel("m", model.Reply("hi"))
		res, err := r.Run(context.Background(), newAgent(t, "a", m), core.TextInput("hi"))
		require.NoError(t, err)
		require.NoError(t, p.ForceFlush(context.Background()))

		assert.Empty(t, res.TraceID)
		assert.Empty(t, rec.Traces())
		assert.Empty(t, rec.Spans())
	})

	t.Run("provider switch", func(t *testing.T) {
		r, p, rec := newTracedRunner()
		p.SetDisabled(true)

		m := model.NewScriptedModel("m", model.Reply("hi"))
		_, err := r.Run(context.Background(), newAgent(t, "a", m), core.TextInput("hi"))
		require.NoError(t, err)
		require.NoError(t, p.ForceFlush(context.Background()))

		assert.Empty(t, rec.Traces())
		assert.Empty(t, rec.Spans())
	})
}

func TestTracing_JoinsCallerTrace(t *testing.T) {
	r, p, rec := newTracedRunner()

	ctx, tr, owned := p.StartTrace(context.Background(), "workflow")
	require.True(t, owned)

	for _, text := range []string{"one", "two"} {
		m := model.NewScriptedModel("m", model.Reply(text))
		res, err := r.Run(ctx, newAgent(t, "a", m), core.TextInput(text))
		require.NoError(t, err)
		assert.Equal(t, tr.ID(), res.TraceID)
	}

	require.NoError(t, p.ForceFlush(context.Background()))
	assert.Empty(t, rec.Traces(), "the caller owns the trace")

	tr.Finish()
	require.NoError(t, p.ForceFlush(context.Background()))

	require.Len(t, rec.Traces(), 1)
	assert.Len(t, rec.SpansOfKind(tracing.SpanKindAgent), 2)
}
