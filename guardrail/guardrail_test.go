package guardrail

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var testAgent = core.AgentInfo{Name: "triage"}

func input(text string) []core.Item {
	return []core.Item{core.UserMessage(text)}
}

func static(name string, trip bool, info any) Input {
	return NewInput(name, func(context.Context, *core.RunContext, core.AgentInfo, []core.Item) (Result, error) {
		return Result{TripwireTriggered: trip, OutputInfo: info}, nil
	})
}

func TestEvaluateInput_NoGuardrails(t *testing.T) {
	results, err := NewEvaluator().EvaluateInput(context.Background(), core.NewRunContext("r", nil, nil), testAgent, nil, input("hi"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEvaluateInput_KeywordTrips(t *testing.T) {
	g := KeywordInput("no_forbidden", "forbidden")

	_, err := NewEvaluator().EvaluateInput(context.Background(), core.NewRunContext("r", nil, nil), testAgent, []Input{g}, input("this is Forbidden"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInputTripwire)

	var tripErr *InputTripwireError
	require.ErrorAs(t, err, &tripErr)
	assert.Equal(t, "no_forbidden", tripErr.Guardrail)
	assert.Equal(t, "triage", tripErr.Agent)
	assert.Equal(t, map[string]any{"matched": "forbidden"}, tripErr.OutputInfo)

	results, err := NewEvaluator().EvaluateInput(context.Background(), core.NewRunContext("r", nil, nil), testAgent, []Input{g}, input("all good"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].TripwireTriggered)
}

func TestEvaluateInput_FirstTripInDeclarationOrder(t *testing.T) {
	slowTrip := NewInput("slow", func(context.Context, *core.RunContext, core.AgentInfo, []core.Item) (Result, error) {
		time.Sleep(30 * time.Millisecond)
		return Result{TripwireTriggered: true, OutputInfo: "slow"}, nil
	})

	guardrails := []Input{static("pass", false, nil), slowTrip, static("fast", true, "fast")}

	results, err := NewEvaluator().EvaluateInput(context.Background(), core.NewRunContext("r", nil, nil), testAgent, guardrails, input("x"))

	var tripErr *InputTripwireError
	require.ErrorAs(t, err, &tripErr)
	assert.Equal(t, "slow", tripErr.Guardrail)
	assert.Equal(t, "slow", tripErr.OutputInfo)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"pass", "slow", "fast"}, []string{results[0].Guardrail, results[1].Guardrail, results[2].Guardrail})
}

func TestEvaluateInput_RunsConcurrently(t *testing.T) {
	var running, peak int32

	mk := func(name string) Input {
		return NewInput(name, func(context.Context, *core.RunContext, core.AgentInfo, []core.Item) (Result, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return Result{}, nil
		})
	}

	_, err := NewEvaluator().EvaluateInput(context.Background(), core.NewRunContext("r", nil, nil), testAgent,
		[]Input{mk("a"), mk("b"), mk("c")}, input("x"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&peak))
}

func TestEvaluateInput_ErrorIsExecutionError(t *testing.T) {
	boom := errors.New("boom")
	failing := NewInput("failing", func(context.Context, *core.RunContext, core.AgentInfo, []core.Item) (Result, error) {
		return Result{}, boom
	})

	_, err := NewEvaluator().EvaluateInput(context.Background(), core.NewRunContext("r", nil, nil), testAgent,
		[]Input{failing, static("trip", true, nil)}, input("x"))

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "failing", execErr.Guardrail)
	assert.Equal(t, "input", execErr.Phase)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, core.ErrUserCode)
	assert.NotErrorIs(t, err, ErrInputTripwire)
}

func TestEvaluateOutput_PanicIsExecutionError(t *testing.T) {
	panicking := NewOutput("panicking", func(context.Context, *core.RunContext, core.AgentInfo, any) (Result, error) {
		panic("kaboom")
	})

	_, err := NewEvaluator().EvaluateOutput(context.Background(), core.NewRunContext("r", nil, nil), testAgent,
		[]Output{panicking}, "answer")

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "kaboom", execErr.Panic)
	assert.Equal(t, "output", execErr.Phase)
}

func TestEvaluateOutput_KeywordTrips(t *testing.T) {
	g := KeywordOutput("no_secrets", "password")

	results, err := NewEvaluator().EvaluateOutput(context.Background(), core.NewRunContext("r", nil, nil), testAgent,
		[]Output{g}, "the PASSWORD is 123")
	assert.ErrorIs(t, err, ErrOutputTripwire)
	require.Len(t, results, 1)
	assert.True(t, results[0].TripwireTriggered)

	var tripErr *OutputTripwireError
	require.ErrorAs(t, err, &tripErr)
	assert.Equal(t, "no_secrets", tripErr.Guardrail)
}

func TestMaxInputLength(t *testing.T) {
	g := MaxInputLength("short", 5)
	ev := NewEvaluator()
	rc := core.NewRunContext("r", nil, nil)

	_, err := ev.EvaluateInput(context.Background(), rc, testAgent, []Input{g}, input("hello"))
	require.NoError(t, err)

	_, err = ev.EvaluateInput(context.Background(), rc, testAgent, []Input{g}, input("hello!"))
	assert.ErrorIs(t, err, ErrInputTripwire)
}

func TestEvaluateInput_RecordsGuardrailSpans(t *testing.T) {
	rec := tracing.NewRecorder()
	p := tracing.NewProvider(func(o *tracing.ProviderOptions) { o.Processors = []tracing.Processor{rec} })
	defer func() { _ = p.Shutdown(context.Background()) }()

	ctx, tr, _ := p.StartTrace(context.Background(), "run")
	agentCtx, agentSpan := tracing.StartSpan(ctx, tracing.AgentSpanData{Agent: "triage"})

	_, err := NewEvaluator().EvaluateInput(agentCtx, core.NewRunContext("r", nil, nil), testAgent,
		[]Input{static("pass", false, nil), static("trip", true, nil)}, input("x"))
	require.ErrorIs(t, err, ErrInputTripwire)

	agentSpan.Finish()
	tr.Finish()
	require.NoError(t, p.ForceFlush(context.Background()))

	spans := rec.SpansOfKind(tracing.SpanKindGuardrail)
	require.Len(t, spans, 2)

	triggered := map[string]bool{}
	for _, s := range spans {
		assert.Equal(t, agentSpan.ID(), s.ParentID)
		triggered[s.Name] = s.Data.(tracing.GuardrailSpanData).Triggered
	}
	assert.Equal(t, map[string]bool{"pass": false, "trip": true}, triggered)
}

func TestEvaluateInput_TripwireIsOrOfResults(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		trips := rapid.SliceOfN(rapid.Bool(), 0, 8).Draw(t, "trips")

		guardrails := make([]Input, len(trips))
		first := -1
		for i, trip := range trips {
			guardrails[i] = static(fmt.Sprintf("g%d", i), trip, i)
			if trip && first < 0 {
				first = i
			}
		}

		results, err := NewEvaluator().EvaluateInput(context.Background(), core.NewRunContext("r", nil, nil), testAgent, guardrails, input("x"))
		if len(results) != len(trips) {
			t.Fatalf("expected %d results, got %d", len(trips), len(results))
		}

		if first < 0 {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			return
		}

		var tripErr *InputTripwireError
		if !errors.As(err, &tripErr) {
			t.Fatalf("expected tripwire error, got %v", err)
		}
		if tripErr.OutputInfo != first {
			t.Fatalf("expected first tripping guardrail %d, got %v", first, tripErr.OutputInfo)
		}
	})
}
