package runner_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/runner"
	"github.com/hupe1980/agentrelay/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callbackLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *callbackLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, s)
}

func (l *callbackLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func recordAll(log *callbackLog) []runner.Callback {
	types := []runner.CallbackType{
		runner.CallbackBeforeAgent,
		runner.CallbackAfterAgent,
		runner.CallbackBeforeModel,
		runner.CallbackAfterModel,
		runner.CallbackBeforeTools,
		runner.CallbackAfterTools,
		runner.CallbackOnHandoff,
		runner.CallbackOnError,
	}

	cbs := make([]runner.Callback, 0, len(types))
	for _, ct := range types {
		cbs = append(cbs, runner.NewLoggingCallback(ct, log.add))
	}

	return cbs
}

func TestCallbacks_Lifecycle(t *testing.T) {
	log := &callbackLog{}
	r := newRunner(func(o *runner.Options) { o.Callbacks = recordAll(log) })

	m := model.NewScriptedModel("m",
		model.CallTools(core.FunctionCall{Name: "add", Arguments: `{"a":1,"b":2}`}),
		model.Reply("3"),
	)
	a := newAgent(t, "math", m, func(o *agent.Options) { o.Tools = []tool.Tool{addTool()} })

	_, err := r.Run(context.Background(), a, core.TextInput("1+2"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"[before_agent] agent: math",
		"[before_model] agent: math",
		"[after_model] agent: math",
		"[before_tools] agent: math",
		"[after_tools] agent: math",
		"[before_model] agent: math",
		"[after_model] agent: math",
		"[after_agent] agent: math",
	}, log.all())
}

func TestCallbacks_Handoff(t *testing.T) {
	log := &callbackLog{}
	r := newRunner(func(o *runner.Options) { o.Callbacks = recordAll(log) })

	var target string
	r.Callbacks().RegisterCallback(runner.NewFunctionCallback(runner.CallbackOnHandoff, func(_ context.Context, cc *runner.CallbackContext) error {
		target = cc.HandoffTarget.Name
		return nil
	}))

	d := newDesk(t, []model.Step{model.CallTools(core.FunctionCall{Name: "transfer_to_billing"})})

	_, err := r.Run(context.Background(), d.triage, core.TextInput("invoice"))
	require.NoError(t, err)

	assert.Equal(t, "billing", target)
	assert.Equal(t, []string{
		"[before_agent] agent: triage",
		"[before_model] agent: triage",
		"[after_model] agent: triage",
		"[on_handoff] agent: triage",
		"[after_agent] agent: triage",
		"[before_agent] agent: billing",
		"[before_model] agent: billing",
		"[after_model] agent: billing",
		"[after_agent] agent: billing",
	}, log.all())
}

func TestCallbacks_ErrorStopsRun(t *testing.T) {
	veto := errors.New("budget exhausted")

	var reported error
	r := newRunner(func(o *runner.Options) {
		o.Callbacks = []runner.Callback{
			runner.NewFunctionCallback(runner.CallbackBeforeModel, func(context.Context, *runner.CallbackContext) error {
				return veto
			}),
			runner.NewFunctionCallback(runner.CallbackOnError, func(_ context.Context, cc *runner.CallbackContext) error {
				reported = cc.Err
				return nil
			}),
		}
	})

	m := model.NewScriptedModel("m", model.Reply("hi"))

	_, err := r.Run(context.Background(), newAgent(t, "a", m), core.TextInput("hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, veto)
	assert.Contains(t, err.Error(), "before_model callback")
	assert.ErrorIs(t, reported, veto)
	assert.Zero(t, m.Calls())
}

func TestCallbacks_RequestCanBeModified(t *testing.T) {
	r := newRunner(func(o *runner.Options) {
		o.Callbacks = []runner.Callback{
			runner.NewFunctionCallback(runner.CallbackBeforeModel, func(_ context.Context, cc *runner.CallbackContext) error {
				cc.Request.Instructions += " Be brief."
				return nil
			}),
		}
	})

	m := model.NewScriptedModel("m", model.Reply("ok"))

	_, err := r.Run(context.Background(), newAgent(t, "a", m), core.TextInput("hi"))
	require.NoError(t, err)
	assert.Equal(t, "You are a. Be brief.", m.Requests()[0].Instructions)
}

func TestCallbacks_StateValidation(t *testing.T) {
	setter := tool.NewWithContext("set_total", "Stores the total", nil, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		tc.SetState("total", -1)
		return "stored", nil
	})

	r := newRunner(func(o *runner.Options) {
		o.Callbacks = []runner.Callback{
			runner.NewStateValidationCallback(func(state map[string]any) error {
				if v, ok := state["total"].(int); ok && v < 0 {
					return errors.New("total must not be negative")
				}
				return nil
			}),
		}
	})

	m := model.NewScriptedModel("m", model.CallTools(core.FunctionCall{Name: "set_total"}), model.Reply("done"))
	a := newAgent(t, "a", m, func(o *agent.Options) { o.Tools = []tool.Tool{setter} })

	_, err := r.Run(context.Background(), a, core.TextInput("go"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total must not be negative")
	assert.Equal(t, 1, m.Calls())
}
