package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/handoff"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/tool"
	"github.com/hupe1980/agentrelay/tracing"
)

var (
	// ErrNilAgent is returned when a run is started without an agent.
	ErrNilAgent = errors.New("agent is nil")
	// ErrNoModel is returned when the current agent has no model.
	ErrNoModel = errors.New("agent has no model")
)

const ignoredHandoffOutput = "Multiple handoffs requested in one response. Ignoring this one."

// Runner executes agents. It holds no per-run state and its methods are safe
// for concurrent use.
type Runner struct {
	opts      Options
	logger    logging.Logger
	sem       chan struct{}
	invoker   *tool.Invoker
	evaluator *guardrail.Evaluator
	callbacks *CallbackManager
}

// New constructs a Runner with optional overrides of DefaultOptions.
func New(optFns ...func(o *Options)) *Runner {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := logging.OrNoOp(opts.Logger)

	var sem chan struct{}
	if opts.MaxConcurrentRuns > 0 {
		sem = make(chan struct{}, opts.MaxConcurrentRuns)
	}

	return &Runner{
		opts:   opts,
		logger: logger,
		sem:    sem,
		invoker: tool.NewInvoker(func(o *tool.InvokerOptions) {
			o.MaxParallel = opts.ToolParallelism
			o.Logger = logger
		}),
		evaluator: guardrail.NewEvaluator(func(o *guardrail.EvaluatorOptions) {
			o.Logger = logger
		}),
		callbacks: NewCallbackManager(opts.Callbacks...),
	}
}

// Callbacks returns the runner's callback manager.
func (r *Runner) Callbacks() *CallbackManager { return r.callbacks }

// Run executes a starting with input and blocks until the run ends.
func (r *Runner) Run(ctx context.Context, a *agent.Agent, input core.Input, optFns ...func(o *RunOptions)) (*RunResult, error) {
	return r.run(ctx, a, input, newRunOptions(optFns), nil)
}

// RunStreamed starts a run in the background and returns a handle publishing
// its events.
func (r *Runner) RunStreamed(ctx context.Context, a *agent.Agent, input core.Input, optFns ...func(o *RunOptions)) (*StreamedRun, error) {
	if a == nil {
		return nil, ErrNilAgent
	}

	s := &StreamedRun{
		events: make(chan StreamEvent, max(r.opts.EventBufferSize, 0)),
		done:   make(chan struct{}),
	}

	ro := newRunOptions(optFns)

	go func() {
		defer close(s.done)
		defer close(s.events)

		s.result, s.err = r.run(ctx, a, input, ro, &emitter{ch: s.events})
	}()

	return s, nil
}

func newRunOptions(optFns []func(o *RunOptions)) RunOptions {
	ro := RunOptions{TraceName: "agent run"}
	for _, fn := range optFns {
		fn(&ro)
	}
	return ro
}

// runState is the mutable state of one run. It is only touched by the run's
// goroutine.
type runState struct {
	rc     *core.RunContext
	emit   *emitter
	result *RunResult
	logger logging.Logger

	// inputHistory and carried form the conversation the current agent sees.
	inputHistory []core.Item
	carried      []core.Item

	current    *agent.Agent
	agentCtx   context.Context
	agentSpan  *tracing.Span
	agentTurns int

	// held buffers partial responses until the output guardrails passed.
	held []StreamEvent
}

func (st *runState) modelInput() []core.Item {
	return slices.Concat(st.inputHistory, st.carried)
}

func (st *runState) add(ctx context.Context, items ...core.Item) error {
	st.result.NewItems = append(st.result.NewItems, items...)
	st.carried = append(st.carried, items...)

	for _, it := range items {
		if err := st.emit.emit(ctx, ItemEvent{Item: it}); err != nil {
			return err
		}
	}

	return nil
}

func (st *runState) flushHeld(ctx context.Context) error {
	held := st.held
	st.held = nil

	for _, ev := range held {
		if err := st.emit.emit(ctx, ev); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) run(ctx context.Context, a *agent.Agent, input core.Input, ro RunOptions, em *emitter) (_ *RunResult, err error) {
	if a == nil {
		return nil, ErrNilAgent
	}

	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release()

	timeout := r.opts.Timeout
	if ro.Timeout > 0 {
		timeout = ro.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, timeout, &core.TimeoutError{Scope: "run", Timeout: timeout})
		defer cancel()
	}

	maxTurns := r.opts.MaxTurns
	if ro.MaxTurns > 0 {
		maxTurns = ro.MaxTurns
	}

	runID := "run_" + core.NewID()
	logger := logging.With(r.logger, "run_id", runID)
	rc := core.NewRunContext(runID, ro.Context, logger)

	st := &runState{
		rc:     rc,
		emit:   em,
		result: &RunResult{RunID: runID},
		logger: logger,
	}

	ctx, tr, owned := r.startTrace(ctx, ro)
	if tr != nil {
		st.result.TraceID = tr.ID()
	}

	defer func() {
		if err != nil {
			logger.Error("run.error", "agent", rc.Agent().Name, "error", err.Error())
			_ = r.callbacks.ExecuteCallbacks(ctx, CallbackOnError, &CallbackContext{RunContext: rc, Agent: rc.Agent(), Err: err})
			if tr != nil && owned {
				tr.SetError(err.Error())
			}
		}
		if tr != nil && owned {
			tr.Finish()
		}
	}()

	items := input.Items()

	var history []core.Item
	if ro.SessionID != "" && r.opts.Session != nil {
		history, err = r.opts.Session.Items(ctx, ro.SessionID)
		if err != nil {
			return nil, fmt.Errorf("load session %s: %w", ro.SessionID, err)
		}
	}

	st.inputHistory = slices.Concat(history, items)
	st.result.Input = slices.Clone(st.inputHistory)

	logger.Info("run.start", "agent", a.Name(), "max_turns", maxTurns, "session_id", ro.SessionID)

	defer func() {
		if st.agentSpan != nil {
			if lErr := r.leaveAgent(ctx, st, err); lErr != nil {
				logger.Warn("run.after_agent.error", "agent", st.current.Name(), "error", lErr.Error())
			}
		}
	}()

	if err := r.enterAgent(ctx, st, a); err != nil {
		return nil, err
	}

	limiter := core.NewTurnLimiter(maxTurns)

	for {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}

		if err := limiter.Increment(); err != nil {
			return nil, err
		}
		st.result.Turns = limiter.Count()

		logger.Debug("run.turn.start", "agent", st.current.Name(), "turn", st.result.Turns)

		action, err := r.turn(ctx, st)
		if err != nil {
			return nil, err
		}

		switch act := action.(type) {
		case ToolCallsAction:
			if err := st.flushHeld(ctx); err != nil {
				return nil, err
			}
			if err := r.runTools(ctx, st, act); err != nil {
				return nil, err
			}
		case HandoffAction:
			if err := st.flushHeld(ctx); err != nil {
				return nil, err
			}
			if err := r.handoff(ctx, st, act); err != nil {
				return nil, err
			}
		case FinalMessageAction:
			if err := r.finish(ctx, st, act, items, ro); err != nil {
				return nil, err
			}

			logger.Info(
				"run.complete",
				"agent", st.current.Name(),
				"turns", st.result.Turns,
				"items", len(st.result.NewItems),
				"total_tokens", st.result.Usage.TotalTokens,
			)

			if err := st.emit.emit(ctx, RunCompleteEvent{Result: st.result}); err != nil {
				return nil, err
			}

			return st.result, nil
		case ErrorAction:
			return nil, act.Err
		default:
			return nil, fmt.Errorf("unhandled action %T", action)
		}
	}
}

func (r *Runner) acquire(ctx context.Context) error {
	if r.sem == nil {
		return nil
	}

	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) release() {
	if r.sem != nil {
		<-r.sem
	}
}

func (r *Runner) startTrace(ctx context.Context, ro RunOptions) (context.Context, *tracing.Trace, bool) {
	if r.opts.TracingDisabled {
		return ctx, nil, false
	}

	p := r.opts.Tracing
	if p == nil {
		p = tracing.Default()
	}

	return p.StartTrace(ctx, ro.TraceName, func(o *tracing.TraceOptions) {
		o.GroupID = ro.GroupID
		o.Metadata = ro.Metadata
	})
}

func (r *Runner) enterAgent(ctx context.Context, st *runState, a *agent.Agent) error {
	st.current = a
	st.agentTurns = 0
	st.rc.SetAgent(a.Info())

	handoffNames := make([]string, 0, len(a.Handoffs()))
	for _, h := range a.Handoffs() {
		handoffNames = append(handoffNames, h.Name())
	}

	toolNames := make([]string, 0, len(a.Tools()))
	for _, t := range a.Tools() {
		toolNames = append(toolNames, t.Name())
	}

	st.agentCtx, st.agentSpan = tracing.StartSpan(ctx, tracing.AgentSpanData{
		Agent:    a.Name(),
		Tools:    toolNames,
		Handoffs: handoffNames,
	})

	if err := st.emit.emit(ctx, AgentUpdatedEvent{Agent: a.Info()}); err != nil {
		return err
	}

	return r.callbacks.ExecuteCallbacks(st.agentCtx, CallbackBeforeAgent, &CallbackContext{RunContext: st.rc, Agent: a.Info()})
}

func (r *Runner) leaveAgent(ctx context.Context, st *runState, runErr error) error {
	span := st.agentSpan
	st.agentSpan = nil

	if runErr != nil {
		span.SetError(runErr.Error(), nil)
	}
	span.Finish()

	return r.callbacks.ExecuteCallbacks(ctx, CallbackAfterAgent, &CallbackContext{RunContext: st.rc, Agent: st.current.Info(), Err: runErr})
}

// turn performs one model call of the current agent, including the input
// guardrails on the agent's first turn, and classifies the response.
func (r *Runner) turn(ctx context.Context, st *runState) (Action, error) {
	a := st.current
	info := a.Info()

	firstTurn := st.agentTurns == 0
	st.agentTurns++

	m := a.Model()
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoModel, info.Name)
	}

	instructions, err := a.ResolveInstructions(st.rc)
	if err != nil {
		return nil, fmt.Errorf("resolve instructions of agent %s: %w", info.Name, err)
	}

	input := st.modelInput()

	req := model.Request{
		Instructions: instructions,
		Contents:     core.ToContents(input),
		Tools:        a.ToolDefinitions(),
		OutputSchema: a.OutputSchema(),
		Stream:       st.emit.enabled(),
	}

	guards := firstTurn && len(a.InputGuardrails()) > 0

	if guards && r.opts.InputGuardrailMode == GuardrailsBlocking {
		if err := r.inputGuardrails(st.agentCtx, st, input); err != nil {
			return nil, interrupted(st.agentCtx, err)
		}
		guards = false
	}

	if err := r.callbacks.ExecuteCallbacks(st.agentCtx, CallbackBeforeModel, &CallbackContext{RunContext: st.rc, Agent: info, Request: &req}); err != nil {
		return nil, err
	}

	modelCtx, cancelModel := context.WithCancelCause(st.agentCtx)
	defer cancelModel(nil)

	var (
		guardDone    chan error
		guardResults []guardrail.InputResult
	)

	if guards {
		guardDone = make(chan error, 1)
		go func() {
			results, err := r.evaluator.EvaluateInput(st.agentCtx, st.rc, info, a.InputGuardrails(), input)
			guardResults = results
			if err != nil {
				cancelModel(err)
			}
			guardDone <- err
		}()
	}

	resp, modelErr := r.generate(modelCtx, st, m, req, guardDone != nil)

	if guardDone != nil {
		gErr := <-guardDone
		st.result.InputGuardrailResults = append(st.result.InputGuardrailResults, guardResults...)
		if gErr != nil {
			st.held = nil
			return nil, interrupted(st.agentCtx, gErr)
		}
	}

	if modelErr != nil {
		return nil, modelErr
	}

	st.result.RawResponses = append(st.result.RawResponses, resp)

	if err := r.callbacks.ExecuteCallbacks(st.agentCtx, CallbackAfterModel, &CallbackContext{RunContext: st.rc, Agent: info, Request: &req, Response: &resp}); err != nil {
		return nil, err
	}

	return Classify(a, resp), nil
}

func (r *Runner) inputGuardrails(ctx context.Context, st *runState, input []core.Item) error {
	results, err := r.evaluator.EvaluateInput(ctx, st.rc, st.current.Info(), st.current.InputGuardrails(), input)
	st.result.InputGuardrailResults = append(st.result.InputGuardrailResults, results...)
	return err
}

// generate calls the model. Partial responses are held back while hold is
// set or the agent has output guardrails.
func (r *Runner) generate(ctx context.Context, st *runState, m model.Model, req model.Request, hold bool) (model.Response, error) {
	info := m.Info()
	agentName := st.current.Name()

	data := tracing.GenerationSpanData{Model: info.Name, Provider: info.Provider, Messages: len(req.Contents)}
	genCtx, span := tracing.StartSpan(ctx, data)
	defer span.Finish()

	if tt := r.opts.TurnTimeout; tt > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeoutCause(genCtx, tt, &core.TimeoutError{Scope: "turn", Timeout: tt})
		defer cancel()
	}

	var onPartial func(model.Response)
	if st.emit.enabled() {
		holding := hold || len(st.current.OutputGuardrails()) > 0
		onPartial = func(p model.Response) {
			ev := RawResponseEvent{Agent: agentName, Response: p}
			if holding {
				st.held = append(st.held, ev)
				return
			}
			_ = st.emit.emit(genCtx, ev)
		}
	}

	resp, err := model.Collect(genCtx, m, req, onPartial)
	if err != nil {
		err = modelError(genCtx, agentName, info.Name, err)
		span.SetError(err.Error(), nil)
		st.logger.Error("run.model.error", "agent", agentName, "model", info.Name, "error", err.Error())
		return model.Response{}, err
	}

	usage := core.Usage{Requests: 1}
	if resp.Usage != nil {
		usage = usage.Add(*resp.Usage)
	}
	st.rc.AddUsage(usage)

	data.Output = resp.Content.Text()
	data.Usage = usage
	span.SetData(data)

	return resp, nil
}

// interrupted reports the cause of ctx when ctx is done, so timeouts and
// cancellation at any suspension point surface as such instead of as the
// failure of the user code that was waiting.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return err
}

// modelError maps a failed model call. Context errors report the cause, so
// timeouts surface as *core.TimeoutError and tripped guardrails as their
// tripwire error.
func modelError(ctx context.Context, agentName, modelName string, err error) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}

	if errors.Is(err, model.ErrNoResponse) {
		return &core.ModelBehaviorError{Agent: agentName, Message: "model produced no final response", Err: err}
	}

	return fmt.Errorf("model %s: %w", modelName, err)
}

func (r *Runner) runTools(ctx context.Context, st *runState, act ToolCallsAction) error {
	info := st.current.Info()

	var items []core.Item
	if act.Text != "" {
		items = append(items, core.AssistantMessage(info.Name, act.Text))
	}
	for _, c := range act.Calls {
		items = append(items, c)
	}
	if err := st.add(ctx, items...); err != nil {
		return err
	}

	results, err := r.executeTools(ctx, st, act.Calls)
	if err != nil {
		return err
	}

	resultItems := make([]core.Item, 0, len(results))
	for _, res := range results {
		resultItems = append(resultItems, res)
	}

	return st.add(ctx, resultItems...)
}

func (r *Runner) executeTools(ctx context.Context, st *runState, calls []core.ToolCallItem) ([]core.ToolResultItem, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	info := st.current.Info()

	if err := r.callbacks.ExecuteCallbacks(st.agentCtx, CallbackBeforeTools, &CallbackContext{RunContext: st.rc, Agent: info, ToolCalls: calls}); err != nil {
		return nil, err
	}

	results, err := r.invoker.Invoke(st.agentCtx, st.rc, info, st.current.Tools(), calls)
	if err != nil {
		return nil, interrupted(st.agentCtx, err)
	}

	if err := r.callbacks.ExecuteCallbacks(st.agentCtx, CallbackAfterTools, &CallbackContext{
		RunContext:  st.rc,
		Agent:       info,
		ToolCalls:   calls,
		ToolResults: results,
	}); err != nil {
		return nil, err
	}

	return results, nil
}

func (r *Runner) handoff(ctx context.Context, st *runState, act HandoffAction) error {
	source := st.current
	info := source.Info()
	pre := slices.Clone(st.carried)

	// Calls are published before any tool runs, as in runTools.
	var calls []core.Item
	if act.Text != "" {
		calls = append(calls, core.AssistantMessage(info.Name, act.Text))
	}
	for _, c := range act.ToolCalls {
		calls = append(calls, c)
	}
	calls = append(calls, act.Call)
	for _, c := range act.Ignored {
		calls = append(calls, c)
	}
	if err := st.add(ctx, calls...); err != nil {
		return err
	}

	results, err := r.executeTools(ctx, st, act.ToolCalls)
	if err != nil {
		return err
	}

	outputs := make([]core.Item, 0, len(results)+len(act.Ignored)+1)
	for _, res := range results {
		outputs = append(outputs, res)
	}
	for _, c := range act.Ignored {
		outputs = append(outputs, core.ToolResultItem{
			ID:     core.NewID(),
			Agent:  info.Name,
			CallID: c.CallID,
			Name:   c.ToolName,
			Output: ignoredHandoffOutput,
		})
	}

	hctx, span := tracing.StartSpan(st.agentCtx, tracing.HandoffSpanData{From: info.Name})

	target, err := source.ResolveHandoff(hctx, st.rc, act.Handoff, act.Call.Arguments, r.opts.Registry)
	if err != nil {
		err = interrupted(st.agentCtx, err)
		span.SetError(err.Error(), nil)
		span.Finish()
		return err
	}

	span.SetData(tracing.HandoffSpanData{From: info.Name, To: target.Name()})
	span.Finish()

	outputs = append(outputs, core.HandoffOutputItem{
		ID:       core.NewID(),
		CallID:   act.Call.CallID,
		ToolName: act.Call.ToolName,
		Source:   info.Name,
		Target:   target.Name(),
	})

	if err := st.add(ctx, outputs...); err != nil {
		return err
	}

	turn := slices.Concat(calls, outputs)

	st.logger.Info("run.handoff", "from", info.Name, "to", target.Name(), "tool", act.Call.ToolName)

	if err := r.callbacks.ExecuteCallbacks(st.agentCtx, CallbackOnHandoff, &CallbackContext{
		RunContext:    st.rc,
		Agent:         info,
		HandoffTarget: target.Info(),
	}); err != nil {
		return err
	}

	filter := act.Handoff.InputFilter
	if filter == nil {
		filter = r.opts.HandoffInputFilter
	}

	if filter != nil {
		data := filter(handoff.InputData{
			InputHistory:    slices.Clone(st.inputHistory),
			PreHandoffItems: pre,
			NewItems:        slices.Clone(turn),
		})
		st.inputHistory = data.InputHistory
		st.carried = slices.Concat(data.PreHandoffItems, data.NewItems)
	}

	if err := r.leaveAgent(ctx, st, nil); err != nil {
		return err
	}

	return r.enterAgent(ctx, st, target)
}

func (r *Runner) finish(ctx context.Context, st *runState, act FinalMessageAction, input []core.Item, ro RunOptions) error {
	a := st.current
	info := a.Info()

	output, err := a.ParseOutput(act.Text)
	if err != nil {
		st.held = nil
		return &core.ModelBehaviorError{Agent: info.Name, Message: "invalid structured output", Err: err}
	}

	results, err := r.evaluator.EvaluateOutput(st.agentCtx, st.rc, info, a.OutputGuardrails(), output)
	st.result.OutputGuardrailResults = append(st.result.OutputGuardrailResults, results...)
	if err != nil {
		st.held = nil
		return interrupted(st.agentCtx, err)
	}

	if err := st.flushHeld(ctx); err != nil {
		return err
	}

	if err := st.add(ctx, core.AssistantMessage(info.Name, act.Text)); err != nil {
		return err
	}

	st.result.FinalOutput = output
	st.result.LastAgent = a
	st.result.Usage = st.rc.Usage()

	if ro.SessionID != "" && r.opts.Session != nil {
		if err := r.opts.Session.Append(ctx, ro.SessionID, slices.Concat(input, st.result.NewItems)...); err != nil {
			return fmt.Errorf("save session %s: %w", ro.SessionID, err)
		}
	}

	return nil
}
