package guardrail

import (
	"context"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/tracing"
	"golang.org/x/sync/errgroup"
)

// EvaluatorOptions configure an Evaluator.
type EvaluatorOptions struct {
	Logger logging.Logger
}

// Evaluator runs the guardrails of one phase concurrently.
type Evaluator struct {
	logger logging.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(optFns ...func(o *EvaluatorOptions)) *Evaluator {
	opts := EvaluatorOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Evaluator{logger: logging.OrNoOp(opts.Logger)}
}

type outcome struct {
	result Result
	err    error
}

// EvaluateInput runs every input guardrail against items and waits for all of
// them. The first guardrail in declaration order that failed or tripped
// decides the returned error.
func (e *Evaluator) EvaluateInput(
	ctx context.Context,
	runCtx *core.RunContext,
	agent core.AgentInfo,
	guardrails []Input,
	items []core.Item,
) ([]InputResult, error) {
	outcomes := run(ctx, len(guardrails), func(ctx context.Context, i int) outcome {
		g := guardrails[i]
		return e.evaluate(ctx, "input", g.Name, agent, func(ctx context.Context) (Result, error) {
			return g.Func(ctx, runCtx, agent, items)
		})
	})

	results := make([]InputResult, len(guardrails))
	for i, g := range guardrails {
		results[i] = InputResult{Guardrail: g.Name, Agent: agent.Name, Result: outcomes[i].result}
	}

	for i, o := range outcomes {
		if o.err != nil {
			return results, o.err
		}
		if o.result.TripwireTriggered {
			return results, &InputTripwireError{
				Guardrail:  guardrails[i].Name,
				Agent:      agent.Name,
				OutputInfo: o.result.OutputInfo,
				Results:    results,
			}
		}
	}

	return results, nil
}

// EvaluateOutput runs every output guardrail against output with the same
// semantics as EvaluateInput.
func (e *Evaluator) EvaluateOutput(
	ctx context.Context,
	runCtx *core.RunContext,
	agent core.AgentInfo,
	guardrails []Output,
	output any,
) ([]OutputResult, error) {
	outcomes := run(ctx, len(guardrails), func(ctx context.Context, i int) outcome {
		g := guardrails[i]
		return e.evaluate(ctx, "output", g.Name, agent, func(ctx context.Context) (Result, error) {
			return g.Func(ctx, runCtx, agent, output)
		})
	})

	results := make([]OutputResult, len(guardrails))
	for i, g := range guardrails {
		results[i] = OutputResult{Guardrail: g.Name, Agent: agent.Name, Result: outcomes[i].result}
	}

	for i, o := range outcomes {
		if o.err != nil {
			return results, o.err
		}
		if o.result.TripwireTriggered {
			return results, &OutputTripwireError{
				Guardrail:  guardrails[i].Name,
				Agent:      agent.Name,
				OutputInfo: o.result.OutputInfo,
				Results:    results,
			}
		}
	}

	return results, nil
}

// run fans fn out over n indexes and collects every outcome.
func run(ctx context.Context, n int, fn func(ctx context.Context, i int) outcome) []outcome {
	outcomes := make([]outcome, n)
	if n == 0 {
		return outcomes
	}

	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			outcomes[i] = fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (e *Evaluator) evaluate(
	ctx context.Context,
	phase, name string,
	agent core.AgentInfo,
	fn func(ctx context.Context) (Result, error),
) (o outcome) {
	ctx, span := tracing.StartSpan(ctx, tracing.GuardrailSpanData{Guardrail: name})
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("guardrail.panic", "phase", phase, "guardrail", name, "agent", agent.Name, "recover", r)
			o = outcome{err: &ExecutionError{Guardrail: name, Phase: phase, Panic: r}}
		}

		span.SetData(tracing.GuardrailSpanData{Guardrail: name, Triggered: o.result.TripwireTriggered})
		if o.err != nil {
			span.SetError(o.err.Error(), nil)
		}
		span.Finish()
	}()

	res, err := fn(ctx)
	if err != nil {
		e.logger.Error("guardrail.error", "phase", phase, "guardrail", name, "agent", agent.Name, "error", err.Error())
		return outcome{err: &ExecutionError{Guardrail: name, Phase: phase, Err: err}}
	}

	e.logger.Debug(
		"guardrail.evaluated",
		"phase", phase,
		"guardrail", name,
		"agent", agent.Name,
		"triggered", res.TripwireTriggered,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return outcome{result: res}
}
