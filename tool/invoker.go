package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/tracing"
	"golang.org/x/sync/errgroup"
)

// InvokerOptions configure an Invoker.
type InvokerOptions struct {
	// MaxParallel bounds concurrent calls of one batch. 0 or less means no
	// limit beyond the batch size.
	MaxParallel int
	Logger      logging.Logger
}

// Invoker executes the tool calls of one model response concurrently and
// returns their results in request order.
//
//   - Arguments are validated against the tool schema before the callable runs;
//     failures become in-band results carrying a VALIDATION_ERROR ToolError.
//   - A *ToolError returned by a callable is reported in-band as well.
//   - Any other callable error (or panic) terminates the batch with an
//     *ExecutionError unless the tool implements ErrorReporter.
type Invoker struct {
	opts InvokerOptions
}

// NewInvoker creates an Invoker.
func NewInvoker(optFns ...func(o *InvokerOptions)) *Invoker {
	opts := InvokerOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Invoker{opts: opts}
}

type schemaValidator interface {
	Validator() (*util.Validator, error)
}

// Invoke runs calls against tools. Unknown tool names are a model behavior
// error and no call runs.
func (inv *Invoker) Invoke(
	ctx context.Context,
	runCtx *core.RunContext,
	agent core.AgentInfo,
	tools []Tool,
	calls []core.ToolCallItem,
) ([]core.ToolResultItem, error) {
	n := len(calls)
	if n == 0 {
		return nil, nil
	}

	registry := make(map[string]Tool, len(tools))
	for _, t := range tools {
		registry[t.Name()] = t
	}

	for _, c := range calls {
		if _, ok := registry[c.Name]; !ok {
			return nil, &core.ModelBehaviorError{
				Agent:   agent.Name,
				Message: fmt.Sprintf("tool %q not found", c.Name),
			}
		}
	}

	maxPar := inv.opts.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	results := make([]core.ToolResultItem, n)
	batchStart := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPar)

	for i, call := range calls {
		g.Go(func() error {
			res, err := inv.invokeOne(gctx, runCtx, agent, registry[call.Name], call)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	inv.opts.Logger.Debug(
		"tool.batch.complete",
		"agent", agent.Name,
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results, nil
}

func (inv *Invoker) invokeOne(
	ctx context.Context,
	runCtx *core.RunContext,
	agent core.AgentInfo,
	t Tool,
	call core.ToolCallItem,
) (res core.ToolResultItem, err error) {
	ctx, span := tracing.StartSpan(ctx, tracing.FunctionSpanData{Tool: call.Name, Input: call.Arguments})
	defer func() {
		data := tracing.FunctionSpanData{Tool: call.Name, Input: call.Arguments, Output: outputText(res)}
		span.SetData(data)
		if err != nil {
			span.SetError(err.Error(), nil)
		} else if res.Error != "" {
			span.SetError(res.Error, nil)
		}
		span.Finish()
	}()

	logger := logging.With(inv.opts.Logger, "agent", agent.Name, "tool", call.Name, "fc_id", call.CallID)
	start := time.Now()

	res = core.ToolResultItem{
		ID:     core.NewID(),
		Agent:  agent.Name,
		CallID: call.CallID,
		Name:   call.Name,
	}

	logger.Debug("tool.call.start")

	args, verr := validate(t, call.Arguments)
	if verr != nil {
		logger.Warn("tool.call.validation_failed", "error", verr.Error())

		res.Error = (&ToolError{
			Tool:    call.Name,
			Message: fmt.Sprintf("parameter validation failed: %v", verr),
			Code:    CodeValidation,
			Details: verr,
		}).Error()

		return res, nil
	}

	toolCtx := core.NewToolContext(ctx, runCtx, agent, call.CallID)

	output, panicVal, callErr := safeCall(t, toolCtx, args)
	if panicVal != nil {
		logger.Error("tool.call.panic", "recover", fmt.Sprint(panicVal))
		return res, &ExecutionError{Tool: call.Name, CallID: call.CallID, Panic: panicVal}
	}

	if callErr != nil {
		if te, ok := AsToolError(callErr); ok {
			logger.Warn("tool.call.error", "error", te.Message, "code", te.Code)
			res.Error = te.Error()
			return res, nil
		}

		if r, ok := t.(ErrorReporter); ok {
			if msg, handled := r.ReportError(toolCtx, callErr); handled {
				logger.Warn("tool.call.error", "error", callErr.Error(), "reported", true)
				res.Error = msg
				return res, nil
			}
		}

		logger.Error("tool.call.error", "error", callErr.Error())

		return res, &ExecutionError{Tool: call.Name, CallID: call.CallID, Err: callErr}
	}

	res.Output = output

	logger.Info("tool.call.success", "duration_ms", time.Since(start).Milliseconds())

	return res, nil
}

func validate(t Tool, raw string) (map[string]any, error) {
	var (
		v   *util.Validator
		err error
	)

	if sv, ok := t.(schemaValidator); ok {
		v, err = sv.Validator()
	} else {
		v, err = util.CompileSchema(t.Parameters())
	}

	if err != nil {
		return nil, &util.ValidationError{Message: fmt.Sprintf("invalid tool schema: %v", err)}
	}

	return v.ValidateJSON(raw)
}

func safeCall(t Tool, toolCtx *core.ToolContext, args map[string]any) (out, panicVal any, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicVal = r
		}
	}()

	out, err = t.Call(toolCtx, args)

	return out, nil, err
}

func outputText(res core.ToolResultItem) string {
	if res.Error != "" {
		return res.Error
	}
	if res.Output == nil {
		return ""
	}
	if s, ok := res.Output.(string); ok {
		return s
	}
	b, err := json.Marshal(res.Output)
	if err != nil {
		return fmt.Sprint(res.Output)
	}
	return string(b)
}
