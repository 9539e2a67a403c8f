package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/handoff"
	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/model"
)

// ResolveFunc picks the handoff target at invocation time.
type ResolveFunc func(ctx context.Context, rc *core.RunContext, args map[string]any) (*Agent, error)

// OnHandoffFunc runs after the target was resolved and before control moves.
// A returned error fails the run.
type OnHandoffFunc func(ctx context.Context, rc *core.RunContext, target *Agent, args map[string]any) error

// Handoff exposes a transfer of control as a synthetic tool.
type Handoff struct {
	// ToolName defaults to transfer_to_<snake_case target name>.
	ToolName    string
	Description string
	// Parameters is the JSON schema of the handoff arguments. Nil accepts
	// any object.
	Parameters map[string]any
	// InputFilter rewrites the conversation the target receives. Nil falls
	// back to the runner's default filter.
	InputFilter handoff.InputFilter
	// Target is the static target. Resolve is used when Target is nil.
	Target    *Agent
	Resolve   ResolveFunc
	OnHandoff OnHandoffFunc
}

// NewHandoff creates a handoff to a static target.
func NewHandoff(target *Agent, optFns ...func(h *Handoff)) Handoff {
	h := Handoff{Target: target}
	if target != nil {
		h.Description = handoff.Description(target.Name(), target.HandoffDescription())
	}

	for _, fn := range optFns {
		fn(&h)
	}

	return h
}

// NewDynamicHandoff creates a handoff whose target is chosen by resolve.
func NewDynamicHandoff(toolName, description string, resolve ResolveFunc, optFns ...func(h *Handoff)) Handoff {
	h := Handoff{ToolName: toolName, Description: description, Resolve: resolve}

	for _, fn := range optFns {
		fn(&h)
	}

	return h
}

// Name returns the synthetic tool name.
func (h Handoff) Name() string {
	if h.ToolName != "" {
		return h.ToolName
	}
	if h.Target != nil {
		return handoff.ToolName(h.Target.Name())
	}
	return ""
}

// Definition returns the tool declaration handed to the model.
func (h Handoff) Definition() model.ToolDefinition {
	params := h.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return model.NewToolDefinition(h.Name(), h.Description, params)
}

// ResolveHandoff carries out the checks of a handoff requested by a on h
// with the raw JSON arguments: argument validation, target resolution, the
// allow-list of a, registration in reg (when reg is not nil) and the
// OnHandoff callback. It returns the agent that becomes current.
func (a *Agent) ResolveHandoff(
	ctx context.Context,
	rc *core.RunContext,
	h Handoff,
	arguments string,
	reg *Registry,
) (*Agent, error) {
	fail := func(code HandoffErrorCode, target string, err error) error {
		return &HandoffError{Code: code, Source: a.name, Target: target, ToolName: h.Name(), Err: err}
	}

	v, err := util.CompileSchema(h.Parameters)
	if err != nil {
		return nil, fail(HandoffCodeValidation, "", err)
	}

	args, err := v.ValidateJSON(arguments)
	if err != nil {
		return nil, fail(HandoffCodeValidation, "", err)
	}

	target := h.Target
	if target == nil {
		if h.Resolve == nil {
			return nil, fail(HandoffCodeResolve, "", errors.New("handoff has no target"))
		}
		target, err = h.Resolve(ctx, rc, args)
		if err != nil {
			return nil, fail(HandoffCodeResolve, "", err)
		}
		if target == nil {
			return nil, fail(HandoffCodeResolve, "", errors.New("resolver returned no agent"))
		}
	}

	if !a.CanHandoffTo(target.Name()) {
		return nil, fail(HandoffCodeNotAllowed, target.Name(), fmt.Errorf("target not in allow-list %v", a.allowedTargets))
	}

	if reg != nil {
		registered, ok := reg.Get(target.Name())
		if !ok {
			return nil, fail(HandoffCodeNotRegistered, target.Name(), ErrAgentNotFound)
		}
		if registered != target {
			return nil, fail(HandoffCodeNotRegistered, target.Name(), fmt.Errorf("%w: another agent is registered as %s", ErrAgentNotFound, target.Name()))
		}
	}

	if h.OnHandoff != nil {
		if err := h.OnHandoff(ctx, rc, target, args); err != nil {
			return nil, fail(HandoffCodeCallback, target.Name(), err)
		}
	}

	return target, nil
}
