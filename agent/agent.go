package agent

import (
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/tool"
)

// Options configures an Agent.
//
// Use functional options with New to set fields.
type Options struct {
	Description      string
	Instructions     Instruction
	Model            model.Model
	Tools            []tool.Tool
	InputGuardrails  []guardrail.Input
	OutputGuardrails []guardrail.Output
	// OutputSchema makes the agent produce structured output. The final text
	// is decoded as JSON and validated against the schema.
	OutputSchema map[string]any
	Handoffs     []Handoff
	// HandoffDescription is shown to other agents handing off to this one.
	HandoffDescription string
	// AllowedHandoffTargets restricts the agents this agent may hand off to.
	// Empty allows every target.
	AllowedHandoffTargets []string
}

// Agent is an immutable agent definition.
type Agent struct {
	name               string
	description        string
	instructions       Instruction
	model              model.Model
	tools              []tool.Tool
	inputGuardrails    []guardrail.Input
	outputGuardrails   []guardrail.Output
	outputSchema       map[string]any
	outputValidator    *util.Validator
	handoffs           []Handoff
	handoffDescription string
	allowedTargets     []string
}

// New creates an agent. It fails when tool names are not unique, a handoff
// has no target, handoff tool names collide with tools, or the output
// schema does not compile.
func New(name string, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &Agent{
		name:               name,
		description:        opts.Description,
		instructions:       opts.Instructions,
		model:              opts.Model,
		tools:              slices.Clone(opts.Tools),
		inputGuardrails:    slices.Clone(opts.InputGuardrails),
		outputGuardrails:   slices.Clone(opts.OutputGuardrails),
		outputSchema:       maps.Clone(opts.OutputSchema),
		handoffs:           slices.Clone(opts.Handoffs),
		handoffDescription: opts.HandoffDescription,
		allowedTargets:     slices.Clone(opts.AllowedHandoffTargets),
	}

	if a.outputSchema != nil {
		v, err := util.CompileSchema(a.outputSchema)
		if err != nil {
			return nil, fmt.Errorf("%w: agent %s: output schema: %w", ErrInvalidAgent, name, err)
		}
		a.outputValidator = v
	}

	if err := a.validate(); err != nil {
		return nil, err
	}

	return a, nil
}

// MustNew is like New but panics on error.
func MustNew(name string, optFns ...func(o *Options)) *Agent {
	a, err := New(name, optFns...)
	if err != nil {
		panic(err)
	}
	return a
}

func (a *Agent) validate() error {
	if a.name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAgent)
	}

	names := make(map[string]struct{}, len(a.tools)+len(a.handoffs))
	for _, t := range a.tools {
		if t == nil {
			return fmt.Errorf("%w: agent %s: nil tool", ErrInvalidAgent, a.name)
		}
		if _, dup := names[t.Name()]; dup {
			return fmt.Errorf("%w: agent %s: duplicate tool %q", ErrInvalidAgent, a.name, t.Name())
		}
		names[t.Name()] = struct{}{}
	}

	for _, h := range a.handoffs {
		if h.Target == nil && h.Resolve == nil {
			return fmt.Errorf("%w: agent %s: handoff %q has no target", ErrInvalidAgent, a.name, h.ToolName)
		}
		n := h.Name()
		if n == "" {
			return fmt.Errorf("%w: agent %s: handoff without tool name", ErrInvalidAgent, a.name)
		}
		if _, dup := names[n]; dup {
			return fmt.Errorf("%w: agent %s: handoff tool %q collides with another tool", ErrInvalidAgent, a.name, n)
		}
		names[n] = struct{}{}
	}

	for _, g := range a.inputGuardrails {
		if g.Func == nil {
			return fmt.Errorf("%w: agent %s: input guardrail %q has no func", ErrInvalidAgent, a.name, g.Name)
		}
	}
	for _, g := range a.outputGuardrails {
		if g.Func == nil {
			return fmt.Errorf("%w: agent %s: output guardrail %q has no func", ErrInvalidAgent, a.name, g.Name)
		}
	}

	return nil
}

// Name returns the agent's unique name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent's description.
func (a *Agent) Description() string { return a.description }

// Info returns the identifying details used in contexts and callbacks.
func (a *Agent) Info() core.AgentInfo {
	return core.AgentInfo{Name: a.name, Description: a.description}
}

// Instructions returns the agent's instruction source.
func (a *Agent) Instructions() Instruction { return a.instructions }

// ResolveInstructions renders the system prompt for rc.
func (a *Agent) ResolveInstructions(rc *core.RunContext) (string, error) {
	return a.instructions.Resolve(rc)
}

// Model returns the model the agent calls.
func (a *Agent) Model() model.Model { return a.model }

// Tools returns a copy of the agent's tools in declaration order.
func (a *Agent) Tools() []tool.Tool { return slices.Clone(a.tools) }

// Tool looks up a tool by name.
func (a *Agent) Tool(name string) (tool.Tool, bool) {
	for _, t := range a.tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// InputGuardrails returns a copy of the input guardrails.
func (a *Agent) InputGuardrails() []guardrail.Input { return slices.Clone(a.inputGuardrails) }

// OutputGuardrails returns a copy of the output guardrails.
func (a *Agent) OutputGuardrails() []guardrail.Output { return slices.Clone(a.outputGuardrails) }

// OutputSchema returns a copy of the structured output schema, or nil.
func (a *Agent) OutputSchema() map[string]any { return maps.Clone(a.outputSchema) }

// HasStructuredOutput reports whether the agent has an output schema.
func (a *Agent) HasStructuredOutput() bool { return a.outputValidator != nil }

// ParseOutput decodes and validates the final text of a structured output
// agent. Agents without an output schema return text unchanged.
func (a *Agent) ParseOutput(text string) (any, error) {
	if a.outputValidator == nil {
		return text, nil
	}
	return parseStructured(a.outputValidator, text)
}

// Handoffs returns a copy of the handoffs in declaration order.
func (a *Agent) Handoffs() []Handoff { return slices.Clone(a.handoffs) }

// Handoff looks up a handoff by tool name.
func (a *Agent) Handoff(toolName string) (Handoff, bool) {
	for _, h := range a.handoffs {
		if h.Name() == toolName {
			return h, true
		}
	}
	return Handoff{}, false
}

// HandoffDescription returns the description other agents see in the
// transfer tool pointing at this agent.
func (a *Agent) HandoffDescription() string { return a.handoffDescription }

// AllowedHandoffTargets returns a copy of the handoff allow-list.
func (a *Agent) AllowedHandoffTargets() []string { return slices.Clone(a.allowedTargets) }

// CanHandoffTo reports whether the allow-list permits target.
func (a *Agent) CanHandoffTo(target string) bool {
	return len(a.allowedTargets) == 0 || slices.Contains(a.allowedTargets, target)
}

// ToolDefinitions returns the declarations handed to the model: tools first,
// then one transfer tool per handoff.
func (a *Agent) ToolDefinitions() []model.ToolDefinition {
	defs := tool.Definitions(a.tools)
	for _, h := range a.handoffs {
		defs = append(defs, h.Definition())
	}
	return defs
}

// Clone returns a shallow copy. Slices and maps are shared read-only.
func (a *Agent) Clone() *Agent {
	c := *a
	return &c
}

// WithHandoffs returns a new agent whose handoffs are the current ones
// followed by handoffs. The original agent is not modified.
func (a *Agent) WithHandoffs(handoffs ...Handoff) (*Agent, error) {
	c := a.Clone()
	c.handoffs = slices.Concat(a.handoffs, handoffs)
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// WithTools returns a new agent with tools replacing the current ones.
func (a *Agent) WithTools(tools ...tool.Tool) (*Agent, error) {
	c := a.Clone()
	c.tools = slices.Clone(tools)
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// WithInstructions returns a new agent with different instructions.
func (a *Agent) WithInstructions(inst Instruction) *Agent {
	c := a.Clone()
	c.instructions = inst
	return c
}

// WithModel returns a new agent calling m.
func (a *Agent) WithModel(m model.Model) *Agent {
	c := a.Clone()
	c.model = m
	return c
}
