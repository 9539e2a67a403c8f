package tracing

import "github.com/hupe1980/agentrelay/core"

// SpanKind identifies the type-specific payload of a span.
type SpanKind string

const (
	SpanKindAgent      SpanKind = "agent"
	SpanKindGeneration SpanKind = "generation"
	SpanKindFunction   SpanKind = "function"
	SpanKindHandoff    SpanKind = "handoff"
	SpanKindGuardrail  SpanKind = "guardrail"
	SpanKindCustom     SpanKind = "custom"
)

// SpanData is the type-specific payload of a span.
type SpanData interface {
	Kind() SpanKind
	Name() string
}

// AgentSpanData covers one agent's activity within a run.
type AgentSpanData struct {
	Agent    string   `json:"agent"`
	Tools    []string `json:"tools,omitempty"`
	Handoffs []string `json:"handoffs,omitempty"`
}

func (AgentSpanData) Kind() SpanKind { return SpanKindAgent }
func (d AgentSpanData) Name() string { return d.Agent }

// GenerationSpanData covers one model call.
type GenerationSpanData struct {
	Model    string     `json:"model"`
	Provider string     `json:"provider,omitempty"`
	Messages int        `json:"messages"`
	Output   string     `json:"output,omitempty"`
	Usage    core.Usage `json:"usage"`
}

func (GenerationSpanData) Kind() SpanKind { return SpanKindGeneration }
func (d GenerationSpanData) Name() string { return d.Model }

// FunctionSpanData covers one tool call.
type FunctionSpanData struct {
	Tool   string `json:"tool"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
}

func (FunctionSpanData) Kind() SpanKind { return SpanKindFunction }
func (d FunctionSpanData) Name() string { return d.Tool }

// HandoffSpanData covers a transfer of control between agents.
type HandoffSpanData struct {
	From string `json:"from"`
	To   string `json:"to,omitempty"`
}

func (HandoffSpanData) Kind() SpanKind { return SpanKindHandoff }
func (d HandoffSpanData) Name() string { return d.From + "->" + d.To }

// GuardrailSpanData covers one guardrail evaluation.
type GuardrailSpanData struct {
	Guardrail string `json:"guardrail"`
	Triggered bool   `json:"triggered"`
}

func (GuardrailSpanData) Kind() SpanKind { return SpanKindGuardrail }
func (d GuardrailSpanData) Name() string { return d.Guardrail }

// CustomSpanData is a free form span payload.
type CustomSpanData struct {
	Label string         `json:"label"`
	Data  map[string]any `json:"data,omitempty"`
}

func (CustomSpanData) Kind() SpanKind { return SpanKindCustom }
func (d CustomSpanData) Name() string { return d.Label }
