package otel

import (
	"encoding/json"

	"github.com/hupe1980/agentrelay/tracing"
	"go.opentelemetry.io/otel/attribute"
)

func traceAttrs(t tracing.TraceRecord) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("agentrelay.trace_id", t.TraceID),
	}
	if t.GroupID != "" {
		attrs = append(attrs, attribute.String("agentrelay.group_id", t.GroupID))
	}
	if len(t.Metadata) > 0 {
		if b, err := json.Marshal(t.Metadata); err == nil {
			attrs = append(attrs, attribute.String("agentrelay.metadata", string(b)))
		}
	}
	return attrs
}

func spanAttrs(s tracing.SpanRecord) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("agentrelay.span.kind", string(s.Kind)),
	}

	switch d := s.Data.(type) {
	case tracing.AgentSpanData:
		attrs = append(attrs,
			attribute.String("agent.name", d.Agent),
			attribute.StringSlice("agent.tools", d.Tools),
			attribute.StringSlice("agent.handoffs", d.Handoffs),
		)
	case tracing.GenerationSpanData:
		attrs = append(attrs,
			attribute.String("llm.model", d.Model),
			attribute.String("llm.provider", d.Provider),
			attribute.Int("llm.input_tokens", d.Usage.InputTokens),
			attribute.Int("llm.output_tokens", d.Usage.OutputTokens),
		)
	case tracing.FunctionSpanData:
		attrs = append(attrs,
			attribute.String("tool.name", d.Tool),
			attribute.String("tool.args", d.Input),
			attribute.String("tool.output", d.Output),
		)
	case tracing.HandoffSpanData:
		attrs = append(attrs,
			attribute.String("handoff.from", d.From),
			attribute.String("handoff.to", d.To),
		)
	case tracing.GuardrailSpanData:
		attrs = append(attrs,
			attribute.String("guardrail.name", d.Guardrail),
			attribute.Bool("guardrail.triggered", d.Triggered),
		)
	case tracing.CustomSpanData:
		attrs = append(attrs, attribute.String("custom.label", d.Label))
		if len(d.Data) > 0 {
			if b, err := json.Marshal(d.Data); err == nil {
				attrs = append(attrs, attribute.String("custom.data", string(b)))
			}
		}
	}

	return attrs
}
