package otel_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentrelay/tracing"
	traceOtel "github.com/hupe1980/agentrelay/tracing/otel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkTrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setup(t *testing.T) (*tracing.Provider, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdkTrace.NewTracerProvider(sdkTrace.WithSyncer(exporter))
	p := tracing.NewProvider(func(o *tracing.ProviderOptions) {
		o.Processors = []tracing.Processor{traceOtel.New(traceOtel.WithTracerProvider(tp))}
	})
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	return p, exporter
}

func byName(spans tracetest.SpanStubs, name string) *tracetest.SpanStub {
	for i := range spans {
		if spans[i].Name == name {
			return &spans[i]
		}
	}
	return nil
}

func TestProcessorMirrorsNesting(t *testing.T) {
	p, exporter := setup(t)

	ctx, tr, _ := p.StartTrace(context.Background(), "run")
	_ = tracing.WithSpan(ctx, tracing.AgentSpanData{Agent: "math"}, func(ctx context.Context, _ *tracing.Span) error {
		return tracing.WithSpan(ctx, tracing.FunctionSpanData{Tool: "add", Input: `{"a":2,"b":3}`, Output: "5"}, func(context.Context, *tracing.Span) error {
			return nil
		})
	})
	tr.Finish()
	require.NoError(t, p.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)

	root := byName(spans, "run")
	agentSpan := byName(spans, "agent:math")
	toolSpan := byName(spans, "function:add")
	require.NotNil(t, root)
	require.NotNil(t, agentSpan)
	require.NotNil(t, toolSpan)

	assert.Equal(t, root.SpanContext.SpanID(), agentSpan.Parent.SpanID())
	assert.Equal(t, agentSpan.SpanContext.SpanID(), toolSpan.Parent.SpanID())
	assert.Equal(t, root.SpanContext.TraceID(), toolSpan.SpanContext.TraceID())

	var found bool
	for _, kv := range toolSpan.Attributes {
		if string(kv.Key) == "tool.name" {
			found = true
			assert.Equal(t, "add", kv.Value.AsString())
		}
	}
	assert.True(t, found)
}

func TestProcessorRecordsErrors(t *testing.T) {
	p, exporter := setup(t)

	ctx, tr, _ := p.StartTrace(context.Background(), "run")
	_ = tracing.WithSpan(ctx, tracing.GuardrailSpanData{Guardrail: "forbidden", Triggered: true}, func(context.Context, *tracing.Span) error {
		return errors.New("tripwire")
	})
	tr.Finish()
	require.NoError(t, p.ForceFlush(context.Background()))

	span := byName(exporter.GetSpans(), "guardrail:forbidden")
	require.NotNil(t, span)
	assert.Equal(t, codes.Error, span.Status.Code)
	assert.Equal(t, "tripwire", span.Status.Description)
	assert.Len(t, span.Events, 1)
}

func TestProcessorShutdownEndsOpenSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdkTrace.NewTracerProvider(sdkTrace.WithSyncer(exporter))
	proc := traceOtel.New(traceOtel.WithTracerProvider(tp))

	proc.OnTraceStart(tracing.TraceRecord{TraceID: "t1", Name: "run"})
	proc.OnSpanStart(tracing.SpanRecord{TraceID: "t1", SpanID: "s1", Kind: tracing.SpanKindCustom, Name: "x"})

	require.NoError(t, proc.Shutdown(context.Background()))
	assert.Len(t, exporter.GetSpans(), 2)
}
