// Package otel bridges agentrelay traces to OpenTelemetry.
//
// Each agentrelay trace becomes a root OpenTelemetry span and every agentrelay
// span becomes a child of its parent, keeping the original timestamps:
//
//	tracing.AddProcessor(otel.New(otel.WithTracerProvider(tp)))
package otel

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/agentrelay/tracing"
	otelAPI "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hupe1980/agentrelay"

// Option configures the processor.
type Option func(*Processor)

// WithTracerProvider sets an explicit TracerProvider. The global provider is
// used otherwise.
func WithTracerProvider(tp otelTrace.TracerProvider) Option {
	return func(p *Processor) {
		p.tracerProvider = tp
	}
}

type entry struct {
	ctx  context.Context
	span otelTrace.Span
}

// Processor implements tracing.Processor on top of an OpenTelemetry tracer.
type Processor struct {
	tracerProvider otelTrace.TracerProvider
	tracer         otelTrace.Tracer

	mu     sync.Mutex
	traces map[string]entry
	spans  map[string]entry
}

var _ tracing.Processor = (*Processor)(nil)

// New creates the bridge processor.
func New(opts ...Option) *Processor {
	p := &Processor{
		traces: make(map[string]entry),
		spans:  make(map[string]entry),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.tracerProvider == nil {
		p.tracerProvider = otelAPI.GetTracerProvider()
	}
	p.tracer = p.tracerProvider.Tracer(tracerName)

	return p
}

func (p *Processor) OnTraceStart(t tracing.TraceRecord) {
	ctx, span := p.tracer.Start(context.Background(), t.Name,
		otelTrace.WithTimestamp(t.StartedAt),
		otelTrace.WithSpanKind(otelTrace.SpanKindInternal),
		otelTrace.WithAttributes(traceAttrs(t)...),
	)

	p.mu.Lock()
	p.traces[t.TraceID] = entry{ctx: ctx, span: span}
	p.mu.Unlock()
}

func (p *Processor) OnTraceEnd(t tracing.TraceRecord) {
	p.mu.Lock()
	e, ok := p.traces[t.TraceID]
	delete(p.traces, t.TraceID)
	p.mu.Unlock()

	if !ok {
		return
	}

	if t.Error != nil {
		e.span.RecordError(errors.New(t.Error.Message))
		e.span.SetStatus(codes.Error, t.Error.Message)
	}

	e.span.End(otelTrace.WithTimestamp(t.EndedAt))
}

func (p *Processor) OnSpanStart(s tracing.SpanRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startLocked(s)
}

func (p *Processor) startLocked(s tracing.SpanRecord) entry {
	parent := context.Background()
	if e, ok := p.spans[s.ParentID]; ok && s.ParentID != "" {
		parent = e.ctx
	} else if e, ok := p.traces[s.TraceID]; ok {
		parent = e.ctx
	}

	ctx, span := p.tracer.Start(parent, spanName(s),
		otelTrace.WithTimestamp(s.StartedAt),
		otelTrace.WithSpanKind(spanKind(s.Kind)),
	)

	e := entry{ctx: ctx, span: span}
	p.spans[s.SpanID] = e

	return e
}

func (p *Processor) OnSpanEnd(s tracing.SpanRecord) {
	p.mu.Lock()
	e, ok := p.spans[s.SpanID]
	if !ok {
		// Registered after the span started.
		e = p.startLocked(s)
	}
	delete(p.spans, s.SpanID)
	p.mu.Unlock()

	e.span.SetAttributes(spanAttrs(s)...)

	if s.Error != nil {
		e.span.RecordError(errors.New(s.Error.Message))
		e.span.SetStatus(codes.Error, s.Error.Message)
	}

	e.span.End(otelTrace.WithTimestamp(s.EndedAt))
}

// ForceFlush flushes the tracer provider when it supports flushing.
func (p *Processor) ForceFlush(ctx context.Context) error {
	if f, ok := p.tracerProvider.(interface{ ForceFlush(context.Context) error }); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

// Shutdown ends every span still open. The tracer provider is owned by the
// caller and is not shut down.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	open := make([]entry, 0, len(p.spans)+len(p.traces))
	for _, e := range p.spans {
		open = append(open, e)
	}
	for _, e := range p.traces {
		open = append(open, e)
	}
	p.spans = make(map[string]entry)
	p.traces = make(map[string]entry)
	p.mu.Unlock()

	for _, e := range open {
		e.span.SetStatus(codes.Error, "processor shut down")
		e.span.End()
	}

	return p.ForceFlush(ctx)
}

func spanName(s tracing.SpanRecord) string {
	if s.Name == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.Name
}

func spanKind(k tracing.SpanKind) otelTrace.SpanKind {
	if k == tracing.SpanKindGeneration {
		return otelTrace.SpanKindClient
	}
	return otelTrace.SpanKindInternal
}
