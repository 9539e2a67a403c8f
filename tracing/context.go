package tracing

import (
	"context"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

type traceKey struct{}

type spanKey struct{}

// ContextWithTrace returns a copy of ctx carrying t as the current trace.
func ContextWithTrace(ctx context.Context, t *Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// TraceFromContext returns the current trace, or nil.
func TraceFromContext(ctx context.Context) *Trace {
	t, _ := ctx.Value(traceKey{}).(*Trace)
	return t
}

// ContextWithSpan returns a copy of ctx carrying s as the current span.
func ContextWithSpan(ctx context.Context, s *Span) context.Context {
	return context.WithValue(ctx, spanKey{}, s)
}

// SpanFromContext returns the current span, or nil.
func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// StartSpan starts a span under the current span of ctx (or at the top of the
// current trace) and returns a context in which the new span is current.
// Without a trace in ctx the returned span is a no-op. The caller must Finish
// the span.
func StartSpan(ctx context.Context, data SpanData) (context.Context, *Span) {
	t := TraceFromContext(ctx)
	if t == nil {
		t = noopTrace
	}

	s := &Span{
		trace: t,
		noop:  t.noop,
		record: SpanRecord{
			TraceID:   t.ID(),
			SpanID:    "span_" + core.NewID(),
			Kind:      data.Kind(),
			Name:      data.Name(),
			Data:      data,
			StartedAt: time.Now(),
		},
	}

	if parent := SpanFromContext(ctx); parent != nil && parent.trace == t {
		s.record.ParentID = parent.ID()
	}

	if !s.noop {
		if !t.register(s) {
			// The trace is already finished; record nothing.
			s.noop = true
		} else {
			t.provider.dispatch(event{kind: eventSpanStart, span: s.record})
		}
	}

	return ContextWithSpan(ctx, s), s
}

// WithSpan runs fn inside a new span, marks the span failed when fn returns an
// error, and always finishes it.
func WithSpan(ctx context.Context, data SpanData, fn func(ctx context.Context, s *Span) error) error {
	ctx, s := StartSpan(ctx, data)
	defer s.Finish()

	if err := fn(ctx, s); err != nil {
		s.SetError(err.Error(), nil)
		return err
	}

	return nil
}
