package tracing

import (
	"context"
	"sync"
)

// Recorder is a Processor that keeps every record in memory. It is meant for
// tests and debugging.
type Recorder struct {
	mu          sync.Mutex
	traceStarts []TraceRecord
	traces      []TraceRecord
	spanStarts  []SpanRecord
	spans       []SpanRecord
	shutdown    bool
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) OnTraceStart(t TraceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traceStarts = append(r.traceStarts, t)
}

func (r *Recorder) OnTraceEnd(t TraceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traces = append(r.traces, t)
}

func (r *Recorder) OnSpanStart(s SpanRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spanStarts = append(r.spanStarts, s)
}

func (r *Recorder) OnSpanEnd(s SpanRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, s)
}

func (r *Recorder) ForceFlush(context.Context) error { return nil }

func (r *Recorder) Shutdown(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown = true
	return nil
}

// Traces returns finished traces.
func (r *Recorder) Traces() []TraceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceRecord(nil), r.traces...)
}

// TraceStarts returns started traces.
func (r *Recorder) TraceStarts() []TraceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceRecord(nil), r.traceStarts...)
}

// Spans returns finished spans in finish order.
func (r *Recorder) Spans() []SpanRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SpanRecord(nil), r.spans...)
}

// SpanStarts returns started spans in start order.
func (r *Recorder) SpanStarts() []SpanRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SpanRecord(nil), r.spanStarts...)
}

// SpansOfKind returns finished spans of kind k.
func (r *Recorder) SpansOfKind(k SpanKind) []SpanRecord {
	var out []SpanRecord
	for _, s := range r.Spans() {
		if s.Kind == k {
			out = append(out, s)
		}
	}
	return out
}

// IsShutdown reports whether Shutdown was called.
func (r *Recorder) IsShutdown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdown
}
