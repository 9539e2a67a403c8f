package tracing

import (
	"maps"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// SpanError describes why a span failed.
type SpanError struct {
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// TraceRecord is the immutable snapshot of a trace handed to processors.
type TraceRecord struct {
	TraceID   string         `json:"trace_id"`
	Name      string         `json:"name"`
	GroupID   string         `json:"group_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at,omitzero"`
	Error     *SpanError     `json:"error,omitempty"`
}

// SpanRecord is the immutable snapshot of a span handed to processors.
type SpanRecord struct {
	TraceID   string     `json:"trace_id"`
	SpanID    string     `json:"span_id"`
	ParentID  string     `json:"parent_id,omitempty"`
	Kind      SpanKind   `json:"kind"`
	Name      string     `json:"name"`
	Data      SpanData   `json:"data"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   time.Time  `json:"ended_at,omitzero"`
	Error     *SpanError `json:"error,omitempty"`
}

// Duration returns the span's wall clock duration.
func (r SpanRecord) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// TraceOptions configure NewTrace.
type TraceOptions struct {
	TraceID  string
	GroupID  string
	Metadata map[string]any
}

// Trace is the root of one run's spans. Finish must be called exactly once by
// the trace's owner; later calls are no-ops.
type Trace struct {
	provider *Provider
	noop     bool

	mu       sync.Mutex
	record   TraceRecord
	open     map[string]*Span
	finished bool
}

func newTrace(p *Provider, name string, opts TraceOptions, noop bool) *Trace {
	id := opts.TraceID
	if id == "" {
		id = "trace_" + core.NewID()
	}

	return &Trace{
		provider: p,
		noop:     noop,
		record: TraceRecord{
			TraceID:   id,
			Name:      name,
			GroupID:   opts.GroupID,
			Metadata:  maps.Clone(opts.Metadata),
			StartedAt: time.Now(),
		},
		open: map[string]*Span{},
	}
}

// ID returns the trace id.
func (t *Trace) ID() string { return t.record.TraceID }

// Name returns the trace name.
func (t *Trace) Name() string { return t.record.Name }

// IsNoop reports whether the trace records nothing.
func (t *Trace) IsNoop() bool { return t.noop }

// SetError marks the trace as failed. Ignored after Finish.
func (t *Trace) SetError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return
	}

	t.record.Error = &SpanError{Message: msg}
}

// Finish finishes every span still open (marking it failed) and then the trace
// itself. Only the first call has an effect.
func (t *Trace) Finish() {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}

	t.finished = true

	open := make([]*Span, 0, len(t.open))
	for _, s := range t.open {
		open = append(open, s)
	}
	t.mu.Unlock()

	for _, s := range open {
		s.SetError("span still open when trace finished", nil)
		s.Finish()
	}

	t.mu.Lock()
	t.record.EndedAt = time.Now()
	rec := t.snapshotLocked()
	t.mu.Unlock()

	if !t.noop {
		t.provider.dispatch(event{kind: eventTraceEnd, trace: rec})
	}
}

func (t *Trace) snapshotLocked() TraceRecord {
	rec := t.record
	rec.Metadata = maps.Clone(t.record.Metadata)
	return rec
}

func (t *Trace) start() {
	if t.noop {
		return
	}

	t.mu.Lock()
	rec := t.snapshotLocked()
	t.mu.Unlock()

	t.provider.dispatch(event{kind: eventTraceStart, trace: rec})
}

func (t *Trace) register(s *Span) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return false
	}

	t.open[s.record.SpanID] = s

	return true
}

func (t *Trace) unregister(s *Span) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.open, s.record.SpanID)
}

// Span is one timed operation inside a trace. Finish seals the span; every
// mutation after that is ignored.
type Span struct {
	trace *Trace
	noop  bool

	mu       sync.Mutex
	record   SpanRecord
	finished bool
}

// ID returns the span id.
func (s *Span) ID() string { return s.record.SpanID }

// TraceID returns the id of the owning trace.
func (s *Span) TraceID() string { return s.record.TraceID }

// ParentID returns the id of the parent span, or "" for top level spans.
func (s *Span) ParentID() string { return s.record.ParentID }

// SetData replaces the span payload. Ignored after Finish.
func (s *Span) SetData(d SpanData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished || d == nil {
		return
	}

	s.record.Data = d
	s.record.Kind = d.Kind()
	s.record.Name = d.Name()
}

// Data returns the current payload.
func (s *Span) Data() SpanData {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.record.Data
}

// SetError marks the span as failed. Ignored after Finish.
func (s *Span) SetError(msg string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}

	s.record.Error = &SpanError{Message: msg, Data: maps.Clone(data)}
}

// Finish seals the span and hands it to the processors. It reports whether
// this call finished the span; only the first call does.
func (s *Span) Finish() bool {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return false
	}
	s.finished = true
	s.record.EndedAt = time.Now()
	rec := s.record
	s.mu.Unlock()

	if s.noop {
		return true
	}

	s.trace.unregister(s)
	s.trace.provider.dispatch(event{kind: eventSpanEnd, span: rec})

	return true
}

// Finished reports whether the span has been sealed.
func (s *Span) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.finished
}
