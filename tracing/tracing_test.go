package tracing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, procs ...Processor) *Provider {
	t.Helper()
	p := NewProvider(func(o *ProviderOptions) { o.Processors = procs })
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

func TestSpanNestingFollowsContext(t *testing.T) {
	rec := NewRecorder()
	p := newTestProvider(t, rec)

	ctx, tr, owned := p.StartTrace(context.Background(), "run")
	require.True(t, owned)

	agentCtx, agentSpan := StartSpan(ctx, AgentSpanData{Agent: "a"})
	_, toolSpan := StartSpan(agentCtx, FunctionSpanData{Tool: "add"})
	_, sibling := StartSpan(ctx, CustomSpanData{Label: "sibling"})

	assert.Equal(t, agentSpan.ID(), toolSpan.ParentID())
	assert.Empty(t, agentSpan.ParentID())
	assert.Empty(t, sibling.ParentID())
	assert.Equal(t, tr.ID(), toolSpan.TraceID())

	toolSpan.Finish()
	sibling.Finish()
	agentSpan.Finish()
	tr.Finish()

	require.NoError(t, p.ForceFlush(context.Background()))
	assert.Len(t, rec.Spans(), 3)
	assert.Len(t, rec.SpanStarts(), 3)
	require.Len(t, rec.Traces(), 1)
	assert.Equal(t, "run", rec.Traces()[0].Name)
}

func TestStartTraceReusesExisting(t *testing.T) {
	p := newTestProvider(t)

	ctx, outer, owned := p.StartTrace(context.Background(), "outer")
	require.True(t, owned)

	_, inner, owned := p.StartTrace(ctx, "inner")
	assert.False(t, owned)
	assert.Same(t, outer, inner)
	outer.Finish()
}

func TestConcurrentTracesDoNotShareNesting(t *testing.T) {
	rec := NewRecorder()
	p := newTestProvider(t, rec)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, tr, _ := p.StartTrace(context.Background(), "run")
			defer tr.Finish()
			_ = WithSpan(ctx, AgentSpanData{Agent: "a"}, func(ctx context.Context, _ *Span) error {
				return WithSpan(ctx, FunctionSpanData{Tool: "t"}, func(context.Context, *Span) error {
					time.Sleep(time.Millisecond)
					return nil
				})
			})
		}()
	}
	wg.Wait()
	require.NoError(t, p.ForceFlush(context.Background()))

	byID := map[string]SpanRecord{}
	for _, s := range rec.Spans() {
		byID[s.SpanID] = s
	}
	require.Len(t, byID, 40)
	for _, s := range byID {
		if s.Kind != SpanKindFunction {
			continue
		}
		parent, ok := byID[s.ParentID]
		require.True(t, ok)
		assert.Equal(t, s.TraceID, parent.TraceID)
		assert.Equal(t, SpanKindAgent, parent.Kind)
	}
}

func TestSpanFinishesExactlyOnce(t *testing.T) {
	rec := NewRecorder()
	p := newTestProvider(t, rec)

	ctx, tr, _ := p.StartTrace(context.Background(), "run")
	_, s := StartSpan(ctx, CustomSpanData{Label: "x"})
	assert.True(t, s.Finish())
	assert.False(t, s.Finish())
	s.SetError("late", nil)

	_, open := StartSpan(ctx, CustomSpanData{Label: "left-open"})
	tr.Finish()
	tr.Finish()
	assert.True(t, open.Finished())

	require.NoError(t, p.ForceFlush(context.Background()))
	spans := rec.Spans()
	require.Len(t, spans, 2)
	assert.Nil(t, spans[0].Error)
	require.NotNil(t, spans[1].Error)
	assert.Equal(t, "left-open", spans[1].Name)
	assert.Len(t, rec.Traces(), 1)

	// Spans started after the trace finished record nothing.
	_, late := StartSpan(ctx, CustomSpanData{Label: "late"})
	late.Finish()
	require.NoError(t, p.ForceFlush(context.Background()))
	assert.Len(t, rec.Spans(), 2)
}

func TestWithSpanMarksError(t *testing.T) {
	rec := NewRecorder()
	p := newTestProvider(t, rec)

	ctx, tr, _ := p.StartTrace(context.Background(), "run")
	err := WithSpan(ctx, CustomSpanData{Label: "boom"}, func(context.Context, *Span) error {
		return errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	tr.Finish()

	require.NoError(t, p.ForceFlush(context.Background()))
	require.Len(t, rec.Spans(), 1)
	assert.Equal(t, "boom", rec.Spans()[0].Error.Message)
}

func TestDisabledProviderDeliversNothing(t *testing.T) {
	rec := NewRecorder()
	p := newTestProvider(t, rec)
	p.SetDisabled(true)

	ctx, tr, _ := p.StartTrace(context.Background(), "run")
	assert.True(t, tr.IsNoop())
	_ = WithSpan(ctx, AgentSpanData{Agent: "a"}, func(context.Context, *Span) error { return nil })
	tr.Finish()

	require.NoError(t, p.ForceFlush(context.Background()))
	assert.Empty(t, rec.Spans())
	assert.Empty(t, rec.SpanStarts())
	assert.Empty(t, rec.Traces())
	assert.Empty(t, rec.TraceStarts())
}

func TestSpanWithoutTraceIsNoop(t *testing.T) {
	_, s := StartSpan(context.Background(), CustomSpanData{Label: "orphan"})
	assert.True(t, s.Finish())
}

type panickingProcessor struct{ Recorder }

func (p *panickingProcessor) OnSpanEnd(SpanRecord) { panic("processor bug") }

type slowProcessor struct {
	Recorder
	delay time.Duration
}

func (p *slowProcessor) OnSpanEnd(s SpanRecord) {
	time.Sleep(p.delay)
	p.Recorder.OnSpanEnd(s)
}

func TestProcessorFailuresAreIsolated(t *testing.T) {
	rec := NewRecorder()
	p := newTestProvider(t, &panickingProcessor{}, rec)

	ctx, tr, _ := p.StartTrace(context.Background(), "run")
	_ = WithSpan(ctx, CustomSpanData{Label: "x"}, func(context.Context, *Span) error { return nil })
	tr.Finish()

	require.NoError(t, p.ForceFlush(context.Background()))
	assert.Len(t, rec.Spans(), 1)
}

func TestSlowProcessorDoesNotBlockSpans(t *testing.T) {
	slow := &slowProcessor{delay: 100 * time.Millisecond}
	p := newTestProvider(t, slow)

	ctx, tr, _ := p.StartTrace(context.Background(), "run")
	start := time.Now()
	for i := 0; i < 5; i++ {
		_ = WithSpan(ctx, CustomSpanData{Label: "x"}, func(context.Context, *Span) error { return nil })
	}
	tr.Finish()
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	require.NoError(t, p.ForceFlush(context.Background()))
	assert.Len(t, slow.Spans(), 5)
}

func TestShutdownStopsDelivery(t *testing.T) {
	rec := NewRecorder()
	p := NewProvider(func(o *ProviderOptions) { o.Processors = []Processor{rec} })

	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, rec.IsShutdown())

	ctx, tr, _ := p.StartTrace(context.Background(), "after")
	_ = WithSpan(ctx, CustomSpanData{Label: "x"}, func(context.Context, *Span) error { return nil })
	tr.Finish()
	assert.Empty(t, rec.Spans())
}

func TestSetProcessorsReplaces(t *testing.T) {
	first, second := NewRecorder(), NewRecorder()
	p := newTestProvider(t, first)
	p.SetProcessors(second)

	ctx, tr, _ := p.StartTrace(context.Background(), "run")
	_ = WithSpan(ctx, CustomSpanData{Label: "x"}, func(context.Context, *Span) error { return nil })
	tr.Finish()

	require.NoError(t, p.ForceFlush(context.Background()))
	assert.Empty(t, first.Spans())
	assert.Len(t, second.Spans(), 1)
}

type collectingExporter struct {
	mu      sync.Mutex
	batches [][]ExportItem
}

func (c *collectingExporter) Export(_ context.Context, items []ExportItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, items)
	return nil
}

func (c *collectingExporter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func span(label string) SpanRecord {
	return SpanRecord{SpanID: label, Kind: SpanKindCustom, Name: label, Data: CustomSpanData{Label: label}}
}

func TestBatchProcessor_FlushesOnSize(t *testing.T) {
	exp := &collectingExporter{}
	bp := NewBatchProcessor(exp, func(o *BatchOptions) {
		o.MaxBatchSize = 2
		o.ScheduleDelay = time.Hour
	})
	defer func() { _ = bp.Shutdown(context.Background()) }()

	bp.OnSpanEnd(span("a"))
	assert.Equal(t, 0, exp.count())
	bp.OnSpanEnd(span("b"))

	require.Eventually(t, func() bool { return exp.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestBatchProcessor_FlushesOnTimer(t *testing.T) {
	exp := &collectingExporter{}
	bp := NewBatchProcessor(exp, func(o *BatchOptions) {
		o.MaxBatchSize = 100
		o.ScheduleDelay = 10 * time.Millisecond
	})
	defer func() { _ = bp.Shutdown(context.Background()) }()

	bp.OnSpanEnd(span("a"))
	require.Eventually(t, func() bool { return exp.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatchProcessor_ShutdownFlushesSynchronously(t *testing.T) {
	exp := &collectingExporter{}
	bp := NewBatchProcessor(exp, func(o *BatchOptions) {
		o.MaxBatchSize = 10
		o.MaxQueueSize = 1000
		o.ScheduleDelay = time.Hour
	})

	for i := 0; i < 25; i++ {
		bp.OnSpanEnd(span("s"))
	}
	bp.OnTraceEnd(TraceRecord{TraceID: "t1"})

	require.NoError(t, bp.Shutdown(context.Background()))
	assert.Equal(t, 26, exp.count())

	bp.OnSpanEnd(span("after"))
	assert.Equal(t, 26, exp.count())
}

func TestBatchProcessor_ExportErrorIsLoggedNotPropagated(t *testing.T) {
	calls := 0
	bp := NewBatchProcessor(ExporterFunc(func(context.Context, []ExportItem) error {
		calls++
		return errors.New("backend down")
	}), func(o *BatchOptions) { o.ScheduleDelay = time.Hour })

	bp.OnSpanEnd(span("a"))
	assert.NoError(t, bp.ForceFlush(context.Background()))
	assert.Equal(t, 1, calls)
	assert.NoError(t, bp.Shutdown(context.Background()))
}

func TestBatchProcessor_ExportPanicIsRecovered(t *testing.T) {
	logger := &captureLogger{}
	exported := make(chan struct{}, 4)
	calls := 0
	bp := NewBatchProcessor(ExporterFunc(func(context.Context, []ExportItem) error {
		calls++
		exported <- struct{}{}
		if calls == 1 {
			panic("exporter boom")
		}
		return nil
	}), func(o *BatchOptions) {
		o.MaxBatchSize = 1
		o.ScheduleDelay = time.Hour
		o.Logger = logger
	})

	// size driven export on the background loop
	bp.OnSpanEnd(span("a"))
	select {
	case <-exported:
	case <-time.After(time.Second):
		t.Fatal("export not triggered")
	}

	// the loop survives and keeps exporting
	bp.OnSpanEnd(span("b"))
	require.NoError(t, bp.Shutdown(context.Background()))
	assert.Equal(t, 2, calls)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.Contains(t, logger.msgs, "tracing.batch.export_panic")
}

type captureLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureLogger) add(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.add(msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.add(msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.add(msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.add(msg) }

func TestConsoleProcessor(t *testing.T) {
	logger := &captureLogger{}
	p := newTestProvider(t, NewConsoleProcessor(logger))

	ctx, tr, _ := p.StartTrace(context.Background(), "run")
	_ = WithSpan(ctx, CustomSpanData{Label: "x"}, func(context.Context, *Span) error { return nil })
	tr.Finish()
	require.NoError(t, p.ForceFlush(context.Background()))

	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.Equal(t, []string{"trace.start", "trace.span.end", "trace.end"}, logger.msgs)
}
