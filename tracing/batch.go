package tracing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/logging"
)

// ExportItem is one record handed to an Exporter. Exactly one field is set.
type ExportItem struct {
	Trace *TraceRecord `json:"trace,omitempty"`
	Span  *SpanRecord  `json:"span,omitempty"`
}

// Exporter ships batches of records to a backend.
type Exporter interface {
	Export(ctx context.Context, items []ExportItem) error
}

// ExporterFunc adapts a function to Exporter.
type ExporterFunc func(ctx context.Context, items []ExportItem) error

// Export implements Exporter.
func (f ExporterFunc) Export(ctx context.Context, items []ExportItem) error { return f(ctx, items) }

// BatchOptions configure a BatchProcessor.
type BatchOptions struct {
	// MaxQueueSize is the number of buffered records at which the processor
	// exports inline on its dispatch goroutine.
	MaxQueueSize int
	// MaxBatchSize is the size that triggers a background export.
	MaxBatchSize int
	// ScheduleDelay is the interval of timer driven exports.
	ScheduleDelay time.Duration
	// ExportTimeout bounds a single Export call.
	ExportTimeout time.Duration
	Logger        logging.Logger
}

// DefaultBatchOptions returns the default batch settings.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		MaxQueueSize:  2048,
		MaxBatchSize:  128,
		ScheduleDelay: 5 * time.Second,
		ExportTimeout: 30 * time.Second,
		Logger:        logging.NoOpLogger{},
	}
}

// BatchProcessor buffers finished traces and spans and exports them in
// batches: every ScheduleDelay, whenever MaxBatchSize records are waiting, on
// ForceFlush, and synchronously on Shutdown.
type BatchProcessor struct {
	exporter Exporter
	opts     BatchOptions

	mu     sync.Mutex
	buf    []ExportItem
	closed bool

	exportMu sync.Mutex
	kick     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewBatchProcessor creates a BatchProcessor and starts its background loop.
func NewBatchProcessor(exporter Exporter, optFns ...func(o *BatchOptions)) *BatchProcessor {
	opts := DefaultBatchOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 1
	}

	if opts.MaxQueueSize < opts.MaxBatchSize {
		opts.MaxQueueSize = opts.MaxBatchSize
	}

	if opts.ScheduleDelay <= 0 {
		opts.ScheduleDelay = DefaultBatchOptions().ScheduleDelay
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	bp := &BatchProcessor{
		exporter: exporter,
		opts:     opts,
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go bp.loop()

	return bp
}

func (bp *BatchProcessor) OnTraceStart(TraceRecord) {}

func (bp *BatchProcessor) OnSpanStart(SpanRecord) {}

func (bp *BatchProcessor) OnTraceEnd(t TraceRecord) { bp.add(ExportItem{Trace: &t}) }

func (bp *BatchProcessor) OnSpanEnd(s SpanRecord) { bp.add(ExportItem{Span: &s}) }

func (bp *BatchProcessor) add(item ExportItem) {
	bp.mu.Lock()
	if bp.closed {
		bp.mu.Unlock()
		return
	}
	bp.buf = append(bp.buf, item)
	n := len(bp.buf)
	bp.mu.Unlock()

	switch {
	case n >= bp.opts.MaxQueueSize:
		bp.exportAll(context.Background())
	case n >= bp.opts.MaxBatchSize:
		select {
		case bp.kick <- struct{}{}:
		default:
		}
	}
}

func (bp *BatchProcessor) loop() {
	defer close(bp.done)

	ticker := time.NewTicker(bp.opts.ScheduleDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bp.exportAll(context.Background())
		case <-bp.kick:
			bp.exportAll(context.Background())
		case <-bp.stop:
			return
		}
	}
}

// exportAll drains the buffer in MaxBatchSize chunks.
func (bp *BatchProcessor) exportAll(ctx context.Context) {
	bp.exportMu.Lock()
	defer bp.exportMu.Unlock()

	for {
		bp.mu.Lock()
		if len(bp.buf) == 0 {
			bp.mu.Unlock()
			return
		}
		n := min(len(bp.buf), bp.opts.MaxBatchSize)
		batch := make([]ExportItem, n)
		copy(batch, bp.buf[:n])
		bp.buf = bp.buf[n:]
		bp.mu.Unlock()

		bp.export(ctx, batch)
	}
}

// export ships one batch. A failing or panicking exporter drops the batch.
func (bp *BatchProcessor) export(ctx context.Context, batch []ExportItem) {
	defer func() {
		if r := recover(); r != nil {
			bp.opts.Logger.Error("tracing.batch.export_panic", "items", len(batch), "panic", fmt.Sprint(r))
		}
	}()

	if bp.opts.ExportTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bp.opts.ExportTimeout)
		defer cancel()
	}

	if err := bp.exporter.Export(ctx, batch); err != nil {
		bp.opts.Logger.Error("tracing.batch.export_failed", "items", len(batch), "error", err.Error())
		return
	}

	bp.opts.Logger.Debug("tracing.batch.exported", "items", len(batch))
}

// ForceFlush exports everything buffered.
func (bp *BatchProcessor) ForceFlush(ctx context.Context) error {
	bp.exportAll(ctx)
	return ctx.Err()
}

// Shutdown stops the background loop, exports everything buffered and shuts
// the exporter down when it implements Shutdown(ctx) error.
func (bp *BatchProcessor) Shutdown(ctx context.Context) error {
	bp.stopOnce.Do(func() { close(bp.stop) })
	<-bp.done

	bp.mu.Lock()
	bp.closed = true
	bp.mu.Unlock()

	bp.exportAll(ctx)

	if s, ok := bp.exporter.(interface{ Shutdown(context.Context) error }); ok {
		return s.Shutdown(ctx)
	}

	return nil
}
