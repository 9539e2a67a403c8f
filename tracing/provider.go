package tracing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/agentrelay/logging"
)

// Processor receives trace and span lifecycle records. Each processor is
// driven from its own goroutine, so implementations may block without
// affecting runs, but calls for one processor never overlap.
type Processor interface {
	OnTraceStart(t TraceRecord)
	OnTraceEnd(t TraceRecord)
	OnSpanStart(s SpanRecord)
	OnSpanEnd(s SpanRecord)
	ForceFlush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ProviderOptions configure a Provider.
type ProviderOptions struct {
	Processors []Processor
	Disabled   bool
	Logger     logging.Logger
}

// Provider owns the registered processors and the enable switch.
type Provider struct {
	disabled atomic.Bool
	logger   logging.Logger

	mu          sync.RWMutex
	dispatchers []*dispatcher
}

// NewProvider creates a Provider.
func NewProvider(optFns ...func(o *ProviderOptions)) *Provider {
	opts := ProviderOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	p := &Provider{logger: logging.OrNoOp(opts.Logger)}
	p.disabled.Store(opts.Disabled)

	for _, proc := range opts.Processors {
		p.AddProcessor(proc)
	}

	return p
}

// AddProcessor registers an additional processor.
func (p *Provider) AddProcessor(proc Processor) {
	d := newDispatcher(proc, p.logger)

	p.mu.Lock()
	p.dispatchers = append(p.dispatchers, d)
	p.mu.Unlock()
}

// SetProcessors replaces all processors. Replaced processors are drained and
// detached but not shut down.
func (p *Provider) SetProcessors(procs ...Processor) {
	next := make([]*dispatcher, 0, len(procs))
	for _, proc := range procs {
		next = append(next, newDispatcher(proc, p.logger))
	}

	p.mu.Lock()
	old := p.dispatchers
	p.dispatchers = next
	p.mu.Unlock()

	for _, d := range old {
		d.stop(context.Background())
	}
}

// SetDisabled switches tracing off (true) or on (false).
func (p *Provider) SetDisabled(disabled bool) { p.disabled.Store(disabled) }

// Disabled reports whether tracing is switched off.
func (p *Provider) Disabled() bool { return p.disabled.Load() }

// NewTrace creates and starts a trace. A disabled provider returns a no-op trace.
func (p *Provider) NewTrace(name string, optFns ...func(o *TraceOptions)) *Trace {
	var opts TraceOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	t := newTrace(p, name, opts, p.Disabled())
	t.start()

	return t
}

// StartTrace returns the trace already carried by ctx, or creates a new one
// and stores it in the returned context. owned reports whether the trace was
// created by this call, in which case the caller must Finish it.
func (p *Provider) StartTrace(ctx context.Context, name string, optFns ...func(o *TraceOptions)) (_ context.Context, _ *Trace, owned bool) {
	if t := TraceFromContext(ctx); t != nil {
		return ctx, t, false
	}

	t := p.NewTrace(name, optFns...)

	return ContextWithTrace(ctx, t), t, true
}

// ForceFlush waits until every queued record was delivered and then flushes
// each processor.
func (p *Provider) ForceFlush(ctx context.Context) error {
	var errs []error

	for _, d := range p.snapshot() {
		if err := d.flush(ctx); err != nil {
			errs = append(errs, err)
			continue
		}

		if err := d.safeCall(func() error { return d.proc.ForceFlush(ctx) }); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Shutdown drains all queues, stops the dispatch goroutines and shuts every
// processor down. The provider delivers nothing afterwards.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	dispatchers := p.dispatchers
	p.dispatchers = nil
	p.mu.Unlock()

	var errs []error

	for _, d := range dispatchers {
		if err := d.stop(ctx); err != nil {
			errs = append(errs, err)
		}

		if err := d.safeCall(func() error { return d.proc.Shutdown(ctx) }); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (p *Provider) snapshot() []*dispatcher {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return append([]*dispatcher(nil), p.dispatchers...)
}

func (p *Provider) dispatch(ev event) {
	if p.Disabled() {
		return
	}

	for _, d := range p.snapshot() {
		d.enqueue(ev)
	}
}

type eventKind int

const (
	eventTraceStart eventKind = iota
	eventTraceEnd
	eventSpanStart
	eventSpanEnd
	eventBarrier
)

type event struct {
	kind  eventKind
	trace TraceRecord
	span  SpanRecord
	ack   chan struct{}
}

// dispatcher feeds one processor from an unbounded queue on its own goroutine.
type dispatcher struct {
	proc   Processor
	logger logging.Logger

	mu      sync.Mutex
	queue   []event
	stopped bool
	signal  chan struct{}
	done    chan struct{}
}

func newDispatcher(proc Processor, logger logging.Logger) *dispatcher {
	d := &dispatcher{
		proc:   proc,
		logger: logger,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	go d.run()

	return d
}

func (d *dispatcher) enqueue(ev event) bool {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}

	return true
}

func (d *dispatcher) run() {
	defer close(d.done)

	for range d.signal {
		for {
			d.mu.Lock()
			batch := d.queue
			d.queue = nil
			stopped := d.stopped
			d.mu.Unlock()

			if len(batch) == 0 {
				if stopped {
					return
				}
				break
			}

			for _, ev := range batch {
				d.deliver(ev)
			}
		}
	}
}

func (d *dispatcher) deliver(ev event) {
	if ev.kind == eventBarrier {
		close(ev.ack)
		return
	}

	_ = d.safeCall(func() error {
		switch ev.kind {
		case eventTraceStart:
			d.proc.OnTraceStart(ev.trace)
		case eventTraceEnd:
			d.proc.OnTraceEnd(ev.trace)
		case eventSpanStart:
			d.proc.OnSpanStart(ev.span)
		case eventSpanEnd:
			d.proc.OnSpanEnd(ev.span)
		}
		return nil
	})
}

// safeCall runs fn, converting panics into errors. Failures are logged.
func (d *dispatcher) safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trace processor %T panicked: %v", d.proc, r)
		}
		if err != nil {
			d.logger.Error("tracing.processor.error", "processor", fmt.Sprintf("%T", d.proc), "error", err.Error())
		}
	}()

	return fn()
}

// flush blocks until every event enqueued before the call was delivered.
func (d *dispatcher) flush(ctx context.Context) error {
	ack := make(chan struct{})
	if !d.enqueue(event{kind: eventBarrier, ack: ack}) {
		return nil
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop drains the queue and terminates the dispatch goroutine.
func (d *dispatcher) stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
