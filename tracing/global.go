package tracing

import (
	"context"
	"sync/atomic"
)

var noopTrace = &Trace{noop: true, record: TraceRecord{TraceID: "trace_noop"}, open: map[string]*Span{}}

var defaultProvider atomic.Pointer[Provider]

func init() {
	defaultProvider.Store(NewProvider())
}

// Default returns the process wide provider.
func Default() *Provider { return defaultProvider.Load() }

// SetDefault replaces the process wide provider.
func SetDefault(p *Provider) {
	if p != nil {
		defaultProvider.Store(p)
	}
}

// SetDisabled switches the process wide provider off or on.
func SetDisabled(disabled bool) { Default().SetDisabled(disabled) }

// AddProcessor registers a processor on the process wide provider.
func AddProcessor(p Processor) { Default().AddProcessor(p) }

// SetProcessors replaces the processors of the process wide provider.
func SetProcessors(procs ...Processor) { Default().SetProcessors(procs...) }

// Shutdown flushes and shuts down the process wide provider.
func Shutdown(ctx context.Context) error { return Default().Shutdown(ctx) }
