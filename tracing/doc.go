// Package tracing records traces and spans of agent runs and hands them to
// pluggable processors.
//
// A Trace is created per run (or reused when the caller's context already
// carries one). Spans nest under the span found in the context.Context they
// are started from, so every run keeps its own span stack and concurrent runs
// never share nesting state. Finishing a span seals it into an immutable
// SpanRecord which is delivered to every registered Processor.
//
// Processors run off the critical path: each one has a dispatch goroutine with
// an unbounded queue, and panics or errors inside a processor are recovered and
// logged. BatchProcessor buffers records and flushes them to an Exporter on a
// timer, on a size threshold, on ForceFlush and synchronously on Shutdown.
//
// The process wide Provider returned by Default can be switched off with
// SetDisabled; a disabled provider creates no-op traces and delivers nothing.
package tracing
