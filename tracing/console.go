package tracing

import (
	"context"

	"github.com/hupe1980/agentrelay/logging"
)

// ConsoleProcessor writes finished traces and spans to a logger.
type ConsoleProcessor struct {
	logger logging.Logger
}

// NewConsoleProcessor creates a ConsoleProcessor. A nil logger falls back to slog.Default.
func NewConsoleProcessor(logger logging.Logger) *ConsoleProcessor {
	if logger == nil {
		logger = logging.NewDefaultSlogLogger()
	}
	return &ConsoleProcessor{logger: logger}
}

func (c *ConsoleProcessor) OnTraceStart(t TraceRecord) {
	c.logger.Debug("trace.start", "trace_id", t.TraceID, "name", t.Name)
}

func (c *ConsoleProcessor) OnTraceEnd(t TraceRecord) {
	args := []any{"trace_id", t.TraceID, "name", t.Name, "duration_ms", t.EndedAt.Sub(t.StartedAt).Milliseconds()}
	if t.Error != nil {
		c.logger.Warn("trace.end", append(args, "error", t.Error.Message)...)
		return
	}
	c.logger.Info("trace.end", args...)
}

func (c *ConsoleProcessor) OnSpanStart(SpanRecord) {}

func (c *ConsoleProcessor) OnSpanEnd(s SpanRecord) {
	args := []any{
		"trace_id", s.TraceID,
		"span_id", s.SpanID,
		"parent_id", s.ParentID,
		"kind", string(s.Kind),
		"name", s.Name,
		"duration_ms", s.Duration().Milliseconds(),
	}
	if s.Error != nil {
		c.logger.Warn("trace.span.end", append(args, "error", s.Error.Message)...)
		return
	}
	c.logger.Info("trace.span.end", args...)
}

func (c *ConsoleProcessor) ForceFlush(context.Context) error { return nil }

func (c *ConsoleProcessor) Shutdown(context.Context) error { return nil }
