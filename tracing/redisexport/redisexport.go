// Package redisexport provides a tracing.Exporter that appends span and trace
// records as JSON to Redis lists.
package redisexport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/agentrelay/tracing"
	"github.com/redis/go-redis/v9"
)

// Options configure the exporter.
type Options struct {
	// KeyPrefix is prepended to the per-trace list key. Defaults to
	// "agentrelay:trace:".
	KeyPrefix string

	// TTL expires each trace list after the last write. Zero keeps lists
	// forever.
	TTL time.Duration

	// MaxLen trims each list to its newest MaxLen entries. Zero disables
	// trimming.
	MaxLen int64
}

// Exporter writes each record to the list "<KeyPrefix><trace id>".
type Exporter struct {
	client redis.Cmdable
	opts   Options
}

var _ tracing.Exporter = (*Exporter)(nil)

// New creates an exporter on top of any go-redis client.
func New(client redis.Cmdable, optFns ...func(o *Options)) *Exporter {
	opts := Options{
		KeyPrefix: "agentrelay:trace:",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Exporter{client: client, opts: opts}
}

// Key returns the list key for traceID.
func (e *Exporter) Key(traceID string) string {
	return e.opts.KeyPrefix + traceID
}

// Export pushes the batch in one pipeline.
func (e *Exporter) Export(ctx context.Context, items []tracing.ExportItem) error {
	if len(items) == 0 {
		return nil
	}

	pipe := e.client.TxPipeline()
	touched := make(map[string]struct{})

	for _, item := range items {
		traceID, payload, err := encode(item)
		if err != nil {
			return err
		}

		key := e.Key(traceID)
		pipe.RPush(ctx, key, payload)
		touched[key] = struct{}{}
	}

	for key := range touched {
		if e.opts.MaxLen > 0 {
			pipe.LTrim(ctx, key, -e.opts.MaxLen, -1)
		}
		if e.opts.TTL > 0 {
			pipe.Expire(ctx, key, e.opts.TTL)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis export: %w", err)
	}

	return nil
}

// Record is the JSON envelope stored in Redis.
type Record struct {
	Type  string               `json:"type"`
	Trace *tracing.TraceRecord `json:"trace,omitempty"`
	Span  *tracing.SpanRecord  `json:"span,omitempty"`
}

func encode(item tracing.ExportItem) (string, []byte, error) {
	var (
		rec     Record
		traceID string
	)

	switch {
	case item.Span != nil:
		rec = Record{Type: "span", Span: item.Span}
		traceID = item.Span.TraceID
	case item.Trace != nil:
		rec = Record{Type: "trace", Trace: item.Trace}
		traceID = item.Trace.TraceID
	default:
		return "", nil, fmt.Errorf("redis export: empty item")
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return "", nil, fmt.Errorf("redis export: encode %s: %w", rec.Type, err)
	}

	return traceID, b, nil
}
