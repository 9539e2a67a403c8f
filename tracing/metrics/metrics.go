// Package metrics provides a tracing processor that records span metrics in
// Prometheus.
package metrics

import (
	"context"

	"github.com/hupe1980/agentrelay/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Options configure the processor.
type Options struct {
	// Namespace prefixes every metric name. Defaults to "agentrelay".
	Namespace string

	// Registerer receives the collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Processor implements tracing.Processor by counting traces and spans.
type Processor struct {
	runsTotal      *prometheus.CounterVec
	spansTotal     *prometheus.CounterVec
	spanDuration   *prometheus.HistogramVec
	tokensTotal    *prometheus.CounterVec
	guardrailTrips *prometheus.CounterVec
	handoffsTotal  *prometheus.CounterVec
	toolCallsTotal *prometheus.CounterVec
}

var _ tracing.Processor = (*Processor)(nil)

// New creates the processor and registers its collectors.
func New(optFns ...func(o *Options)) *Processor {
	opts := Options{
		Namespace:  "agentrelay",
		Registerer: prometheus.DefaultRegisterer,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	factory := promauto.With(opts.Registerer)

	return &Processor{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: opts.Namespace,
				Name:      "runs_total",
				Help:      "Total number of finished runs",
			},
			[]string{"status"},
		),
		spansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: opts.Namespace,
				Name:      "spans_total",
				Help:      "Total number of finished spans",
			},
			[]string{"kind", "status"},
		),
		spanDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: opts.Namespace,
				Name:      "span_duration_seconds",
				Help:      "Span duration in seconds",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: opts.Namespace,
				Name:      "llm_tokens_total",
				Help:      "Total number of tokens reported by model calls",
			},
			[]string{"model", "type"},
		),
		guardrailTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: opts.Namespace,
				Name:      "guardrail_tripwires_total",
				Help:      "Total number of triggered guardrail tripwires",
			},
			[]string{"guardrail"},
		),
		handoffsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: opts.Namespace,
				Name:      "handoffs_total",
				Help:      "Total number of handoffs between agents",
			},
			[]string{"from", "to"},
		),
		toolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: opts.Namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool calls",
			},
			[]string{"tool", "status"},
		),
	}
}

func (p *Processor) OnTraceStart(tracing.TraceRecord) {}

func (p *Processor) OnTraceEnd(t tracing.TraceRecord) {
	p.runsTotal.WithLabelValues(status(t.Error)).Inc()
}

func (p *Processor) OnSpanStart(tracing.SpanRecord) {}

func (p *Processor) OnSpanEnd(s tracing.SpanRecord) {
	st := status(s.Error)
	kind := string(s.Kind)

	p.spansTotal.WithLabelValues(kind, st).Inc()
	p.spanDuration.WithLabelValues(kind).Observe(s.Duration().Seconds())

	switch d := s.Data.(type) {
	case tracing.GenerationSpanData:
		p.tokensTotal.WithLabelValues(d.Model, "input").Add(float64(d.Usage.InputTokens))
		p.tokensTotal.WithLabelValues(d.Model, "output").Add(float64(d.Usage.OutputTokens))
	case tracing.GuardrailSpanData:
		if d.Triggered {
			p.guardrailTrips.WithLabelValues(d.Guardrail).Inc()
		}
	case tracing.HandoffSpanData:
		p.handoffsTotal.WithLabelValues(d.From, d.To).Inc()
	case tracing.FunctionSpanData:
		p.toolCallsTotal.WithLabelValues(d.Tool, st).Inc()
	}
}

func (p *Processor) ForceFlush(context.Context) error { return nil }

func (p *Processor) Shutdown(context.Context) error { return nil }

func status(err *tracing.SpanError) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
