package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/handoff"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/session"
	"github.com/hupe1980/agentrelay/tracing"
)

// GuardrailMode controls how input guardrails relate to the first model call
// of an agent.
type GuardrailMode int

const (
	// GuardrailsBlocking evaluates input guardrails before the model is called.
	GuardrailsBlocking GuardrailMode = iota
	// GuardrailsParallel evaluates input guardrails while the first model call
	// is in flight. The response is only acted upon once every guardrail
	// passed; a tripwire cancels the model call.
	GuardrailsParallel
)

// String returns the configuration name of the mode.
func (m GuardrailMode) String() string {
	if m == GuardrailsParallel {
		return "parallel"
	}
	return "blocking"
}

// ParseGuardrailMode parses "blocking" or "parallel" (case insensitive). The
// empty string is blocking.
func ParseGuardrailMode(s string) (GuardrailMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "blocking":
		return GuardrailsBlocking, nil
	case "parallel":
		return GuardrailsParallel, nil
	default:
		return GuardrailsBlocking, fmt.Errorf("unknown guardrail mode %q", s)
	}
}

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	// MaxTurns limits the model turns of one run. Zero or less is unlimited.
	MaxTurns int
	// Timeout bounds the wall clock time of one run.
	Timeout time.Duration
	// TurnTimeout bounds each model call.
	TurnTimeout time.Duration
	// MaxConcurrentRuns limits the runs executing at the same time. Zero or
	// less is unlimited.
	MaxConcurrentRuns int
	// InputGuardrailMode selects blocking or parallel input guardrails.
	InputGuardrailMode GuardrailMode
	// ToolParallelism limits concurrent tool calls of one turn.
	ToolParallelism int
	// HandoffInputFilter applies to handoffs without their own filter.
	HandoffInputFilter handoff.InputFilter
	// Registry, when set, must contain every handoff target.
	Registry *agent.Registry
	// Tracing is the provider runs record to. Nil uses tracing.Default().
	Tracing *tracing.Provider
	// TracingDisabled turns off tracing for this runner only.
	TracingDisabled bool
	// EventBufferSize sets the channel buffer of streamed runs.
	EventBufferSize int
	// Session stores history for runs started with a session ID.
	Session session.Store
	// Callbacks run at lifecycle points of every run.
	Callbacks []Callback
	// Logger defaults to a no-op logger.
	Logger logging.Logger
}

// DefaultOptions returns the defaults used by New.
func DefaultOptions() Options {
	return Options{
		MaxTurns:          10,
		MaxConcurrentRuns: 10,
		EventBufferSize:   100,
	}
}

// RunOptions configure a single run.
type RunOptions struct {
	// Context is the caller's value exposed as RunContext.Value.
	Context any
	// MaxTurns overrides Options.MaxTurns when positive.
	MaxTurns int
	// Timeout overrides Options.Timeout when positive.
	Timeout time.Duration
	// SessionID loads and stores history through Options.Session.
	SessionID string
	// TraceName names the trace. Defaults to "agent run".
	TraceName string
	GroupID   string
	Metadata  map[string]any
}

// FromConfig applies the run limits of cfg. Zero values keep the current
// setting. An unknown guardrail mode keeps blocking; config.Config.Validate
// rejects it before.
func FromConfig(cfg config.RunnerConfig) func(o *Options) {
	return func(o *Options) {
		if cfg.MaxTurns > 0 {
			o.MaxTurns = cfg.MaxTurns
		}
		if cfg.Timeout > 0 {
			o.Timeout = cfg.Timeout
		}
		if cfg.TurnTimeout > 0 {
			o.TurnTimeout = cfg.TurnTimeout
		}
		if cfg.MaxConcurrentRuns > 0 {
			o.MaxConcurrentRuns = cfg.MaxConcurrentRuns
		}
		if cfg.ToolParallelism > 0 {
			o.ToolParallelism = cfg.ToolParallelism
		}
		if cfg.EventBufferSize > 0 {
			o.EventBufferSize = cfg.EventBufferSize
		}
		if mode, err := ParseGuardrailMode(cfg.InputGuardrailMode); err == nil {
			o.InputGuardrailMode = mode
		}
	}
}
