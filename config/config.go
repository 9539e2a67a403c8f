package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/logging"
)

// Config is the complete agentrelay configuration.
type Config struct {
	Runner  RunnerConfig   `yaml:"runner" env:"RUNNER"`
	Tracing TracingConfig  `yaml:"tracing" env:"TRACING"`
	Session SessionConfig  `yaml:"session" env:"SESSION"`
	Log     logging.Config `yaml:"log" env:"LOG"`
}

// RunnerConfig holds the run limits.
type RunnerConfig struct {
	MaxTurns          int           `yaml:"max_turns" env:"MAX_TURNS"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	TurnTimeout       time.Duration `yaml:"turn_timeout" env:"TURN_TIMEOUT"`
	MaxConcurrentRuns int           `yaml:"max_concurrent_runs" env:"MAX_CONCURRENT_RUNS"`
	ToolParallelism   int           `yaml:"tool_parallelism" env:"TOOL_PARALLELISM"`
	// InputGuardrailMode is "blocking" or "parallel".
	InputGuardrailMode string `yaml:"input_guardrail_mode" env:"INPUT_GUARDRAIL_MODE"`
	EventBufferSize    int    `yaml:"event_buffer_size" env:"EVENT_BUFFER_SIZE"`
}

// TracingConfig controls the global tracing switch and the processors set up
// by the agentrelay façade.
type TracingConfig struct {
	Disabled bool        `yaml:"disabled" env:"DISABLED"`
	Console  bool        `yaml:"console" env:"CONSOLE"`
	Batch    BatchConfig `yaml:"batch" env:"BATCH"`
}

// BatchConfig mirrors tracing.BatchOptions.
type BatchConfig struct {
	MaxQueueSize  int           `yaml:"max_queue_size" env:"MAX_QUEUE_SIZE"`
	MaxBatchSize  int           `yaml:"max_batch_size" env:"MAX_BATCH_SIZE"`
	ScheduleDelay time.Duration `yaml:"schedule_delay" env:"SCHEDULE_DELAY"`
	ExportTimeout time.Duration `yaml:"export_timeout" env:"EXPORT_TIMEOUT"`
}

// SessionConfig selects the session store.
type SessionConfig struct {
	// Backend is "memory", "redis" or empty for no session store.
	Backend   string        `yaml:"backend" env:"BACKEND"`
	RedisAddr string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisDB   int           `yaml:"redis_db" env:"REDIS_DB"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
	MaxItems  int           `yaml:"max_items" env:"MAX_ITEMS"`
}

// DefaultConfig returns the defaults applied before the file and environment.
func DefaultConfig() *Config {
	return &Config{
		Runner: RunnerConfig{
			MaxTurns:           10,
			MaxConcurrentRuns:  10,
			InputGuardrailMode: "blocking",
			EventBufferSize:    100,
		},
		Tracing: TracingConfig{
			Batch: BatchConfig{
				MaxQueueSize:  2048,
				MaxBatchSize:  128,
				ScheduleDelay: 5 * time.Second,
				ExportTimeout: 30 * time.Second,
			},
		},
		Session: SessionConfig{
			KeyPrefix: "agentrelay:session:",
		},
		Log: logging.Config{
			Level:   "info",
			Format:  "json",
			Backend: "slog",
		},
	}
}

var (
	guardrailModes  = []string{"blocking", "parallel"}
	sessionBackends = []string{"", "memory", "redis"}
	logFormats      = []string{"json", "text"}
	logBackends     = []string{"slog", "zap"}
)

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Runner.MaxTurns < 0 {
		errs = append(errs, errors.New("runner.max_turns must not be negative"))
	}
	if c.Runner.Timeout < 0 || c.Runner.TurnTimeout < 0 {
		errs = append(errs, errors.New("runner timeouts must not be negative"))
	}
	if c.Runner.ToolParallelism < 0 {
		errs = append(errs, errors.New("runner.tool_parallelism must not be negative"))
	}
	if !oneOf(c.Runner.InputGuardrailMode, guardrailModes) {
		errs = append(errs, fmt.Errorf("runner.input_guardrail_mode must be one of %v, got %q", guardrailModes, c.Runner.InputGuardrailMode))
	}

	if c.Tracing.Batch.MaxBatchSize <= 0 || c.Tracing.Batch.MaxQueueSize < c.Tracing.Batch.MaxBatchSize {
		errs = append(errs, errors.New("tracing.batch needs 0 < max_batch_size <= max_queue_size"))
	}
	if c.Tracing.Batch.ScheduleDelay <= 0 {
		errs = append(errs, errors.New("tracing.batch.schedule_delay must be positive"))
	}

	if !oneOf(c.Session.Backend, sessionBackends) {
		errs = append(errs, fmt.Errorf("session.backend must be one of memory or redis, got %q", c.Session.Backend))
	}
	if strings.EqualFold(c.Session.Backend, "redis") && c.Session.RedisAddr == "" {
		errs = append(errs, errors.New("session.redis_addr is required for the redis backend"))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if !oneOf(c.Log.Format, logFormats) {
		errs = append(errs, fmt.Errorf("log.format must be one of %v, got %q", logFormats, c.Log.Format))
	}
	if !oneOf(c.Log.Backend, logBackends) {
		errs = append(errs, fmt.Errorf("log.backend must be one of %v, got %q", logBackends, c.Log.Backend))
	}

	return errors.Join(errs...)
}

func oneOf(v string, allowed []string) bool {
	return slices.Contains(allowed, strings.ToLower(v))
}
