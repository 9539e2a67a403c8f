// Package agentrelay provides a high-level façade over the runner, the agent
// registry, sessions and tracing, enabling rapid construction of multi-agent
// systems. Most applications interact with this package by:
//  1. Creating an AgentRelay via New (optionally from a config.Config)
//  2. Registering one or more agents (their handoff targets are registered too)
//  3. Running an agent by name, blocking (Run) or streamed (RunStreamed)
//
// The façade delegates orchestration to runner.Runner while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically configure a Redis session store,
// a trace exporter and a structured logger.
package agentrelay

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/runner"
	"github.com/hupe1980/agentrelay/session"
	"github.com/hupe1980/agentrelay/tracing"
	"github.com/redis/go-redis/v9"
)

// Options configures the AgentRelay instance.
type Options struct {
	// Config supplies run limits, tracing, session and log settings. Nil uses
	// config.DefaultConfig with a no-op logger.
	Config *config.Config

	// Session overrides the store selected by Config.Session.
	Session session.Store

	// Tracing overrides the provider built from Config.Tracing.
	Tracing *tracing.Provider

	// TraceExporter, when set, receives finished traces and spans through a
	// tracing.BatchProcessor configured by Config.Tracing.Batch.
	TraceExporter tracing.Exporter

	// TraceProcessors are added to the provider built from Config.Tracing,
	// for example the OpenTelemetry bridge or the Prometheus processor.
	TraceProcessors []tracing.Processor

	// Callbacks run at lifecycle points of every run.
	Callbacks []runner.Callback

	// Logger overrides the logger built from Config.Log.
	Logger logging.Logger
}

// AgentRelay is the high-level façade aggregating the runner and its services.
type AgentRelay struct {
	opts     Options
	cfg      *config.Config
	logger   logging.Logger
	registry *agent.Registry
	tracing  *tracing.Provider
	runner   *runner.Runner

	// closers release resources created by New.
	closers []func(ctx context.Context) error
}

// New creates an AgentRelay. Any unset service is derived from the config.
func New(optFns ...func(o *Options)) (*AgentRelay, error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	m := &AgentRelay{opts: opts, cfg: opts.Config}

	if m.cfg == nil {
		m.cfg = config.DefaultConfig()
		if opts.Logger == nil {
			opts.Logger = logging.NoOpLogger{}
		}
	}

	if err := m.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		l, err := logging.New(m.cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
		logger = l
	}
	m.logger = logger

	store := opts.Session
	if store == nil {
		s, err := m.newSessionStore()
		if err != nil {
			return nil, err
		}
		store = s
	}

	m.tracing = opts.Tracing
	if m.tracing == nil {
		m.tracing = m.newTracingProvider()
	}

	registry, err := agent.NewRegistry()
	if err != nil {
		return nil, err
	}
	m.registry = registry

	m.runner = runner.New(
		runner.FromConfig(m.cfg.Runner),
		func(o *runner.Options) {
			o.Registry = registry
			o.Session = store
			o.Tracing = m.tracing
			o.Callbacks = opts.Callbacks
			o.Logger = logger
		},
	)

	return m, nil
}

func (m *AgentRelay) newSessionStore() (session.Store, error) {
	sc := m.cfg.Session

	switch sc.Backend {
	case "":
		return nil, nil
	case "memory":
		return session.NewInMemoryStore(func(o *session.InMemoryOptions) {
			o.MaxItems = sc.MaxItems
		}), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: sc.RedisAddr, DB: sc.RedisDB})
		m.closers = append(m.closers, func(context.Context) error { return client.Close() })

		return session.NewRedisStore(client, func(o *session.RedisOptions) {
			o.KeyPrefix = sc.KeyPrefix
			o.TTL = sc.TTL
			o.MaxItems = int64(sc.MaxItems)
		}), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", sc.Backend)
	}
}

func (m *AgentRelay) newTracingProvider() *tracing.Provider {
	tc := m.cfg.Tracing

	p := tracing.NewProvider(func(o *tracing.ProviderOptions) {
		o.Disabled = tc.Disabled
		o.Logger = m.logger
	})

	if tc.Console {
		p.AddProcessor(tracing.NewConsoleProcessor(m.logger))
	}

	for _, proc := range m.opts.TraceProcessors {
		p.AddProcessor(proc)
	}

	if m.opts.TraceExporter != nil {
		p.AddProcessor(tracing.NewBatchProcessor(m.opts.TraceExporter, func(o *tracing.BatchOptions) {
			o.MaxQueueSize = tc.Batch.MaxQueueSize
			o.MaxBatchSize = tc.Batch.MaxBatchSize
			o.ScheduleDelay = tc.Batch.ScheduleDelay
			o.ExportTimeout = tc.Batch.ExportTimeout
			o.Logger = m.logger
		}))
	}

	m.closers = append(m.closers, p.Shutdown)

	return p
}

// RegisterAgent adds a and every agent reachable through its static handoffs.
// It fails when names clash or a handoff target or allow-listed name is
// unknown after registration.
func (m *AgentRelay) RegisterAgent(a *agent.Agent) error {
	if err := m.registry.RegisterTree(a); err != nil {
		return err
	}
	return m.registry.Validate()
}

// Agent returns a registered agent.
func (m *AgentRelay) Agent(name string) (*agent.Agent, bool) { return m.registry.Get(name) }

// Agents returns the names of the registered agents in registration order.
func (m *AgentRelay) Agents() []string { return m.registry.Names() }

// Runner returns the underlying runner.
func (m *AgentRelay) Runner() *runner.Runner { return m.runner }

// Tracing returns the trace provider runs record to.
func (m *AgentRelay) Tracing() *tracing.Provider { return m.tracing }

// Run executes the registered agent agentName and blocks until it finishes.
func (m *AgentRelay) Run(
	ctx context.Context,
	agentName string,
	input core.Input,
	optFns ...func(o *runner.RunOptions),
) (*runner.RunResult, error) {
	a, err := m.lookup(agentName)
	if err != nil {
		return nil, err
	}
	return m.runner.Run(ctx, a, input, optFns...)
}

// RunStreamed starts the registered agent agentName and returns the stream
// of its events.
func (m *AgentRelay) RunStreamed(
	ctx context.Context,
	agentName string,
	input core.Input,
	optFns ...func(o *runner.RunOptions),
) (*runner.StreamedRun, error) {
	a, err := m.lookup(agentName)
	if err != nil {
		return nil, err
	}
	return m.runner.RunStreamed(ctx, a, input, optFns...)
}

func (m *AgentRelay) lookup(name string) (*agent.Agent, error) {
	a, ok := m.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrAgentNotFound, name)
	}
	return a, nil
}

// Shutdown flushes and stops the tracing processors created by New and
// closes owned connections.
func (m *AgentRelay) Shutdown(ctx context.Context) error {
	var errs []error
	for _, c := range m.closers {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}
