// Package logging provides the minimal Logger interface used across agentrelay
// together with adapters for the common structured logging backends.
//
//   - SlogAdapter wraps a *slog.Logger
//   - ZapAdapter wraps a *zap.Logger
//   - NoOpLogger discards everything (default for tests and libraries)
//
// Usage:
//
//	logger, err := logging.New(logging.Config{Level: "debug", Format: "text", Backend: "slog"})
//	r := runner.New(func(o *runner.Options) { o.Logger = logger })
//
// Message keys are dotted identifiers ("run.turn.start", "tool.call.success")
// followed by alternating key/value pairs.
package logging
