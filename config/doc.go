// Package config loads agentrelay settings from a YAML file with environment
// variable overrides.
//
// Precedence is defaults, then the YAML file, then environment variables.
// Environment keys are derived from the env struct tags joined with "_"
// under the prefix AGENTRELAY, for example AGENTRELAY_RUNNER_MAX_TURNS or
// AGENTRELAY_TRACING_BATCH_SCHEDULE_DELAY.
//
//	cfg, err := config.NewLoader().
//		WithConfigPath("agentrelay.yaml").
//		Load()
package config
