// Package model defines the provider agnostic abstractions for talking to
// language models inside agentrelay.
//
//   - Model unifies streaming and non streaming generation behind Generate
//   - ToolDefinition normalizes the function calling surface across vendors
//   - Collect drains a Generate call into its final Response
//   - ScriptedModel replays canned turns for tests and examples
//
// Providers (see the openai and anthropic subpackages) implement Model so the
// runner stays decoupled from vendor SDKs.
package model
