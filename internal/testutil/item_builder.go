package testutil

import (
	"context"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

// HistoryBuilder provides a fluent helper for constructing conversation
// histories in tests.
// Example:
//
//	items := NewHistoryBuilder().User("hi").Assistant("triage", "hello").Build()
type HistoryBuilder struct {
	items []core.Item
}

// NewHistoryBuilder creates an empty builder.
func NewHistoryBuilder() *HistoryBuilder { return &HistoryBuilder{} }

// User appends a user message (chainable).
func (b *HistoryBuilder) User(text string) *HistoryBuilder {
	b.items = append(b.items, core.UserMessage(text))
	return b
}

// Assistant appends an assistant message produced by agent (chainable).
func (b *HistoryBuilder) Assistant(agent, text string) *HistoryBuilder {
	b.items = append(b.items, core.AssistantMessage(agent, text))
	return b
}

// ToolRound appends a tool call and its result (chainable).
func (b *HistoryBuilder) ToolRound(agent, name, args string, output any) *HistoryBuilder {
	callID := "call_" + core.NewID()
	b.items = append(b.items,
		core.ToolCallItem{ID: core.NewID(), Agent: agent, CallID: callID, Name: name, Arguments: args},
		core.ToolResultItem{ID: core.NewID(), Agent: agent, CallID: callID, Name: name, Output: output},
	)
	return b
}

// Handoff appends a handoff call from source and its output (chainable).
func (b *HistoryBuilder) Handoff(source, target, toolName string) *HistoryBuilder {
	callID := "call_" + core.NewID()
	b.items = append(b.items,
		core.HandoffCallItem{ID: core.NewID(), Agent: source, CallID: callID, ToolName: toolName, Arguments: "{}"},
		core.HandoffOutputItem{ID: core.NewID(), CallID: callID, ToolName: toolName, Source: source, Target: target},
	)
	return b
}

// Item appends arbitrary items (chainable).
func (b *HistoryBuilder) Item(items ...core.Item) *HistoryBuilder {
	b.items = append(b.items, items...)
	return b
}

// Build returns a copy of the collected items.
func (b *HistoryBuilder) Build() []core.Item {
	return append([]core.Item(nil), b.items...)
}

// ResponseBuilder constructs model responses mixing text and function calls.
// Example:
//
//	resp := NewResponseBuilder().Text("checking").Call("add", `{"a":2,"b":3}`).Build()
type ResponseBuilder struct {
	textParts []string
	funcCalls []core.FunctionCall
	usage     *core.Usage
}

// NewResponseBuilder creates an empty builder.
func NewResponseBuilder() *ResponseBuilder { return &ResponseBuilder{} }

// Text appends a text part (chainable).
func (b *ResponseBuilder) Text(t string) *ResponseBuilder {
	b.textParts = append(b.textParts, t)
	return b
}

// Call appends a function call with a generated id (chainable).
func (b *ResponseBuilder) Call(name, args string) *ResponseBuilder {
	b.funcCalls = append(b.funcCalls, core.FunctionCall{ID: "call_" + core.NewID(), Name: name, Arguments: args})
	return b
}

// Usage sets the token usage reported with the response (chainable).
func (b *ResponseBuilder) Usage(input, output int) *ResponseBuilder {
	b.usage = &core.Usage{InputTokens: input, OutputTokens: output, TotalTokens: input + output}
	return b
}

// Build constructs the final response.
func (b *ResponseBuilder) Build() model.Response {
	parts := make([]core.Part, 0, len(b.textParts)+len(b.funcCalls))
	for _, t := range b.textParts {
		parts = append(parts, core.TextPart{Text: t})
	}
	for _, fc := range b.funcCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
	}

	finish := "stop"
	if len(b.funcCalls) > 0 {
		finish = "tool_calls"
	}

	return model.Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finish,
		Usage:        b.usage,
	}
}

// Step returns the response as a scripted model step.
func (b *ResponseBuilder) Step() model.Step {
	resp := b.Build()
	return func(_ context.Context, _ model.Request) (model.Response, error) { return resp, nil }
}
