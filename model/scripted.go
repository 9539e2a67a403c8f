package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// Step produces one scripted turn.
type Step func(ctx context.Context, req Request) (Response, error)

// Reply is a Step answering with a final text message.
func Reply(text string) Step {
	return func(context.Context, Request) (Response, error) {
		return TextResponse(text), nil
	}
}

// CallTools is a Step answering with function calls. Missing call ids are
// generated.
func CallTools(calls ...core.FunctionCall) Step {
	return func(context.Context, Request) (Response, error) {
		return ToolCallResponse(calls...), nil
	}
}

// Fail is a Step returning err.
func Fail(err error) Step {
	return func(context.Context, Request) (Response, error) {
		return Response{}, err
	}
}

// Delay wraps step, waiting d (or until ctx is done) first.
func Delay(d time.Duration, step Step) Step {
	return func(ctx context.Context, req Request) (Response, error) {
		select {
		case <-time.After(d):
			return step(ctx, req)
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
}

// TextResponse builds a final assistant response holding text.
func TextResponse(text string) Response {
	return Response{
		Content: core.Content{
			Role:  core.RoleAssistant,
			Parts: []core.Part{core.TextPart{Text: text}},
		},
		FinishReason: "stop",
	}
}

// ToolCallResponse builds a final assistant response holding function calls.
func ToolCallResponse(calls ...core.FunctionCall) Response {
	parts := make([]core.Part, 0, len(calls))
	for _, c := range calls {
		if c.ID == "" {
			c.ID = "call_" + core.NewID()
		}
		parts = append(parts, core.FunctionCallPart{FunctionCall: c})
	}

	return Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: "tool_calls",
	}
}

// ScriptedModel is an in-memory Model replaying a fixed sequence of steps,
// one per Generate call. It records every request it receives.
type ScriptedModel struct {
	info Info

	mu       sync.Mutex
	steps    []Step
	next     int
	loop     bool
	requests []Request
}

var _ Model = (*ScriptedModel)(nil)

// NewScriptedModel constructs a ScriptedModel.
func NewScriptedModel(name string, steps ...Step) *ScriptedModel {
	return &ScriptedModel{
		info: Info{
			Name:          name,
			Provider:      "scripted",
			SupportsTools: true,
		},
		steps: steps,
	}
}

// Loop makes the model repeat its last step once the script is exhausted.
func (m *ScriptedModel) Loop() *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loop = true

	return m
}

// Requests returns the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.requests...)
}

// Calls returns the number of Generate calls so far.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}

func (m *ScriptedModel) step(req Request) (Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.next >= len(m.steps) {
		if m.loop && len(m.steps) > 0 {
			return m.steps[len(m.steps)-1], nil
		}
		return nil, fmt.Errorf("scripted model %s: script exhausted after %d steps", m.info.Name, len(m.steps))
	}

	s := m.steps[m.next]
	m.next++

	return s, nil
}

// Generate implements Model. In streaming mode the text of the final
// response is first emitted word by word as partial responses.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		step, err := m.step(req)
		if err != nil {
			errCh <- err
			return
		}

		resp, err := step(ctx, req)
		if err != nil {
			errCh <- err
			return
		}

		if resp.Content.Role == "" {
			resp.Content.Role = core.RoleAssistant
		}

		if req.Stream {
			for _, w := range strings.SplitAfter(resp.Content.Text(), " ") {
				if w == "" {
					continue
				}
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.Content{
						Role:  core.RoleAssistant,
						Parts: []core.Part{core.TextPart{Text: w}},
					},
				}:
				}
			}
		}

		resp.Partial = false

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- resp:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }
