package runner

import (
	"context"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

// StreamEvent is published by a streamed run. The set of events is closed:
// RawResponseEvent, ItemEvent, AgentUpdatedEvent and RunCompleteEvent.
type StreamEvent interface{ isStreamEvent() }

// RawResponseEvent carries a partial model delta.
type RawResponseEvent struct {
	Agent    string
	Response model.Response
}

// ItemEvent carries an item as soon as it is final. The final message is only
// published after the output guardrails passed.
type ItemEvent struct {
	Item core.Item
}

// AgentUpdatedEvent reports that an agent became current.
type AgentUpdatedEvent struct {
	Agent core.AgentInfo
}

// RunCompleteEvent is the last event of a successful run.
type RunCompleteEvent struct {
	Result *RunResult
}

func (RawResponseEvent) isStreamEvent()  {}
func (ItemEvent) isStreamEvent()         {}
func (AgentUpdatedEvent) isStreamEvent() {}
func (RunCompleteEvent) isStreamEvent()  {}

// StreamedRun is a run in progress.
type StreamedRun struct {
	events chan StreamEvent
	done   chan struct{}
	result *RunResult
	err    error
}

// Events returns the event channel. It is closed when the run ends. The run
// blocks when the buffer is full, so consumers must drain it or call Wait.
func (s *StreamedRun) Events() <-chan StreamEvent { return s.events }

// Wait discards events not yet received and returns the outcome of the run.
func (s *StreamedRun) Wait() (*RunResult, error) {
	for range s.events {
	}
	<-s.done
	return s.result, s.err
}

// Done is closed when the run ended.
func (s *StreamedRun) Done() <-chan struct{} { return s.done }

// emitter publishes events of one run. A nil emitter drops everything.
type emitter struct {
	ch chan<- StreamEvent
}

func (e *emitter) enabled() bool { return e != nil && e.ch != nil }

func (e *emitter) emit(ctx context.Context, ev StreamEvent) error {
	if !e.enabled() {
		return nil
	}

	select {
	case e.ch <- ev:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
