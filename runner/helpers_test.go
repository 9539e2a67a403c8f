package runner_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/runner"
	"github.com/hupe1980/agentrelay/tool"
	"github.com/hupe1980/agentrelay/tracing"
	"github.com/stretchr/testify/require"
)

type addArgs struct {
	A int `json:"a" description:"First addend"`
	B int `json:"b" description:"Second addend"`
}

func addTool() tool.Tool {
	return tool.NewTyped("add", "Add two numbers", func(_ *core.ToolContext, in addArgs) (int, error) {
		return in.A + in.B, nil
	})
}

func newAgent(t *testing.T, name string, m model.Model, optFns ...func(o *agent.Options)) *agent.Agent {
	t.Helper()

	a, err := agent.New(name, append([]func(o *agent.Options){func(o *agent.Options) {
		o.Instructions = agent.NewInstructionFromText("You are " + name + ".")
		o.Model = m
	}}, optFns...)...)
	require.NoError(t, err)

	return a
}

// newTracedRunner returns a runner recording to its own provider.
func newTracedRunner(optFns ...func(o *runner.Options)) (*runner.Runner, *tracing.Provider, *tracing.Recorder) {
	rec := tracing.NewRecorder()
	p := tracing.NewProvider(func(o *tracing.ProviderOptions) { o.Processors = []tracing.Processor{rec} })

	r := runner.New(append([]func(o *runner.Options){func(o *runner.Options) {
		o.Tracing = p
	}}, optFns...)...)

	return r, p, rec
}

func newRunner(optFns ...func(o *runner.Options)) *runner.Runner {
	return runner.New(append([]func(o *runner.Options){func(o *runner.Options) {
		o.TracingDisabled = true
	}}, optFns...)...)
}

// lastToolOutput answers with the output of the most recent tool result.
func lastToolOutput(_ context.Context, req model.Request) (model.Response, error) {
	for i := len(req.Contents) - 1; i >= 0; i-- {
		for _, p := range req.Contents[i].Parts {
			if fr, ok := p.(core.FunctionResponsePart); ok {
				return model.TextResponse(fmt.Sprint(fr.FunctionResponse.Response)), nil
			}
		}
	}
	return model.Response{}, fmt.Errorf("no tool result in request")
}

func itemTypes(items []core.Item) []string {
	types := make([]string, 0, len(items))
	for _, it := range items {
		types = append(types, core.ItemType(it))
	}
	return types
}
