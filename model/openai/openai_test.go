package openai

import (
	"strings"
	"testing"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessagesKeepsToolResultsInPlace(t *testing.T) {
	items := []core.Item{
		core.UserMessage("what is 2+3?"),
		core.ToolCallItem{Agent: "math", CallID: "c1", Name: "add", Arguments: `{"a":2,"b":3}`},
		core.ToolResultItem{Agent: "math", CallID: "c1", Name: "add", Output: 5},
		core.AssistantMessage("math", "5"),
	}

	msgs := buildMessages(model.Request{Instructions: "be exact", Contents: core.ToContents(items)})
	require.Len(t, msgs, 5)

	require.NotNil(t, msgs[0].OfSystem)
	require.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "add", msgs[2].OfAssistant.ToolCalls[0].Function.Name)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
	require.NotNil(t, msgs[4].OfAssistant)
}

func TestBuildParamsExposesTools(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) { o.Model = "gpt-test" })

	params := m.buildParams(model.Request{
		Tools: []model.ToolDefinition{model.NewToolDefinition("add", "adds numbers", map[string]any{"type": "object"})},
	}, nil)

	require.Len(t, params.Tools, 1)
	assert.Equal(t, "add", params.Tools[0].Function.Name)
	assert.Equal(t, "gpt-test", m.Info().Name)
	assert.Equal(t, "openai", m.Info().Provider)
}

func TestFinalResponseOrdersToolCallsByIndex(t *testing.T) {
	agg := map[int64]*aggCall{
		2: {id: "c3", name: "third"},
		0: {id: "c1", name: "first"},
		1: {id: "c2", name: "second"},
	}

	var b strings.Builder
	resp := finalResponse("r1", &b, agg, "tool_calls", nil)

	calls := resp.Content.FunctionCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{calls[0].Name, calls[1].Name, calls[2].Name})
	assert.False(t, resp.Partial)
}
