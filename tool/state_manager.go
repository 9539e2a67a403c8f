package tool

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/agentrelay/core"
)

// StateManagerTool lets a model read and write the run state shared with
// tools, guardrails and dynamic instructions.
type StateManagerTool struct {
	name        string
	description string
	// prefix restricts the keys the model can touch.
	prefix string
}

var _ Tool = (*StateManagerTool)(nil)

// NewStateManagerTool creates a state tool. With a non-empty prefix the model
// only sees and writes keys starting with that prefix.
func NewStateManagerTool(prefix string) *StateManagerTool {
	return &StateManagerTool{
		name: "state_manager",
		description: "Reads and writes the shared run state. " +
			"Supports operations: get_state, set_state, delete_state, list_keys.",
		prefix: prefix,
	}
}

// Name returns the tool identifier.
func (t *StateManagerTool) Name() string {
	return t.name
}

// Description returns the tool description.
func (t *StateManagerTool) Description() string {
	return t.description
}

// Parameters returns the JSON schema for tool parameters.
func (t *StateManagerTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"get_state", "set_state", "delete_state", "list_keys"},
				"description": "The state operation to perform",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "State key for get_state, set_state and delete_state",
			},
			"value": map[string]any{
				"description": "Value for set_state (any type)",
			},
		},
		"required": []string{"operation"},
	}
}

// Call implements the Tool interface. Misuse is reported in-band.
func (t *StateManagerTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	operation, _ := args["operation"].(string)

	switch operation {
	case "get_state":
		return t.handleGetState(args, toolCtx)
	case "set_state":
		return t.handleSetState(args, toolCtx)
	case "delete_state":
		return t.handleDeleteState(args, toolCtx)
	case "list_keys":
		return t.handleListKeys(toolCtx), nil
	default:
		return nil, NewToolError(t.name, fmt.Sprintf("unknown operation: %s", operation), CodeValidation)
	}
}

func (t *StateManagerTool) key(args map[string]any, op string) (string, error) {
	key, ok := args["key"].(string)
	if !ok || key == "" {
		return "", NewToolError(t.name, fmt.Sprintf("key parameter is required for %s operation", op), CodeValidation)
	}
	return t.prefix + key, nil
}

func (t *StateManagerTool) handleGetState(args map[string]any, toolCtx *core.ToolContext) (any, error) {
	key, err := t.key(args, "get_state")
	if err != nil {
		return nil, err
	}

	value, exists := toolCtx.GetState(key)

	return map[string]any{
		"key":    strings.TrimPrefix(key, t.prefix),
		"exists": exists,
		"value":  value,
	}, nil
}

func (t *StateManagerTool) handleSetState(args map[string]any, toolCtx *core.ToolContext) (any, error) {
	key, err := t.key(args, "set_state")
	if err != nil {
		return nil, err
	}

	value := args["value"]
	toolCtx.SetState(key, value)

	toolCtx.LogDebug("tool.state.set", "key", key)

	return map[string]any{
		"key":     strings.TrimPrefix(key, t.prefix),
		"value":   value,
		"success": true,
	}, nil
}

func (t *StateManagerTool) handleDeleteState(args map[string]any, toolCtx *core.ToolContext) (any, error) {
	key, err := t.key(args, "delete_state")
	if err != nil {
		return nil, err
	}

	toolCtx.RunContext().DeleteState(key)

	return map[string]any{
		"key":     strings.TrimPrefix(key, t.prefix),
		"success": true,
	}, nil
}

func (t *StateManagerTool) handleListKeys(toolCtx *core.ToolContext) any {
	var keys []string
	for k := range toolCtx.RunContext().State() {
		if strings.HasPrefix(k, t.prefix) {
			keys = append(keys, strings.TrimPrefix(k, t.prefix))
		}
	}
	slices.Sort(keys)

	return map[string]any{
		"keys":  keys,
		"count": len(keys),
	}
}
