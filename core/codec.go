package core

import (
	"encoding/json"
	"fmt"
)

// Item type tags used by MarshalItem.
const (
	ItemTypeMessage       = "message"
	ItemTypeToolCall      = "tool_call"
	ItemTypeToolResult    = "tool_result"
	ItemTypeHandoffCall   = "handoff_call"
	ItemTypeHandoffOutput = "handoff_output"
)

type itemEnvelope struct {
	Type string          `json:"type"`
	Item json.RawMessage `json:"item"`
}

// ItemType returns the type tag of it.
func ItemType(it Item) string {
	switch it.(type) {
	case MessageItem:
		return ItemTypeMessage
	case ToolCallItem:
		return ItemTypeToolCall
	case ToolResultItem:
		return ItemTypeToolResult
	case HandoffCallItem:
		return ItemTypeHandoffCall
	case HandoffOutputItem:
		return ItemTypeHandoffOutput
	default:
		return ""
	}
}

// MarshalItem encodes it together with its type tag.
func MarshalItem(it Item) ([]byte, error) {
	typ := ItemType(it)
	if typ == "" {
		return nil, fmt.Errorf("unknown item type %T", it)
	}

	raw, err := json.Marshal(it)
	if err != nil {
		return nil, err
	}

	return json.Marshal(itemEnvelope{Type: typ, Item: raw})
}

// UnmarshalItem decodes an item encoded by MarshalItem.
func UnmarshalItem(data []byte) (Item, error) {
	var env itemEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case ItemTypeMessage:
		return decodeItem[MessageItem](env.Item)
	case ItemTypeToolCall:
		return decodeItem[ToolCallItem](env.Item)
	case ItemTypeToolResult:
		return decodeItem[ToolResultItem](env.Item)
	case ItemTypeHandoffCall:
		return decodeItem[HandoffCallItem](env.Item)
	case ItemTypeHandoffOutput:
		return decodeItem[HandoffOutputItem](env.Item)
	default:
		return nil, fmt.Errorf("unknown item type %q", env.Type)
	}
}

func decodeItem[T Item](raw json.RawMessage) (Item, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
