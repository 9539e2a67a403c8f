package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is a conversation role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Item is one record produced or consumed by a run. The set of concrete item
// types is closed: MessageItem, ToolCallItem, ToolResultItem, HandoffCallItem
// and HandoffOutputItem.
type Item interface {
	isItem()
	// ItemID returns the unique id of the item.
	ItemID() string
	// ProducedBy returns the name of the agent that produced the item, or the
	// empty string for caller supplied input.
	ProducedBy() string
}

// MessageItem is a plain text message.
type MessageItem struct {
	ID    string `json:"id"`
	Agent string `json:"agent,omitempty"`
	Role  Role   `json:"role"`
	Text  string `json:"text"`
}

// ToolCallItem is a tool call requested by the model.
type ToolCallItem struct {
	ID        string `json:"id"`
	Agent     string `json:"agent"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResultItem is the outcome of a ToolCallItem. Error is set for in-band
// failures (for example argument validation) that are reported to the model.
type ToolResultItem struct {
	ID     string `json:"id"`
	Agent  string `json:"agent"`
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HandoffCallItem is a handoff tool call requested by the model.
type HandoffCallItem struct {
	ID        string `json:"id"`
	Agent     string `json:"agent"`
	CallID    string `json:"call_id"`
	ToolName  string `json:"tool_name"`
	Arguments string `json:"arguments"`
}

// HandoffOutputItem records a completed transfer of control from Source to Target.
type HandoffOutputItem struct {
	ID       string `json:"id"`
	CallID   string `json:"call_id"`
	ToolName string `json:"tool_name"`
	Source   string `json:"source"`
	Target   string `json:"target"`
}

func (MessageItem) isItem()       {}
func (ToolCallItem) isItem()      {}
func (ToolResultItem) isItem()    {}
func (HandoffCallItem) isItem()   {}
func (HandoffOutputItem) isItem() {}

func (i MessageItem) ItemID() string       { return i.ID }
func (i ToolCallItem) ItemID() string      { return i.ID }
func (i ToolResultItem) ItemID() string    { return i.ID }
func (i HandoffCallItem) ItemID() string   { return i.ID }
func (i HandoffOutputItem) ItemID() string { return i.ID }

func (i MessageItem) ProducedBy() string       { return i.Agent }
func (i ToolCallItem) ProducedBy() string      { return i.Agent }
func (i ToolResultItem) ProducedBy() string    { return i.Agent }
func (i HandoffCallItem) ProducedBy() string   { return i.Agent }
func (i HandoffOutputItem) ProducedBy() string { return i.Source }

// UserMessage builds a user MessageItem.
func UserMessage(text string) MessageItem {
	return MessageItem{ID: NewID(), Role: RoleUser, Text: text}
}

// AssistantMessage builds an assistant MessageItem attributed to agent.
func AssistantMessage(agent, text string) MessageItem {
	return MessageItem{ID: NewID(), Agent: agent, Role: RoleAssistant, Text: text}
}

// UserText concatenates the text of all user messages in items, separated by newlines.
func UserText(items []Item) string {
	var parts []string
	for _, it := range items {
		if m, ok := it.(MessageItem); ok && m.Role == RoleUser {
			parts = append(parts, m.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// LastAssistantText returns the text of the last assistant message in items.
func LastAssistantText(items []Item) (string, bool) {
	for i := len(items) - 1; i >= 0; i-- {
		if m, ok := items[i].(MessageItem); ok && m.Role == RoleAssistant {
			return m.Text, true
		}
	}
	return "", false
}

// ToContents converts items into role based contents suitable for model adapters.
// Consecutive assistant outputs (text and calls of one response) are merged into
// one assistant content; tool and handoff results become tool contents.
func ToContents(items []Item) []Content {
	contents := make([]Content, 0, len(items))

	appendAssistant := func(p Part) {
		if n := len(contents); n > 0 && contents[n-1].Role == RoleAssistant {
			contents[n-1].Parts = append(contents[n-1].Parts, p)
			return
		}
		contents = append(contents, Content{Role: RoleAssistant, Parts: []Part{p}})
	}

	for _, it := range items {
		switch v := it.(type) {
		case MessageItem:
			if v.Role == RoleAssistant {
				appendAssistant(TextPart{Text: v.Text})
				continue
			}
			contents = append(contents, Content{Role: v.Role, Parts: []Part{TextPart{Text: v.Text}}})
		case ToolCallItem:
			appendAssistant(FunctionCallPart{FunctionCall: FunctionCall{ID: v.CallID, Name: v.Name, Arguments: v.Arguments}})
		case HandoffCallItem:
			appendAssistant(FunctionCallPart{FunctionCall: FunctionCall{ID: v.CallID, Name: v.ToolName, Arguments: v.Arguments}})
		case ToolResultItem:
			contents = append(contents, Content{Role: RoleTool, Parts: []Part{FunctionResponsePart{FunctionResponse: FunctionResponse{
				ID:       v.CallID,
				Name:     v.Name,
				Response: v.Output,
				Error:    v.Error,
			}}}})
		case HandoffOutputItem:
			contents = append(contents, Content{Role: RoleTool, Parts: []Part{FunctionResponsePart{FunctionResponse: FunctionResponse{
				ID:       v.CallID,
				Name:     v.ToolName,
				Response: map[string]any{"assistant": v.Target},
			}}}})
		}
	}

	return contents
}

// ResponseText renders a function response payload as the string handed to
// providers that only accept text tool results.
func ResponseText(fr FunctionResponse) string {
	if fr.Error != "" {
		return fr.Error
	}
	switch v := fr.Response.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	b, err := json.Marshal(fr.Response)
	if err != nil {
		return fmt.Sprintf("%v", fr.Response)
	}
	return string(b)
}
