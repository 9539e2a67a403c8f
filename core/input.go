package core

// Input is the caller supplied input of a run: either a single string or a
// structured conversation history.
type Input struct {
	text  string
	items []Item
}

// TextInput wraps a single user message.
func TextInput(text string) Input { return Input{text: text} }

// HistoryInput wraps an existing conversation history.
func HistoryInput(items ...Item) Input {
	cp := make([]Item, len(items))
	copy(cp, items)
	return Input{items: cp}
}

// IsText reports whether the input was given as a single string.
func (in Input) IsText() bool { return in.items == nil }

// Items returns the input as items. A text input becomes one user message.
func (in Input) Items() []Item {
	if in.items == nil {
		return []Item{UserMessage(in.text)}
	}
	cp := make([]Item, len(in.items))
	copy(cp, in.items)
	return cp
}
