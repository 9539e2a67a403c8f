package handoff

import "github.com/hupe1980/agentrelay/core"

// RemoveToolItems drops tool calls, tool results and handoff records from
// every segment, leaving plain messages.
func RemoveToolItems(d InputData) InputData {
	return InputData{
		InputHistory:    messagesOnly(d.InputHistory),
		PreHandoffItems: messagesOnly(d.PreHandoffItems),
		NewItems:        messagesOnly(d.NewItems),
	}
}

// KeepLastN keeps the last n items of the conversation. Items are dropped
// from the oldest segment first. n <= 0 removes everything.
func KeepLastN(n int) InputFilter {
	return func(d InputData) InputData {
		drop := d.Len() - max(n, 0)
		if drop <= 0 {
			return d
		}

		trim := func(items []core.Item) []core.Item {
			if drop <= 0 {
				return items
			}
			if drop >= len(items) {
				drop -= len(items)
				return nil
			}
			out := items[drop:]
			drop = 0
			return out
		}

		in := trim(d.InputHistory)
		pre := trim(d.PreHandoffItems)
		items := trim(d.NewItems)

		return InputData{InputHistory: in, PreHandoffItems: pre, NewItems: items}
	}
}

// Chain applies filters in order. Nil filters are skipped.
func Chain(filters ...InputFilter) InputFilter {
	return func(d InputData) InputData {
		for _, f := range filters {
			if f != nil {
				d = f(d)
			}
		}
		return d
	}
}

func messagesOnly(items []core.Item) []core.Item {
	var out []core.Item
	for _, it := range items {
		if _, ok := it.(core.MessageItem); ok {
			out = append(out, it)
		}
	}
	return out
}
