package handoff

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/hupe1980/agentrelay/core"
)

// InputData is the conversation at the moment of a handoff.
type InputData struct {
	// InputHistory is the input the run started with.
	InputHistory []core.Item
	// PreHandoffItems are the items generated before the turn that requested
	// the handoff.
	PreHandoffItems []core.Item
	// NewItems are the items of the handoff turn, including the handoff call
	// and its output.
	NewItems []core.Item
}

// Items returns the concatenation of all three segments.
func (d InputData) Items() []core.Item {
	items := make([]core.Item, 0, len(d.InputHistory)+len(d.PreHandoffItems)+len(d.NewItems))
	items = append(items, d.InputHistory...)
	items = append(items, d.PreHandoffItems...)
	items = append(items, d.NewItems...)
	return items
}

// Len returns the number of items across all segments.
func (d InputData) Len() int {
	return len(d.InputHistory) + len(d.PreHandoffItems) + len(d.NewItems)
}

// InputFilter rewrites the conversation the next agent receives.
type InputFilter func(InputData) InputData

// ToolName returns the default transfer tool name for an agent, for example
// "transfer_to_billing_agent" for "BillingAgent" or "Billing Agent".
func ToolName(agentName string) string {
	return "transfer_to_" + snake(agentName)
}

// Description returns the default transfer tool description.
func Description(agentName, agentDescription string) string {
	desc := fmt.Sprintf("Handoff to the %s agent to handle the request.", agentName)
	if agentDescription != "" {
		desc += " " + agentDescription
	}
	return desc
}

func snake(s string) string {
	var b strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	parts := strings.FieldsFunc(b.String(), func(r rune) bool { return r == '_' })

	return strings.Join(parts, "_")
}
