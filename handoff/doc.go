// Package handoff holds the data passed between agents on a transfer of
// control: the input filter applied to the conversation and the naming of
// the synthetic transfer tools.
package handoff
