package agent

import (
	"errors"
	"testing"

	"github.com/hupe1980/agentrelay/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(*core.RunContext) (string, error) { return m.text, m.err }

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	assert.True(t, inst.IsStatic())
	assert.False(t, inst.IsZero())

	got, err := inst.Resolve(core.NewRunContext("r", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "static instruction", got)

	assert.True(t, Instruction{}.IsZero())
}

func TestInstruction_Func(t *testing.T) {
	inst := NewInstructionFromFunc(func(rc *core.RunContext) (string, error) {
		return "hello " + rc.Value.(string), nil
	})
	assert.False(t, inst.IsStatic())

	got, err := inst.Resolve(core.NewRunContext("r", "ada", nil))
	require.NoError(t, err)
	assert.Equal(t, "hello ada", got)
}

func TestInstruction_ProviderError(t *testing.T) {
	boom := errors.New("boom")
	inst := NewInstructionFromProvider(mockProvider{err: boom})

	_, err := inst.Resolve(core.NewRunContext("r", nil, nil))
	assert.ErrorIs(t, err, boom)
}

func TestInstruction_Template(t *testing.T) {
	inst := NewInstructionFromTemplate("You help {{.user | upper}} with {{default \"anything\" .topic}}.")
	assert.False(t, inst.IsStatic())

	rc := core.NewRunContext("r", nil, nil)
	rc.SetState("user", "ada")

	got, err := inst.Resolve(rc)
	require.NoError(t, err)
	assert.Equal(t, "You help ADA with anything.", got)
}

func TestInstruction_TemplateRunHelpers(t *testing.T) {
	inst := NewInstructionFromTemplate(`{{agent}} in {{runID}} for {{state "user.name"}} after {{usage.Requests}} requests`)

	rc := core.NewRunContext("run-1", nil, nil)
	rc.SetAgent(core.AgentInfo{Name: "triage"})
	rc.SetState("user.name", "ada")
	rc.AddUsage(core.Usage{Requests: 2})

	got, err := inst.Resolve(rc)
	require.NoError(t, err)
	assert.Equal(t, "triage in run-1 for ada after 2 requests", got)

	got, err = NewInstructionFromTemplate("[{{agent}}|{{usage.Requests}}]").Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "[|0]", got)
}

func TestInstruction_TemplateBindsEachRun(t *testing.T) {
	inst := NewInstructionFromTemplate("{{runID}}")

	a, err := inst.Resolve(core.NewRunContext("a", nil, nil))
	require.NoError(t, err)
	b, err := inst.Resolve(core.NewRunContext("b", nil, nil))
	require.NoError(t, err)

	assert.Equal(t, "a", a)
	assert.Equal(t, "b", b)
}

func TestInstruction_TemplateParseError(t *testing.T) {
	inst := NewInstructionFromTemplate("{{ .broken ")
	assert.False(t, inst.IsStatic())

	_, err := inst.Resolve(core.NewRunContext("r", nil, nil))
	assert.ErrorContains(t, err, "parse instruction template")
}
