package agent

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/hupe1980/agentrelay/core"
)

// Provider supplies dynamic instruction text at runtime.
// Implementations can derive instructions from run state, the caller's
// context value, the environment etc.
type Provider interface {
	Instruction(*core.RunContext) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(*core.RunContext) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(rc *core.RunContext) (string, error) { return f(rc) }

// Instruction represents either a static instruction string, a template
// rendered against the run state, or a dynamic provider.
type Instruction struct {
	text     string
	tmpl     *template.Template
	parseErr error
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromTemplate creates an Instruction rendered with
// text/template on every resolve. The dot is the RunContext state. Besides
// upper, lower and default the template can call:
//
//	{{agent}}          name of the current agent
//	{{runID}}          id of the run
//	{{state "a.b"}}    state value, nil when unset
//	{{usage}}          core.Usage accumulated so far
//
// A parse error is reported by Resolve.
func NewInstructionFromTemplate(text string) Instruction {
	t, err := template.New("instructions").
		Option("missingkey=zero").
		Funcs(templateFuncs(nil)).
		Parse(text)
	if err != nil {
		return Instruction{text: text, parseErr: fmt.Errorf("parse instruction template: %w", err)}
	}
	return Instruction{text: text, tmpl: t}
}

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*core.RunContext) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool {
	return i.provider == nil && i.tmpl == nil && i.parseErr == nil
}

// IsZero reports whether no instruction was configured.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve returns the instruction text, invoking the provider or rendering
// the template if needed.
func (i Instruction) Resolve(rc *core.RunContext) (string, error) {
	switch {
	case i.provider != nil:
		return i.provider.Instruction(rc)
	case i.parseErr != nil:
		return "", i.parseErr
	case i.tmpl != nil:
		return i.render(rc)
	default:
		return i.text, nil
	}
}

func (i Instruction) render(rc *core.RunContext) (string, error) {
	// Clone so concurrent runs bind their own RunContext.
	t, err := i.tmpl.Clone()
	if err != nil {
		return "", err
	}
	t.Funcs(templateFuncs(rc))

	var state map[string]any
	if rc != nil {
		state = rc.State()
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, state); err != nil {
		return "", fmt.Errorf("render instruction template: %w", err)
	}

	return buf.String(), nil
}

func templateFuncs(rc *core.RunContext) template.FuncMap {
	return template.FuncMap{
		"default": func(def, val any) any {
			if val == nil || val == "" {
				return def
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"agent": func() string {
			if rc == nil {
				return ""
			}
			return rc.Agent().Name
		},
		"runID": func() string {
			if rc == nil {
				return ""
			}
			return rc.RunID
		},
		"state": func(key string) any {
			if rc == nil {
				return nil
			}
			v, _ := rc.GetState(key)
			return v
		},
		"usage": func() core.Usage {
			if rc == nil {
				return core.Usage{}
			}
			return rc.Usage()
		},
	}
}
