package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/agentrelay/internal/util"
)

func parseStructured(v *util.Validator, text string) (any, error) {
	raw := stripCodeFence(strings.TrimSpace(text))

	var out any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w", err)
	}

	if err := v.ValidateValue(out); err != nil {
		return nil, fmt.Errorf("output does not match schema: %w", err)
	}

	return out, nil
}

// stripCodeFence removes a surrounding ```json ... ``` block.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}

	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[\"") {
		s = s[i+1:]
	}

	return strings.TrimSpace(s)
}
