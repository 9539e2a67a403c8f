package util

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator validates JSON documents against a compiled JSON schema.
// A Validator is immutable and safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles a schema map. A nil or empty schema accepts any object.
func CompileSchema(schema map[string]any) (*Validator, error) {
	if len(schema) == 0 {
		schema = map[string]any{"type": "object"}
	}

	// Round trip through JSON so the compiler sees canonical JSON values
	// ([]any instead of []string, float64 or json.Number for numbers).
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{schema: compiled}, nil
}

// ValidateJSON decodes raw and validates it. An empty payload is treated as {}.
// It returns the decoded object on success. Decode and validation failures are
// returned as *ValidationError.
func (v *Validator) ValidateJSON(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}

	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("arguments are not valid JSON: %v", err)}
	}

	if err := v.schema.Validate(inst); err != nil {
		return nil, toValidationError(err)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("arguments must be a JSON object: %v", err)}
	}

	return out, nil
}

// ValidateValue validates an already decoded Go value by round tripping it
// through JSON.
func (v *Validator) ValidateValue(value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &ValidationError{Value: value, Message: fmt.Sprintf("value is not JSON serializable: %v", err)}
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &ValidationError{Value: value, Message: err.Error()}
	}

	if err := v.schema.Validate(inst); err != nil {
		return toValidationError(err)
	}

	return nil
}

func toValidationError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &ValidationError{Message: err.Error()}
	}

	// Report the deepest first cause, it names the offending field.
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}

	return &ValidationError{
		Field:   "/" + strings.Join(leaf.InstanceLocation, "/"),
		Message: leaf.Error(),
	}
}
