package action

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// JSONSchema lets the invopop reflector describe a Sequence field as an array
// of action objects instead of an opaque interface slice.
func (Sequence) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:     "array",
		MinItems: ptr(uint64(1)),
		Items:    ActionSchema(),
	}
}

// ActionSchema describes one action object in wire form.
func ActionSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			kindSchema(KindNavigate, []string{"url"}, "url"),
			kindSchema(KindClick, []string{"selector"}, "selector"),
			kindSchema(KindFill, []string{"selector", "text"}, "selector", "text"),
			kindSchema(KindAssertText, []string{"selector", "text"}, "selector", "text"),
			kindSchema(KindAssertVisible, []string{"selector"}, "selector"),
			waitSchema(),
		},
	}
}

func kindSchema(kind Kind, required []string, fields ...string) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set("action", &jsonschema.Schema{Type: "string", Const: string(kind)})
	for _, f := range fields {
		props.Set(f, fieldSchema(f))
	}
	props.Set("timeoutMs", fieldSchema("timeoutMs"))
	return &jsonschema.Schema{
		Type:       "object",
		Title:      string(kind),
		Properties: props,
		Required:   append([]string{"action"}, required...),
	}
}

func waitSchema() *jsonschema.Schema {
	s := kindSchema(KindWait, nil, "selector", "durationMs")
	s.OneOf = []*jsonschema.Schema{
		{Required: []string{"selector"}},
		{Required: []string{"durationMs"}},
	}
	return s
}

func fieldSchema(field string) *jsonschema.Schema {
	switch field {
	case "selector":
		return &jsonschema.Schema{Type: "string", Pattern: `\S`, Description: "CSS selector"}
	case "url":
		return &jsonschema.Schema{Type: "string", Pattern: `\S`, Description: "Absolute URL or path relative to the target"}
	case "durationMs", "timeoutMs":
		return &jsonschema.Schema{Type: "integer", Minimum: json.Number("0")}
	default:
		return &jsonschema.Schema{Type: "string"}
	}
}

func ptr[T any](v T) *T { return &v }

// GenerateJSONSchema produces a Draft 2020-12 schema for an action list.
func GenerateJSONSchema() ([]byte, error) {
	s := Sequence(nil).JSONSchema()
	s.Version = jsonschema.Version
	s.ID = "https://github.com/ormasoftchile/qaflow/schemas/actions-v1.json"
	s.Title = "qaflow action list v1"
	s.Description = "Ordered browser action program"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
