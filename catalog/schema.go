package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Schema is a component's JSON Schema. It validates generated values and
// derives the skeleton used when generation fails. Immutable after creation.
type Schema struct {
	raw      json.RawMessage
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// NewSchema parses and resolves a JSON Schema document.
func NewSchema(data []byte) (*Schema, error) {
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("compact schema: %w", err)
	}
	return &Schema{raw: buf.Bytes(), schema: &s, resolved: resolved}, nil
}

// Validate reports whether value conforms to the schema. value must be a
// plain decoded JSON value (maps, slices, float64, string, bool, nil).
func (s *Schema) Validate(value any) error {
	return s.resolved.Validate(value)
}

// EmptyValue returns a fresh schema-shaped placeholder. Declared defaults
// win; otherwise objects hold the empty value of every property, arrays are
// empty, strings are "", numbers 0 and booleans false.
func (s *Schema) EmptyValue() any {
	return emptyValue(s.schema)
}

// JSON returns the compact schema document.
func (s *Schema) JSON() json.RawMessage {
	return s.raw
}

// Indented returns the schema pretty-printed for embedding in prompts.
func (s *Schema) Indented() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, s.raw, "", "  "); err != nil {
		return string(s.raw)
	}
	return buf.String()
}

func emptyValue(s *jsonschema.Schema) any {
	if s == nil {
		return nil
	}
	if len(s.Default) > 0 {
		var v any
		if err := json.Unmarshal(s.Default, &v); err == nil {
			return v
		}
	}
	if s.Const != nil {
		return *s.Const
	}
	if len(s.Enum) > 0 {
		return s.Enum[0]
	}

	switch schemaType(s) {
	case "object":
		obj := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			obj[name] = emptyValue(prop)
		}
		return obj
	case "array":
		return []any{}
	case "string":
		return ""
	case "number", "integer":
		return float64(0)
	case "boolean":
		return false
	default:
		return nil
	}
}

// schemaType picks the first non-null type, inferring object or array from
// structural keywords when no type is declared.
func schemaType(s *jsonschema.Schema) string {
	if s.Type != "" {
		return s.Type
	}
	for _, t := range s.Types {
		if t != "null" {
			return t
		}
	}
	switch {
	case len(s.Properties) > 0:
		return "object"
	case s.Items != nil:
		return "array"
	}
	return ""
}
