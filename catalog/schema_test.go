package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_EmptyValue(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		want   any
	}{
		{"string", `{"type": "string"}`, ""},
		{"integer", `{"type": "integer"}`, float64(0)},
		{"number", `{"type": "number"}`, float64(0)},
		{"boolean", `{"type": "boolean"}`, false},
		{"array", `{"type": "array", "items": {"type": "string"}}`, []any{}},
		{"nullable string", `{"type": ["null", "string"]}`, ""},
		{"default wins", `{"type": "string", "default": "60 minutes"}`, "60 minutes"},
		{"enum", `{"type": "string", "enum": ["easy", "hard"]}`, "easy"},
		{"untyped", `{}`, nil},
		{"inferred object", `{"properties": {"a": {"type": "boolean"}}}`, map[string]any{"a": false}},
		{
			"nested object",
			`{"type": "object", "properties": {
				"focalStandard": {"type": "array", "items": {"type": "string"}},
				"meta": {"type": "object", "properties": {"count": {"type": "integer"}}}
			}}`,
			map[string]any{
				"focalStandard": []any{},
				"meta":          map[string]any{"count": float64(0)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSchema([]byte(tt.schema))
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.EmptyValue())
		})
	}
}

func TestSchema_EmptyValueIsFresh(t *testing.T) {
	s, err := NewSchema([]byte(`{"type": "object", "properties": {"a": {"type": "array"}}}`))
	require.NoError(t, err)

	first := s.EmptyValue().(map[string]any)
	first["a"] = []any{"changed"}
	assert.Equal(t, map[string]any{"a": []any{}}, s.EmptyValue())
}

func TestSchema_Validate(t *testing.T) {
	s, err := NewSchema([]byte(`{
		"type": "object",
		"required": ["focalStandard"],
		"properties": {"focalStandard": {"type": "array", "items": {"type": "string"}}}
	}`))
	require.NoError(t, err)

	assert.NoError(t, s.Validate(map[string]any{"focalStandard": []any{"3.NF.1"}}))
	assert.Error(t, s.Validate(map[string]any{}))
	assert.Error(t, s.Validate(map[string]any{"focalStandard": "3.NF.1"}))
	assert.Error(t, s.Validate([]any{}))
}

func TestSchema_BuiltInSkeletonsRoundTrip(t *testing.T) {
	for _, domain := range Domains() {
		def, err := Load(domain)
		require.NoError(t, err)

		for _, name := range def.Components() {
			spec, err := def.SpecFor(name)
			require.NoError(t, err)

			// Skeletons must survive a JSON round trip unchanged so stored
			// documents compare equal to freshly built ones.
			empty := spec.Schema.EmptyValue()
			data, err := json.Marshal(empty)
			require.NoError(t, err)
			var back any
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, empty, back, "%s/%s", domain, name)
		}
	}
}

func TestSchema_LessonFlowSkeleton(t *testing.T) {
	def, err := Load("lesson")
	require.NoError(t, err)

	spec, err := def.SpecFor("lessonFlow")
	require.NoError(t, err)
	data, err := json.Marshal(spec.Schema.EmptyValue())
	require.NoError(t, err)
	assert.JSONEq(t, `{"totalDuration": "", "phases": []}`, string(data))

	spec, err = def.SpecFor("markupProblemSets")
	require.NoError(t, err)
	assert.Equal(t, []any{}, spec.Schema.EmptyValue())
}

func TestSchema_Indented(t *testing.T) {
	s, err := NewSchema([]byte(`{"type":"object"}`))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"type\": \"object\"\n}", s.Indented())
	assert.JSONEq(t, `{"type":"object"}`, string(s.JSON()))
}

func TestNewSchema_Invalid(t *testing.T) {
	_, err := NewSchema([]byte(`{"type": `))
	assert.Error(t, err)
}
