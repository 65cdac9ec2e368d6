package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = MustSchema(`{
	"type": "object",
	"properties": {
		"category": {"type": "string", "enum": ["person_name", "organization"]}
	},
	"required": ["category"]
}`)

type categoryResponse struct {
	Category string `json:"category"`
}

func TestDecodeStructuredCleanJSON(t *testing.T) {
	var out categoryResponse
	err := decodeStructured(`{"category": "person_name"}`, testSchema, &out)
	require.NoError(t, err)
	assert.Equal(t, "person_name", out.Category)
}

func TestDecodeStructuredRepairsMarkdownFence(t *testing.T) {
	raw := "Sure, here is the JSON:\n```json\n{\"category\": \"organization\"}\n```\nHope that helps!"
	var out categoryResponse
	err := decodeStructured(raw, testSchema, &out)
	require.NoError(t, err)
	assert.Equal(t, "organization", out.Category)
}

func TestDecodeStructuredRepairsSurroundingProse(t *testing.T) {
	raw := `The answer is {"category": "person_name"} as requested.`
	var out categoryResponse
	err := decodeStructured(raw, testSchema, &out)
	require.NoError(t, err)
	assert.Equal(t, "person_name", out.Category)
}

func TestDecodeStructuredRejectsNonJSON(t *testing.T) {
	var out categoryResponse
	err := decodeStructured("I cannot answer that.", testSchema, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestDecodeStructuredRejectsSchemaViolation(t *testing.T) {
	var out categoryResponse
	err := decodeStructured(`{"category": "noodle"}`, testSchema, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation")
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`, true},
		{"nested braces", `x {"a": {"b": 2}} y`, `{"a": {"b": 2}}`, true},
		{"brace inside string", `{"a": "}"}`, `{"a": "}"}`, true},
		{"escaped quote inside string", `{"a": "say \"hi\" {now}"}`, `{"a": "say \"hi\" {now}"}`, true},
		{"first balanced block wins", `{"a": 1} {"b": 2}`, `{"a": 1}`, true},
		{"no object", "plain text", "", false},
		{"unterminated", `{"a": 1`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSONObject(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMustSchemaPanicsOnInvalidSchema(t *testing.T) {
	assert.Panics(t, func() { MustSchema(`{"type": 42}`) })
}
