package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema pairs a raw JSON Schema document with its compiled form. The raw
// text is embedded in prompts; the compiled form validates responses.
type Schema struct {
	raw      string
	compiled *jsonschema.Schema
}

// MustSchema compiles a JSON Schema document, panicking on a malformed
// schema. Schemas are package-level constants, so a failure is a programming
// error caught at startup.
func MustSchema(raw string) *Schema {
	compiled, err := jsonschema.CompileString("response.schema.json", raw)
	if err != nil {
		panic(fmt.Sprintf("invalid response schema: %v", err))
	}
	return &Schema{raw: raw, compiled: compiled}
}

// Raw returns the schema document for embedding in a prompt.
func (s *Schema) Raw() string {
	return s.raw
}

// validate checks a decoded JSON value against the schema.
func (s *Schema) validate(v any) error {
	return s.compiled.Validate(v)
}

// GenerateStructured implements Client.
func (c *OpenAIClient) GenerateStructured(ctx context.Context, prompt string, schema *Schema, v any, opts CallOptions) error {
	raw, err := c.Generate(ctx, prompt, opts)
	if err != nil {
		return err
	}
	return decodeStructured(raw, schema, v)
}

// decodeStructured parses a model response as JSON, falling back to a single
// repair pass that extracts the first balanced object from surrounding prose
// or markdown fences, then validates against schema and unmarshals into v.
func decodeStructured(raw string, schema *Schema, v any) error {
	candidate := strings.TrimSpace(raw)

	var decoded any
	if err := json.Unmarshal([]byte(candidate), &decoded); err != nil {
		repaired, ok := extractJSONObject(candidate)
		if !ok {
			return fmt.Errorf("response is not valid JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &decoded); err != nil {
			return fmt.Errorf("response is not valid JSON after repair: %w", err)
		}
		candidate = repaired
	}

	if err := schema.validate(decoded); err != nil {
		return fmt.Errorf("response failed schema validation: %w", err)
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// extractJSONObject returns the first balanced {...} block in s, tracking
// string literals and escapes so braces inside values do not miscount.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
