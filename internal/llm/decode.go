package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a named JSON Schema an LLM response must satisfy.
type Schema struct {
	Name       string
	Definition map[string]any

	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

func NewSchema(name string, definition map[string]any) *Schema {
	return &Schema{Name: name, Definition: definition}
}

func (s *Schema) compile() (*jsonschema.Schema, error) {
	s.once.Do(func() {
		// The compiler wants a generic JSON value, not a Go map with typed slices.
		raw, err := json.Marshal(s.Definition)
		if err != nil {
			s.err = fmt.Errorf("marshal schema definition: %w", err)
			return
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			s.err = fmt.Errorf("parse schema definition: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		url := fmt.Sprintf("schema://%s.json", s.Name)
		if err := c.AddResource(url, doc); err != nil {
			s.err = fmt.Errorf("add schema %q: %w", s.Name, err)
			return
		}
		s.compiled, s.err = c.Compile(url)
	})
	return s.compiled, s.err
}

// MalformedResponseError reports LLM content that is not JSON or does not
// match the expected schema.
type MalformedResponseError struct {
	Schema  string
	Content string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: %v", e.Schema, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Decode parses LLM content into T after validating it against schema.
// Markdown code fences and prose around a single JSON object are tolerated.
func Decode[T any](content string, schema *Schema) (T, error) {
	var out T
	name := "llm"
	if schema != nil {
		name = schema.Name
	}
	malformed := func(err error) (T, error) {
		return out, &MalformedResponseError{Schema: name, Content: content, Err: err}
	}

	cleaned := extractJSON(content)
	if cleaned == "" {
		return malformed(fmt.Errorf("empty content"))
	}

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return malformed(fmt.Errorf("invalid JSON: %w", err))
	}

	if schema != nil {
		compiled, err := schema.compile()
		if err != nil {
			return malformed(err)
		}
		if err := compiled.Validate(doc); err != nil {
			return malformed(fmt.Errorf("schema validation failed: %w", err))
		}
	}

	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return malformed(fmt.Errorf("decode: %w", err))
	}
	return out, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSpace(s)
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}

// extractJSON strips fences and, when the result is not itself an object,
// falls back to the outermost {...} span.
func extractJSON(s string) string {
	s = stripCodeFences(s)
	if s == "" || json.Valid([]byte(s)) {
		return s
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
