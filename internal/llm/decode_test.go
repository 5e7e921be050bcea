package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = NewSchema("test-envelope", map[string]any{
	"type":     "object",
	"required": []string{"questions"},
	"properties": map[string]any{
		"questions": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
})

type testEnvelope struct {
	Questions []string `json:"questions"`
}

func TestDecode_ValidJSON(t *testing.T) {
	out, err := Decode[testEnvelope](`{"questions":["a","b"]}`, testSchema)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Questions)
}

func TestDecode_MarkdownFences(t *testing.T) {
	out, err := Decode[testEnvelope]("```json\n{\"questions\":[\"a\"]}\n```", testSchema)
	require.NoError(t, err)
	assert.Len(t, out.Questions, 1)
}

func TestDecode_SurroundingProse(t *testing.T) {
	out, err := Decode[testEnvelope]("Here you go:\n{\"questions\":[\"a\"]}\nHope that helps.", testSchema)
	require.NoError(t, err)
	assert.Len(t, out.Questions, 1)
}

func TestDecode_SchemaViolation(t *testing.T) {
	_, err := Decode[testEnvelope](`{"items":[]}`, testSchema)

	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed), "expected MalformedResponseError, got %T", err)
	assert.Equal(t, "test-envelope", malformed.Schema)
}

func TestDecode_WrongItemType(t *testing.T) {
	_, err := Decode[testEnvelope](`{"questions":[1,2]}`, testSchema)

	var malformed *MalformedResponseError
	assert.True(t, errors.As(err, &malformed))
}

func TestDecode_NotJSON(t *testing.T) {
	_, err := Decode[testEnvelope]("I cannot help with that.", testSchema)

	var malformed *MalformedResponseError
	assert.True(t, errors.As(err, &malformed))
}

func TestDecode_Empty(t *testing.T) {
	_, err := Decode[testEnvelope]("   ", nil)

	var malformed *MalformedResponseError
	assert.True(t, errors.As(err, &malformed))
}

func TestFirstContent(t *testing.T) {
	_, err := FirstContent(&ChatResponse{})
	assert.Error(t, err)

	content, err := FirstContent(&ChatResponse{Choices: []Choice{{Message: Message{Content: "  {} "}}}})
	require.NoError(t, err)
	assert.Equal(t, "{}", content)
}

func TestMockClient_FIFOThenFallback(t *testing.T) {
	m := NewMockClient(
		MockResponse{Err: errors.New("boom")},
		MockResponse{Content: "first"},
	)
	m.Fallback = func(req ChatRequest) (string, error) { return "fallback", nil }

	_, err := m.Complete(context.Background(), ChatRequest{Purpose: PurposeGenerate})
	assert.Error(t, err)

	resp, err := m.Complete(context.Background(), ChatRequest{Purpose: PurposeGenerate})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Choices[0].Message.Content)

	resp, err = m.Complete(context.Background(), ChatRequest{Purpose: PurposeValidate})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Choices[0].Message.Content)

	assert.Equal(t, 3, m.CallCount())
	assert.Equal(t, 2, m.CallsFor(PurposeGenerate))
}

func TestEstimateCost(t *testing.T) {
	cost := EstimateCost("gpt-4o", Usage{PromptTokens: 1_000_000, OutputTokens: 1_000_000})
	assert.InDelta(t, 12.5, cost, 1e-9)
	assert.Zero(t, EstimateCost("unknown-model", Usage{PromptTokens: 10}))
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem(Conversation("sys", "user"))
	assert.Equal(t, "sys", system)
	require.Len(t, rest, 1)
	assert.Equal(t, RoleUser, rest[0].Role)
}
