package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockResponse is a canned response for MockClient.
type MockResponse struct {
	Content string
	Usage   Usage
	Err     error
}

// MockClient returns canned responses in FIFO order and records every
// request. When the queue is empty it falls back to Fallback, if set.
type MockClient struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     []ChatRequest
	Fallback  func(req ChatRequest) (string, error)
}

func NewMockClient(responses ...MockResponse) *MockClient {
	return &MockClient{responses: responses}
}

func (m *MockClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	var (
		resp MockResponse
		ok   bool
	)
	if len(m.responses) > 0 {
		resp, ok = m.responses[0], true
		m.responses = m.responses[1:]
	}
	fallback := m.Fallback
	m.mu.Unlock()

	if !ok {
		if fallback == nil {
			return nil, fmt.Errorf("mock: no responses left")
		}
		content, err := fallback(req)
		if err != nil {
			return nil, err
		}
		resp = MockResponse{Content: content}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}

	return &ChatResponse{
		Model: "mock",
		Choices: []Choice{{
			Message:      Message{Role: RoleAssistant, Content: resp.Content},
			FinishReason: "stop",
		}},
		Usage: resp.Usage,
	}, nil
}

func (m *MockClient) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CallsFor counts recorded requests with the given purpose.
func (m *MockClient) CallsFor(purpose Purpose) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Purpose == purpose {
			n++
		}
	}
	return n
}

func (m *MockClient) Calls() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.calls...)
}

// ── Canned client: local development ───────────────────────

// NewCannedClient answers every purpose with fixed, well-formed JSON so the
// whole pipeline can run without an API key.
func NewCannedClient() *MockClient {
	return &MockClient{Fallback: cannedContent}
}

func cannedContent(req ChatRequest) (string, error) {
	switch req.Purpose {
	case PurposeResearch:
		return `{"key_topics":["[Mock] core concept","[Mock] configuration"],` +
			`"practical_applications":["[Mock] troubleshooting a deployment"],` +
			`"common_misconceptions":["[Mock] confusing similar services"],` +
			`"difficulty_guidelines":{"easy":"recall facts","medium":"apply concepts","hard":"analyse scenarios"}}`, nil
	case PurposeGenerate:
		return `{"questions":[{"question":"[Mock] Which option best describes the core concept?",` +
			`"options":["A) The correct description","B) A plausible distractor","C) A common misconception","D) An unrelated statement"],` +
			`"correct_answer":"A","explanation":"[Mock] Option A is correct because it states the concept precisely; the others describe related but different ideas."}]}`, nil
	case PurposeValidate:
		return `{"is_valid":true,"issues":[],"suggestions":[]}`, nil
	case PurposeRepair:
		return `{}`, nil
	default:
		return "", fmt.Errorf("mock: unknown purpose %q", req.Purpose)
	}
}
