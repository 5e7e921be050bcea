package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/certforge/backend/internal/llm"
	"github.com/certforge/backend/internal/logger"
	"github.com/certforge/backend/internal/models"
)

func testResearch() *models.ResearchResult {
	return &models.ResearchResult{
		ObjectiveID:           "obj-1",
		Title:                 "Configure VPC networking",
		Description:           "Subnets, route tables and gateways",
		ExamContext:           "AWS Solutions Architect Associate (SAA-C03)",
		KeyTopics:             []string{"subnets", "route tables"},
		PracticalApplications: []string{"isolating a database tier"},
		CommonMisconceptions:  []string{"security groups are stateless"},
		DifficultyGuidelines: models.DifficultyGuidelines{
			Easy:   "recall facts",
			Medium: "apply to a scenario",
			Hard:   "troubleshoot a multi-tier design",
		},
	}
}

const oneQuestionJSON = `{"questions":[{"question":"Which component routes traffic from a private subnet to the internet?",` +
	`"options":["A) NAT gateway","B) Internet gateway attached to the subnet","C) VPC endpoint","D) Security group"],` +
	`"correct_answer":"a","explanation":"A NAT gateway in a public subnet lets private instances initiate outbound traffic. The others do not."}]}`

func newTestGenerator(client llm.Client, maxRetries int) *Generator {
	return NewGenerator(client, Options{
		Model:       "test-model",
		MaxRetries:  maxRetries,
		BackoffBase: time.Millisecond,
	}, logger.Nop())
}

func TestGenerateBatch_AttachesMetadata(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{Content: oneQuestionJSON})
	g := newTestGenerator(mock, 3)

	qs, err := g.GenerateBatch(context.Background(), testResearch(), 1, models.DifficultyMedium, "")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(qs) != 1 {
		t.Fatalf("expected 1 question, got %d", len(qs))
	}

	q := qs[0]
	if q.ID == "" {
		t.Error("expected generated id")
	}
	if q.ObjectiveID != "obj-1" {
		t.Errorf("expected objective obj-1, got %q", q.ObjectiveID)
	}
	if q.Difficulty != models.DifficultyMedium {
		t.Errorf("expected medium, got %q", q.Difficulty)
	}
	if q.CorrectAnswer != "A" {
		t.Errorf("expected normalized answer A, got %q", q.CorrectAnswer)
	}
	if q.Metadata.ModelID != "test-model" || !q.Metadata.ResearchBased || q.Metadata.GeneratedAt.IsZero() {
		t.Errorf("unexpected metadata: %+v", q.Metadata)
	}
}

func TestGenerateBatch_ModelOverride(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{Content: oneQuestionJSON})
	g := newTestGenerator(mock, 3)

	qs, err := g.GenerateBatch(context.Background(), testResearch(), 1, models.DifficultyEasy, "override-model")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if qs[0].Metadata.ModelID != "override-model" {
		t.Errorf("expected override-model, got %q", qs[0].Metadata.ModelID)
	}
	if calls := mock.Calls(); calls[0].Model != "override-model" {
		t.Errorf("request used model %q", calls[0].Model)
	}
}

func TestGenerateBatch_PromptEmbedsResearch(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{Content: oneQuestionJSON})
	g := newTestGenerator(mock, 3)

	if _, err := g.GenerateBatch(context.Background(), testResearch(), 1, models.DifficultyHard, ""); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	prompt := mock.Calls()[0].Messages[1].Content
	required := []string{"exactly 1", "hard", "subnets", "isolating a database tier", "security groups are stateless", "troubleshoot a multi-tier design", "correct_answer"}
	for _, keyword := range required {
		if !strings.Contains(prompt, keyword) {
			t.Errorf("generation prompt missing %q", keyword)
		}
	}
}

func TestGenerateBatch_RejectsMixedDifficulty(t *testing.T) {
	mock := llm.NewMockClient()
	g := newTestGenerator(mock, 3)

	_, err := g.GenerateBatch(context.Background(), testResearch(), 1, models.DifficultyMixed, "")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if mock.CallCount() != 0 {
		t.Errorf("expected no LLM call, got %d", mock.CallCount())
	}
}

func TestGenerateBatch_MalformedResponse(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{Content: `{"items":[]}`})
	g := newTestGenerator(mock, 3)

	_, err := g.GenerateBatch(context.Background(), testResearch(), 1, models.DifficultyEasy, "")

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	var malformed *llm.MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Errorf("expected wrapped MalformedResponseError, got %v", err)
	}
}

func TestGenerateBatch_TruncatesExtraQuestions(t *testing.T) {
	two := `{"questions":[` + questionItem("first") + `,` + questionItem("second") + `]}`
	mock := llm.NewMockClient(llm.MockResponse{Content: two})
	g := newTestGenerator(mock, 3)

	qs, err := g.GenerateBatch(context.Background(), testResearch(), 1, models.DifficultyEasy, "")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(qs) != 1 {
		t.Errorf("expected 1 question, got %d", len(qs))
	}
}

func questionItem(tag string) string {
	return `{"question":"Question ` + tag + ` about subnets and routing?","options":["A) one","B) two","C) three","D) four"],` +
		`"correct_answer":"B","explanation":"Option B is correct because it matches the routing rule."}`
}

func TestGenerateWithRetry_SucceedsAfterTwoFailures(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockResponse{Err: errors.New("rate limited")},
		llm.MockResponse{Content: "not json at all"},
		llm.MockResponse{Content: oneQuestionJSON},
	)
	g := newTestGenerator(mock, 3)

	qs, err := g.GenerateWithRetry(context.Background(), testResearch(), 1, models.DifficultyMedium, "")
	if err != nil {
		t.Fatalf("expected success on third attempt, got: %v", err)
	}
	if len(qs) != 1 {
		t.Errorf("expected 1 question, got %d", len(qs))
	}
	if mock.CallCount() != 3 {
		t.Errorf("expected exactly 3 calls, got %d", mock.CallCount())
	}
}

func TestGenerateWithRetry_Exhausted(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Fallback = func(llm.ChatRequest) (string, error) { return "", errors.New("provider down") }
	g := newTestGenerator(mock, 4)

	_, err := g.GenerateWithRetry(context.Background(), testResearch(), 1, models.DifficultyMedium, "")

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 4 {
		t.Errorf("expected 4 attempts, got %d", exhausted.Attempts)
	}
	if !strings.Contains(exhausted.Err.Error(), "provider down") {
		t.Errorf("expected last error to be carried, got %v", exhausted.Err)
	}
	if mock.CallCount() != 4 {
		t.Errorf("expected exactly 4 calls, got %d", mock.CallCount())
	}
}

func TestGenerateWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Fallback = func(llm.ChatRequest) (string, error) { return "", errors.New("provider down") }
	g := NewGenerator(mock, Options{MaxRetries: 3, BackoffBase: time.Hour}, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.GenerateWithRetry(ctx, testResearch(), 1, models.DifficultyMedium, "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", mock.CallCount())
	}
}

func TestJaccardSimilarity(t *testing.T) {
	a := tokenize("which gateway routes private subnet traffic")
	b := tokenize("which gateway routes private subnet traffic")
	if got := jaccardSimilarity(a, b); got != 1 {
		t.Errorf("expected identical sets to score 1, got %f", got)
	}
	if got := jaccardSimilarity(map[string]bool{}, map[string]bool{}); got != 0 {
		t.Errorf("expected empty sets to score 0, got %f", got)
	}
}
