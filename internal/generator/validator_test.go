package generator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/certforge/backend/internal/llm"
	"github.com/certforge/backend/internal/logger"
	"github.com/certforge/backend/internal/models"
)

func wellFormedQuestion() models.GeneratedQuestion {
	return models.GeneratedQuestion{
		ID:            "q-1",
		Question:      "Which component lets instances in a private subnet reach the internet?",
		Options:       []string{"A) NAT gateway", "B) Internet gateway", "C) VPC endpoint", "D) Security group"},
		CorrectAnswer: "A",
		Explanation:   "A NAT gateway forwards outbound traffic from private subnets. The others do not.",
		Difficulty:    models.DifficultyMedium,
		ObjectiveID:   "obj-1",
	}
}

func newTestValidator(client llm.Client) *Validator {
	return NewValidator(client, ValidatorOptions{Model: "test-validator"}, logger.Nop())
}

func TestValidate_WellFormedScores100(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{Content: `{"is_valid":true,"issues":[],"suggestions":[]}`})
	v := newTestValidator(mock)

	res, err := v.Validate(context.Background(), wellFormedQuestion(), testResearch())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !res.IsValid {
		t.Errorf("expected valid, issues: %v", res.Issues)
	}
	if res.Score != 100 {
		t.Errorf("expected score 100, got %d", res.Score)
	}
	if res.QuestionID != "q-1" {
		t.Errorf("expected question id q-1, got %q", res.QuestionID)
	}
	if res.FixedQuestion != nil {
		t.Error("valid question should not be repaired")
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected one semantic call, got %d", mock.CallCount())
	}
}

func TestValidate_CriticalShortCircuits(t *testing.T) {
	mock := llm.NewMockClient()
	v := newTestValidator(mock)

	q := wellFormedQuestion()
	q.Options[2] = "C) nat   GATEWAY"
	q.CorrectAnswer = "E"

	res, err := v.Validate(context.Background(), q, testResearch())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if res.IsValid {
		t.Error("expected invalid")
	}
	if res.Score != 0 {
		t.Errorf("expected score 0, got %d", res.Score)
	}
	if mock.CallCount() != 0 {
		t.Errorf("expected no LLM call, got %d", mock.CallCount())
	}

	joined := strings.Join(res.Issues, "\n")
	if !strings.Contains(joined, "Duplicate options") || !strings.Contains(joined, "Correct answer") {
		t.Errorf("expected duplicate and answer issues, got %v", res.Issues)
	}
}

func TestValidate_WarningsMakeInvalid(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockResponse{Content: `{"is_valid":true,"issues":[],"suggestions":[]}`},
		llm.MockResponse{Content: `{}`},
	)
	v := newTestValidator(mock)

	q := wellFormedQuestion()
	q.Options = []string{"NAT gateway", "Internet gateway", "VPC endpoint", "Security group"}

	res, err := v.Validate(context.Background(), q, testResearch())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if res.IsValid {
		t.Error("expected invalid because of label warnings")
	}
	if res.Score != 80 {
		t.Errorf("expected score 80 (four warnings), got %d", res.Score)
	}
	// Score > 50 triggers a repair; an empty repair yields no fixed question.
	if res.FixedQuestion != nil {
		t.Error("expected no fixed question from an empty repair")
	}
	if mock.CallsFor(llm.PurposeRepair) != 1 {
		t.Errorf("expected one repair call, got %d", mock.CallsFor(llm.PurposeRepair))
	}
}

func TestValidate_RepairProducesNewRecord(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockResponse{Content: `{"is_valid":false,"issues":["Distractor D is implausible"],"suggestions":["Use a route table"]}`},
		llm.MockResponse{Content: `{"options":["A) NAT gateway","B) Internet gateway","C) VPC endpoint","D) Route table entry"]}`},
	)
	v := newTestValidator(mock)
	fixedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	v.now = func() time.Time { return fixedAt }

	q := wellFormedQuestion()
	res, err := v.Validate(context.Background(), q, testResearch())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if res.IsValid {
		t.Error("expected invalid")
	}
	// 100 - 10 (one issue) - 20 (judged invalid)
	if res.Score != 70 {
		t.Errorf("expected score 70, got %d", res.Score)
	}

	fixed := res.FixedQuestion
	if fixed == nil {
		t.Fatal("expected a fixed question")
	}
	if fixed.ID == q.ID || fixed.Metadata.OriginalID != q.ID {
		t.Errorf("fixed question must be a new record linked to the original: %+v", fixed.Metadata)
	}
	if !fixed.Metadata.WasFixed || fixed.Metadata.FixedAt == nil || !fixed.Metadata.FixedAt.Equal(fixedAt) {
		t.Errorf("expected fix stamp, got %+v", fixed.Metadata)
	}
	if fixed.Options[3] != "D) Route table entry" {
		t.Errorf("expected merged option D, got %q", fixed.Options[3])
	}
	if fixed.Question != q.Question || fixed.Explanation != q.Explanation {
		t.Error("fields absent from the repair must be kept from the original")
	}
	if q.Options[3] != "D) Security group" {
		t.Error("original question must not be mutated")
	}
}

func TestValidate_StructurallyBrokenRepairIsDropped(t *testing.T) {
	repairs := map[string]string{
		"one option, answer Z": `{"options":["A) x"],"correct_answer":"Z"}`,
		"duplicate options":    `{"options":["A) NAT gateway","B) nat  gateway","C) VPC endpoint","D) Route table"]}`,
		"short explanation":    `{"explanation":"Because."}`,
	}
	for name, repair := range repairs {
		t.Run(name, func(t *testing.T) {
			mock := llm.NewMockClient(
				llm.MockResponse{Content: `{"is_valid":false,"issues":[],"suggestions":[]}`},
				llm.MockResponse{Content: repair},
			)
			v := newTestValidator(mock)

			res, err := v.Validate(context.Background(), wellFormedQuestion(), testResearch())
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			// 100 - 20 (judged invalid)
			if res.Score != 80 {
				t.Errorf("expected score 80, got %d", res.Score)
			}
			if mock.CallsFor(llm.PurposeRepair) != 1 {
				t.Errorf("expected one repair call, got %d", mock.CallsFor(llm.PurposeRepair))
			}
			if res.FixedQuestion != nil {
				t.Errorf("broken repair must be dropped, got %+v", res.FixedQuestion)
			}
		})
	}
}

func TestValidate_NoRepairAtOrBelow50(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockResponse{Content: `{"is_valid":false,"issues":["a","b","c"],"suggestions":[]}`},
	)
	v := newTestValidator(mock)

	res, err := v.Validate(context.Background(), wellFormedQuestion(), testResearch())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if res.Score != 50 {
		t.Errorf("expected score 50, got %d", res.Score)
	}
	if mock.CallsFor(llm.PurposeRepair) != 0 {
		t.Error("expected no repair call at score 50")
	}
}

func TestValidate_RepairFailureIsNotAnError(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockResponse{Content: `{"is_valid":false,"issues":["ambiguous"],"suggestions":[]}`},
		llm.MockResponse{Err: errors.New("timeout")},
	)
	v := newTestValidator(mock)

	res, err := v.Validate(context.Background(), wellFormedQuestion(), testResearch())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if res.FixedQuestion != nil {
		t.Error("expected no fixed question")
	}
}

func TestValidate_SemanticFailureIsAnError(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{Content: `{"valid":"yes"}`})
	v := newTestValidator(mock)

	_, err := v.Validate(context.Background(), wellFormedQuestion(), testResearch())
	var malformed *llm.MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedResponseError, got %v", err)
	}
}

type concurrencyProbe struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (p *concurrencyProbe) Complete(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return &llm.ChatResponse{Choices: []llm.Choice{{Message: llm.Message{Content: `{"is_valid":true,"issues":[]}`}}}}, nil
}

func TestValidateBatch_BoundedGroups(t *testing.T) {
	probe := &concurrencyProbe{}
	v := NewValidator(probe, ValidatorOptions{BatchSize: 5}, logger.Nop())

	questions := make([]models.GeneratedQuestion, 12)
	for i := range questions {
		questions[i] = wellFormedQuestion()
		questions[i].ID = string(rune('a' + i))
	}

	results, err := v.ValidateBatch(context.Background(), questions, testResearch())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(results) != 12 {
		t.Fatalf("expected 12 results, got %d", len(results))
	}
	for i, r := range results {
		if r.QuestionID != questions[i].ID {
			t.Errorf("result %d out of order: %q", i, r.QuestionID)
		}
	}
	if peak := probe.peak.Load(); peak > 5 {
		t.Errorf("expected at most 5 concurrent validations, saw %d", peak)
	}
}

func TestCheckStructure_MissingOptions(t *testing.T) {
	q := wellFormedQuestion()
	q.Options = q.Options[:2]

	issues := CheckStructure(q)
	if got := countSeverity(issues, SeverityCritical); got != 3 {
		t.Errorf("expected 3 critical issues (count + 2 missing), got %d: %v", got, issues)
	}
}

func TestCheckStructure_LongQuestionAndBadDifficulty(t *testing.T) {
	q := wellFormedQuestion()
	q.Question = strings.Repeat("x", 501)
	q.Difficulty = models.DifficultyMixed

	issues := CheckStructure(q)
	if countSeverity(issues, SeverityCritical) != 0 {
		t.Errorf("expected no critical issues, got %v", issues)
	}
	if countSeverity(issues, SeverityWarning) != 2 {
		t.Errorf("expected 2 warnings, got %v", issues)
	}
}

func TestComputeScore_Clamps(t *testing.T) {
	if got := ComputeScore(6, 0, 0, false); got != 0 {
		t.Errorf("expected clamp to 0, got %d", got)
	}
	if got := ComputeScore(0, 1, 1, true); got != 65 {
		t.Errorf("expected 65, got %d", got)
	}
}
