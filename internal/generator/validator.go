package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/certforge/backend/internal/llm"
	"github.com/certforge/backend/internal/logger"
	"github.com/certforge/backend/internal/metrics"
	"github.com/certforge/backend/internal/models"
)

const (
	// Repair is attempted only for invalid questions scoring above this.
	repairMinScore   = 50
	defaultBatchSize = 5
)

type ValidatorOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// BatchSize bounds concurrent validations in ValidateBatch.
	BatchSize int
}

// Validator runs structural checks, an LLM semantic check and an optional
// LLM repair pass on candidate questions.
type Validator struct {
	llm  llm.Client
	opts ValidatorOptions
	log  *logger.Logger
	now  func() time.Time
}

func NewValidator(client llm.Client, opts ValidatorOptions, log *logger.Logger) *Validator {
	if opts.BatchSize < 1 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2048
	}
	return &Validator{
		llm:  client,
		opts: opts,
		log:  log.With("component", "Validator"),
		now:  time.Now,
	}
}

func (v *Validator) ModelName() string {
	return v.opts.Model
}

// Validate returns the outcome for q. Structural and semantic findings are
// data in the result; an error means the semantic check itself could not
// run.
func (v *Validator) Validate(ctx context.Context, q models.GeneratedQuestion, research *models.ResearchResult) (*models.ValidationResult, error) {
	structural := CheckStructure(q)
	critical := countSeverity(structural, SeverityCritical)

	if critical > 0 {
		issues := make([]string, 0, len(structural))
		for _, is := range structural {
			issues = append(issues, is.Message)
		}
		metrics.ValidationOutcomes.WithLabelValues("structural_reject").Inc()
		return &models.ValidationResult{
			QuestionID:  q.ID,
			IsValid:     false,
			Issues:      issues,
			Suggestions: []string{},
			Score:       0,
		}, nil
	}

	check, err := v.semanticCheck(ctx, q, research)
	if err != nil {
		return nil, err
	}

	issues := make([]string, 0, len(structural)+len(check.Issues))
	for _, is := range structural {
		issues = append(issues, is.Message)
	}
	issues = append(issues, check.Issues...)
	suggestions := check.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}

	result := &models.ValidationResult{
		QuestionID:  q.ID,
		IsValid:     check.IsValid && len(issues) == 0,
		Issues:      issues,
		Suggestions: suggestions,
		Score:       ComputeScore(0, len(structural), len(check.Issues), !check.IsValid),
	}

	if !result.IsValid && result.Score > repairMinScore {
		result.FixedQuestion = v.repair(ctx, q, issues, suggestions)
	}

	switch {
	case result.IsValid:
		metrics.ValidationOutcomes.WithLabelValues("valid").Inc()
	case result.FixedQuestion != nil:
		metrics.ValidationOutcomes.WithLabelValues("repaired").Inc()
	default:
		metrics.ValidationOutcomes.WithLabelValues("invalid").Inc()
	}
	return result, nil
}

// ValidateBatch validates questions in groups of BatchSize, running each
// group concurrently and waiting for it before starting the next. Results
// keep the input order.
func (v *Validator) ValidateBatch(ctx context.Context, questions []models.GeneratedQuestion, research *models.ResearchResult) ([]models.ValidationResult, error) {
	results := make([]models.ValidationResult, len(questions))

	for start := 0; start < len(questions); start += v.opts.BatchSize {
		end := min(start+v.opts.BatchSize, len(questions))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				res, err := v.Validate(gctx, questions[i], research)
				if err != nil {
					return fmt.Errorf("validate question %s: %w", questions[i].ID, err)
				}
				results[i] = *res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (v *Validator) semanticCheck(ctx context.Context, q models.GeneratedQuestion, research *models.ResearchResult) (*semanticCheck, error) {
	resp, err := v.llm.Complete(ctx, llm.ChatRequest{
		Purpose:     llm.PurposeValidate,
		Model:       v.opts.Model,
		Messages:    llm.Conversation(semanticCheckSystemPrompt, buildSemanticCheckPrompt(q, research)),
		Temperature: v.opts.Temperature,
		MaxTokens:   v.opts.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic check: %w", err)
	}
	content, err := llm.FirstContent(resp)
	if err != nil {
		return nil, fmt.Errorf("semantic check: %w", err)
	}
	check, err := llm.Decode[semanticCheck](content, semanticCheckSchema)
	if err != nil {
		return nil, fmt.Errorf("semantic check: %w", err)
	}
	return &check, nil
}

// repair asks the LLM to rewrite q and merges the answer over a copy of it.
// Any failure yields nil; the caller keeps the original result.
func (v *Validator) repair(ctx context.Context, q models.GeneratedQuestion, issues, suggestions []string) *models.GeneratedQuestion {
	resp, err := v.llm.Complete(ctx, llm.ChatRequest{
		Purpose:     llm.PurposeRepair,
		Model:       v.opts.Model,
		Messages:    llm.Conversation(repairSystemPrompt, buildRepairPrompt(q, issues, suggestions)),
		Temperature: v.opts.Temperature,
		MaxTokens:   v.opts.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		v.log.Warn("repair call failed", "question_id", q.ID, "error", err)
		return nil
	}
	content, err := llm.FirstContent(resp)
	if err != nil {
		v.log.Warn("repair returned no content", "question_id", q.ID, "error", err)
		return nil
	}
	raw, err := llm.Decode[rawQuestion](content, repairSchema)
	if err != nil {
		v.log.Warn("repair response unparsable", "question_id", q.ID, "error", err)
		return nil
	}
	raw = raw.normalized()
	if raw.empty() {
		v.log.Warn("repair response empty", "question_id", q.ID)
		return nil
	}

	fixed := q.Clone()
	if raw.Question != "" {
		fixed.Question = raw.Question
	}
	if len(raw.Options) > 0 {
		fixed.Options = raw.Options
	}
	if raw.CorrectAnswer != "" {
		fixed.CorrectAnswer = raw.CorrectAnswer
	}
	if raw.Explanation != "" {
		fixed.Explanation = raw.Explanation
	}

	if issues := CheckStructure(fixed); countSeverity(issues, SeverityCritical) > 0 {
		v.log.Warn("repaired question is structurally broken", "question_id", q.ID, "issues", len(issues))
		return nil
	}

	fixedAt := v.now().UTC()
	fixed.ID = uuid.NewString()
	fixed.Metadata.WasFixed = true
	fixed.Metadata.FixedAt = &fixedAt
	fixed.Metadata.OriginalID = q.ID
	return &fixed
}
