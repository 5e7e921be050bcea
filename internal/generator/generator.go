package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/certforge/backend/internal/llm"
	"github.com/certforge/backend/internal/logger"
	"github.com/certforge/backend/internal/metrics"
	"github.com/certforge/backend/internal/models"
)

type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	MaxRetries  int
	// BackoffBase is the unit of the 2^attempt retry delay.
	BackoffBase time.Duration
}

// Generator turns a research brief into candidate questions.
type Generator struct {
	llm  llm.Client
	opts Options
	log  *logger.Logger
	now  func() time.Time
}

func NewGenerator(client llm.Client, opts Options, log *logger.Logger) *Generator {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	return &Generator{
		llm:  client,
		opts: opts,
		log:  log.With("component", "Generator"),
		now:  time.Now,
	}
}

func (g *Generator) ModelName() string {
	return g.opts.Model
}

// GenerateBatch makes one LLM call for count questions at a concrete
// difficulty. modelID overrides the configured model when set.
func (g *Generator) GenerateBatch(ctx context.Context, research *models.ResearchResult, count int, difficulty models.Difficulty, modelID string) ([]models.GeneratedQuestion, error) {
	if research == nil {
		return nil, &GenerationError{Op: "generate batch", Err: fmt.Errorf("research brief is required")}
	}
	if count < 1 {
		return nil, &GenerationError{Op: "generate batch", Err: fmt.Errorf("count must be positive, got %d", count)}
	}
	if !difficulty.IsConcrete() {
		return nil, &GenerationError{Op: "generate batch", Err: fmt.Errorf("difficulty %q must be resolved before generation", difficulty)}
	}

	model := g.opts.Model
	if modelID != "" {
		model = modelID
	}

	resp, err := g.llm.Complete(ctx, llm.ChatRequest{
		Purpose:     llm.PurposeGenerate,
		Model:       model,
		Messages:    llm.Conversation(GenerationSystemPrompt(), BuildGenerationPrompt(research, count, difficulty)),
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		return nil, &GenerationError{Op: "generate batch", Err: err}
	}
	content, err := llm.FirstContent(resp)
	if err != nil {
		return nil, &GenerationError{Op: "generate batch", Err: err}
	}
	batch, err := llm.Decode[rawBatch](content, questionBatchSchema)
	if err != nil {
		return nil, &GenerationError{Op: "parse question batch", Err: err}
	}

	raws := make([]rawQuestion, 0, len(batch.Questions))
	for _, r := range batch.Questions {
		raws = append(raws, r.normalized())
	}
	if len(raws) > count {
		g.log.Debug("model returned extra questions", "requested", count, "returned", len(raws))
		raws = raws[:count]
	}
	warnBatchQuality(g.log, raws)

	now := g.now().UTC()
	out := make([]models.GeneratedQuestion, 0, len(raws))
	for _, r := range raws {
		out = append(out, models.GeneratedQuestion{
			ID:            uuid.NewString(),
			Question:      r.Question,
			Options:       r.Options,
			CorrectAnswer: r.CorrectAnswer,
			Explanation:   r.Explanation,
			Difficulty:    difficulty,
			ObjectiveID:   research.ObjectiveID,
			Metadata: models.QuestionMetadata{
				GeneratedAt:   now,
				ModelID:       model,
				ResearchBased: true,
			},
		})
	}
	metrics.QuestionsGenerated.WithLabelValues(string(difficulty)).Add(float64(len(out)))
	return out, nil
}

func (g *Generator) GenerateSingle(ctx context.Context, research *models.ResearchResult, difficulty models.Difficulty, modelID string) (*models.GeneratedQuestion, error) {
	qs, err := g.GenerateBatch(ctx, research, 1, difficulty, modelID)
	if err != nil {
		return nil, err
	}
	return &qs[0], nil
}

// GenerateWithRetry calls GenerateBatch up to MaxRetries times, waiting
// BackoffBase * 2^attempt between attempts (attempt counts from 1).
func (g *Generator) GenerateWithRetry(ctx context.Context, research *models.ResearchResult, count int, difficulty models.Difficulty, modelID string) ([]models.GeneratedQuestion, error) {
	var objectiveID string
	if research != nil {
		objectiveID = research.ObjectiveID
	}

	var lastErr error
	for attempt := 1; attempt <= g.opts.MaxRetries; attempt++ {
		qs, err := g.GenerateBatch(ctx, research, count, difficulty, modelID)
		if err == nil {
			return qs, nil
		}
		lastErr = err
		g.log.Warn("generation attempt failed",
			"attempt", attempt,
			"max_retries", g.opts.MaxRetries,
			"objective_id", objectiveID,
			"error", err,
		)

		if attempt == g.opts.MaxRetries {
			break
		}
		delay := g.opts.BackoffBase * time.Duration(1<<uint(attempt))
		if err := sleep(ctx, delay); err != nil {
			return nil, &ExhaustedError{Attempts: attempt, Err: err}
		}
	}
	return nil, &ExhaustedError{Attempts: g.opts.MaxRetries, Err: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
