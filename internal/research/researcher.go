// Package research produces and caches per-objective research briefs.
package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/certforge/backend/internal/catalog"
	"github.com/certforge/backend/internal/generator"
	"github.com/certforge/backend/internal/llm"
	"github.com/certforge/backend/internal/logger"
	"github.com/certforge/backend/internal/metrics"
	"github.com/certforge/backend/internal/models"
)

var briefSchema = llm.NewSchema("research-brief", map[string]any{
	"type":     "object",
	"required": []string{"key_topics", "practical_applications", "common_misconceptions", "difficulty_guidelines"},
	"properties": map[string]any{
		"key_topics":             stringArray(),
		"practical_applications": stringArray(),
		"common_misconceptions":  stringArray(),
		"difficulty_guidelines": map[string]any{
			"type":     "object",
			"required": []string{"easy", "medium", "hard"},
			"properties": map[string]any{
				"easy":   map[string]any{"type": "string"},
				"medium": map[string]any{"type": "string"},
				"hard":   map[string]any{"type": "string"},
			},
		},
	},
})

func stringArray() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

type brief struct {
	KeyTopics             []string                    `json:"key_topics"`
	PracticalApplications []string                    `json:"practical_applications"`
	CommonMisconceptions  []string                    `json:"common_misconceptions"`
	DifficultyGuidelines  models.DifficultyGuidelines `json:"difficulty_guidelines"`
}

type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Researcher is a read-through cache in front of an LLM research call.
type Researcher struct {
	catalog catalog.Reader
	cache   Cache
	llm     llm.Client
	opts    Options
	log     *logger.Logger
	now     func() time.Time
}

func NewResearcher(cat catalog.Reader, cache Cache, client llm.Client, opts Options, log *logger.Logger) *Researcher {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2048
	}
	return &Researcher{
		catalog: cat,
		cache:   cache,
		llm:     client,
		opts:    opts,
		log:     log.With("component", "Researcher"),
		now:     time.Now,
	}
}

// GetResearch returns the cached brief for objectiveID or builds one.
// Unknown objectives or exams yield catalog.ErrNotFound; LLM and parse
// failures yield *generator.GenerationError.
func (r *Researcher) GetResearch(ctx context.Context, objectiveID string) (*models.ResearchResult, error) {
	cached, ok, err := r.cache.Get(ctx, objectiveID)
	switch {
	case err != nil:
		// A broken cache degrades to regenerating, never to failing the job.
		r.log.Warn("research cache read failed", "objective_id", objectiveID, "error", err)
	case ok:
		metrics.ResearchLookups.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.ResearchLookups.WithLabelValues("miss").Inc()

	objective, err := r.catalog.GetObjective(ctx, objectiveID)
	if err != nil {
		return nil, fmt.Errorf("load objective: %w", err)
	}
	exam, err := r.catalog.GetExam(ctx, objective.ExamID)
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}

	resp, err := r.llm.Complete(ctx, llm.ChatRequest{
		Purpose:     llm.PurposeResearch,
		Model:       r.opts.Model,
		Messages:    llm.Conversation(researchSystemPrompt, buildResearchPrompt(exam, objective)),
		Temperature: r.opts.Temperature,
		MaxTokens:   r.opts.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		return nil, &generator.GenerationError{Op: "research", Err: err}
	}
	content, err := llm.FirstContent(resp)
	if err != nil {
		return nil, &generator.GenerationError{Op: "research", Err: err}
	}
	b, err := llm.Decode[brief](content, briefSchema)
	if err != nil {
		return nil, &generator.GenerationError{Op: "parse research", Err: err}
	}

	result := &models.ResearchResult{
		ObjectiveID:           objective.ID,
		Title:                 objective.Title,
		Description:           objective.Description,
		ExamContext:           examContext(exam),
		KeyTopics:             b.KeyTopics,
		PracticalApplications: b.PracticalApplications,
		CommonMisconceptions:  b.CommonMisconceptions,
		DifficultyGuidelines:  b.DifficultyGuidelines,
		GeneratedAt:           r.now().UTC(),
	}

	if err := r.cache.Set(ctx, result); err != nil {
		r.log.Warn("research cache write failed", "objective_id", objectiveID, "error", err)
	}
	r.log.Info("research generated", "objective_id", objectiveID, "topics", len(result.KeyTopics))
	return result, nil
}

func examContext(exam *models.Exam) string {
	parts := make([]string, 0, 2)
	if exam.Vendor != "" {
		parts = append(parts, exam.Vendor)
	}
	parts = append(parts, exam.Name)
	ctx := strings.Join(parts, " ")
	if exam.Code != "" {
		ctx += fmt.Sprintf(" (%s)", exam.Code)
	}
	return ctx
}

const researchSystemPrompt = `You are a certification exam subject-matter expert. You prepare concise research briefs that question writers use to write accurate, practical exam questions. Respond with valid JSON only.`

func buildResearchPrompt(exam *models.Exam, objective *models.Objective) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Exam: %s\n", examContext(exam)))
	if exam.Description != "" {
		sb.WriteString(fmt.Sprintf("Exam description: %s\n", exam.Description))
	}
	sb.WriteString(fmt.Sprintf("Objective %s: %s\n", objective.Code, objective.Title))
	if objective.Description != "" {
		sb.WriteString(fmt.Sprintf("Objective description: %s\n", objective.Description))
	}

	sb.WriteString(`
Research this objective as it is tested on the exam. Respond with this exact JSON structure:
{
  "key_topics": ["5-10 concepts a candidate must know"],
  "practical_applications": ["3-5 real-world scenarios where the objective applies"],
  "common_misconceptions": ["3-5 mistakes candidates commonly make"],
  "difficulty_guidelines": {
    "easy": "What an easy question on this objective tests",
    "medium": "What a medium question on this objective tests",
    "hard": "What a hard question on this objective tests"
  }
}`)

	return sb.String()
}
