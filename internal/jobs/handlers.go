// Package jobs holds the queue message handlers and the worker that runs
// them.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/certforge/backend/internal/catalog"
	"github.com/certforge/backend/internal/llm"
	"github.com/certforge/backend/internal/logger"
	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/internal/progress"
)

type ResearchSource interface {
	GetResearch(ctx context.Context, objectiveID string) (*models.ResearchResult, error)
}

type Sender interface {
	Send(ctx context.Context, msgs ...models.QueueJob) error
}

type QuestionGenerator interface {
	GenerateWithRetry(ctx context.Context, research *models.ResearchResult, count int, difficulty models.Difficulty, modelID string) ([]models.GeneratedQuestion, error)
}

type QuestionValidator interface {
	Validate(ctx context.Context, q models.GeneratedQuestion, research *models.ResearchResult) (*models.ValidationResult, error)
}

// Tracker is the slice of the progress aggregator the handlers write to.
type Tracker interface {
	Update(ctx context.Context, jobID string, updates ...progress.Update) (*models.ProgressState, error)
	AddValid(ctx context.Context, jobID string, q models.GeneratedQuestion) (*models.ProgressState, error)
	AddInvalid(ctx context.Context, jobID string, q models.GeneratedQuestion, v models.ValidationResult) (*models.ProgressState, error)
	AddError(ctx context.Context, jobID, msg string) (*models.ProgressState, error)
}

// Repaired questions are accepted only above this score.
const acceptRepairedMinScore = 70

// ObjectiveHandler researches one objective and fans it out into one
// generate message per question.
type ObjectiveHandler struct {
	research ResearchSource
	queue    Sender
	progress Tracker
	log      *logger.Logger
}

func NewObjectiveHandler(research ResearchSource, q Sender, tracker Tracker, log *logger.Logger) *ObjectiveHandler {
	return &ObjectiveHandler{
		research: research,
		queue:    q,
		progress: tracker,
		log:      log.With("component", "ObjectiveHandler"),
	}
}

func (h *ObjectiveHandler) Handle(ctx context.Context, job models.ObjectiveJob) error {
	usage := &llm.UsageRecorder{}
	ctx = llm.WithUsageRecorder(ctx, usage)
	log := h.log.With("job_id", job.JobID, "objective_id", job.ObjectiveID)

	if _, err := h.progress.Update(ctx, job.JobID, progress.SetStatus{Status: models.JobProcessing}); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	if job.Difficulty != models.DifficultyMixed && !job.Difficulty.IsConcrete() {
		return h.drop(ctx, job, usage, fmt.Errorf("unsupported difficulty %q", job.Difficulty))
	}

	research, err := h.research.GetResearch(ctx, job.ObjectiveID)
	if errors.Is(err, catalog.ErrNotFound) {
		return h.drop(ctx, job, usage, fmt.Errorf("research: %w", err))
	}
	if err != nil {
		return h.fail(ctx, job, usage, fmt.Errorf("research: %w", err))
	}

	plan := PlanFanOut(job.QuestionCount, job.Difficulty)
	msgs := make([]models.QueueJob, 0, len(plan))
	for _, d := range plan {
		msgs = append(msgs, models.NewGenerateMessage(models.GenerateJob{
			JobID:       job.JobID,
			ObjectiveID: job.ObjectiveID,
			Research:    *research,
			Difficulty:  d,
			ModelID:     job.ModelID,
		}))
	}
	if len(msgs) > 0 {
		if err := h.queue.Send(ctx, msgs...); err != nil {
			return h.fail(ctx, job, usage, fmt.Errorf("enqueue generate jobs: %w", err))
		}
	}

	if _, err := h.progress.Update(ctx, job.JobID,
		progress.ObjectiveProcessed{ObjectiveID: job.ObjectiveID},
		progress.Cost{USD: usage.CostUSD()},
	); err != nil {
		return fmt.Errorf("record objective processed: %w", err)
	}

	log.Info("objective fanned out", "questions", len(msgs), "difficulty", job.Difficulty)
	return nil
}

func (h *ObjectiveHandler) fail(ctx context.Context, job models.ObjectiveJob, usage *llm.UsageRecorder, err error) error {
	h.log.Error("objective job failed", "job_id", job.JobID, "objective_id", job.ObjectiveID, "error", err)
	recordFailure(ctx, h.progress, h.log, job.JobID, fmt.Sprintf("objective %s: %v", job.ObjectiveID, err), usage)
	return err
}

// drop records a failure that redelivery cannot fix and acknowledges the
// message, so the job carries one error for it rather than one per delivery.
func (h *ObjectiveHandler) drop(ctx context.Context, job models.ObjectiveJob, usage *llm.UsageRecorder, err error) error {
	h.log.Warn("objective job dropped", "job_id", job.JobID, "objective_id", job.ObjectiveID, "error", err)
	recordFailure(ctx, h.progress, h.log, job.JobID, fmt.Sprintf("objective %s: %v", job.ObjectiveID, err), usage)
	return nil
}

// GenerateHandler generates and validates a single question and reports
// the outcome.
type GenerateHandler struct {
	generator QuestionGenerator
	validator QuestionValidator
	progress  Tracker
	log       *logger.Logger
	now       func() time.Time
}

func NewGenerateHandler(gen QuestionGenerator, val QuestionValidator, tracker Tracker, log *logger.Logger) *GenerateHandler {
	return &GenerateHandler{
		generator: gen,
		validator: val,
		progress:  tracker,
		log:       log.With("component", "GenerateHandler"),
		now:       time.Now,
	}
}

func (h *GenerateHandler) Handle(ctx context.Context, job models.GenerateJob) error {
	usage := &llm.UsageRecorder{}
	ctx = llm.WithUsageRecorder(ctx, usage)
	log := h.log.With("job_id", job.JobID, "objective_id", job.ObjectiveID, "difficulty", job.Difficulty)

	start := h.now()
	qs, err := h.generator.GenerateWithRetry(ctx, &job.Research, 1, job.Difficulty, job.ModelID)
	if err != nil {
		return h.fail(ctx, job, usage, fmt.Errorf("generate: %w", err))
	}
	q := qs[0]
	if _, err := h.progress.Update(ctx, job.JobID,
		progress.QuestionsGenerated{N: 1},
		progress.GenerationTime{D: h.now().Sub(start)},
	); err != nil {
		return h.fail(ctx, job, usage, fmt.Errorf("record generation: %w", err))
	}

	start = h.now()
	result, err := h.validator.Validate(ctx, q, &job.Research)
	if err != nil {
		return h.fail(ctx, job, usage, fmt.Errorf("validate: %w", err))
	}
	if _, err := h.progress.Update(ctx, job.JobID,
		progress.ValidationTime{D: h.now().Sub(start)},
		progress.Cost{USD: usage.CostUSD()},
	); err != nil {
		return h.fail(ctx, job, nil, fmt.Errorf("record validation: %w", err))
	}

	switch {
	case result.IsValid:
		_, err = h.progress.AddValid(ctx, job.JobID, q)
		log.Info("question accepted", "question_id", q.ID, "score", result.Score)
	case result.FixedQuestion != nil && result.Score > acceptRepairedMinScore:
		_, err = h.progress.AddValid(ctx, job.JobID, *result.FixedQuestion)
		log.Info("repaired question accepted", "question_id", result.FixedQuestion.ID, "original_id", q.ID, "score", result.Score)
	default:
		_, err = h.progress.AddInvalid(ctx, job.JobID, q, *result)
		log.Info("question rejected", "question_id", q.ID, "score", result.Score, "issues", len(result.Issues))
	}
	if err != nil {
		return h.fail(ctx, job, nil, fmt.Errorf("record outcome: %w", err))
	}
	return nil
}

func (h *GenerateHandler) fail(ctx context.Context, job models.GenerateJob, usage *llm.UsageRecorder, err error) error {
	h.log.Error("generate job failed", "job_id", job.JobID, "objective_id", job.ObjectiveID, "difficulty", job.Difficulty, "error", err)
	recordFailure(ctx, h.progress, h.log, job.JobID, fmt.Sprintf("generate %s/%s: %v", job.ObjectiveID, job.Difficulty, err), usage)
	return err
}

// recordFailure adds the error to the job and books any LLM spend already
// incurred. usage may be nil when the spend was recorded already.
func recordFailure(ctx context.Context, tracker Tracker, log *logger.Logger, jobID, msg string, usage *llm.UsageRecorder) {
	if _, err := tracker.AddError(ctx, jobID, msg); err != nil {
		log.Warn("could not record job error", "job_id", jobID, "error", err)
	}
	if usage == nil || usage.CostUSD() == 0 {
		return
	}
	if _, err := tracker.Update(ctx, jobID, progress.Cost{USD: usage.CostUSD()}); err != nil {
		log.Warn("could not record job cost", "job_id", jobID, "error", err)
	}
}
