// Package questions is the caller-facing side of the pipeline: job
// submission, status, and persistence of accepted questions.
package questions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/certforge/backend/internal/catalog"
	"github.com/certforge/backend/internal/logger"
	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/internal/progress"
)

var (
	ErrNoObjectives     = errors.New("no objectives to generate questions for")
	ErrNoValidQuestions = errors.New("no valid questions to save")
	ErrInvalidRequest   = errors.New("invalid request")
)

// MaxTotalCount bounds a single generation request.
const MaxTotalCount = 500

type Sender interface {
	Send(ctx context.Context, msgs ...models.QueueJob) error
}

type Service struct {
	catalog  catalog.Reader
	progress *progress.Aggregator
	queue    Sender
	store    Writer
	log      *logger.Logger
	newID    func() string
}

func NewService(cat catalog.Reader, agg *progress.Aggregator, q Sender, store Writer, log *logger.Logger) *Service {
	return &Service{
		catalog:  cat,
		progress: agg,
		queue:    q,
		store:    store,
		log:      log.With("component", "QuestionService"),
		newID:    uuid.NewString,
	}
}

// Submit validates the request, initializes job progress and enqueues one
// objective message per resolved objective.
func (s *Service) Submit(ctx context.Context, req models.GenerateQuestionsRequest) (*models.GenerateQuestionsResponse, error) {
	req.ExamID = strings.TrimSpace(req.ExamID)
	if req.ExamID == "" {
		return nil, fmt.Errorf("%w: exam_id is required", ErrInvalidRequest)
	}
	if req.TotalCount < 1 || req.TotalCount > MaxTotalCount {
		return nil, fmt.Errorf("%w: total_count must be between 1 and %d", ErrInvalidRequest, MaxTotalCount)
	}
	if req.Difficulty == "" {
		req.Difficulty = models.DifficultyMixed
	}
	if !models.ValidDifficulties[req.Difficulty] {
		return nil, fmt.Errorf("%w: difficulty must be easy, medium, hard or mixed", ErrInvalidRequest)
	}

	objectives, err := s.resolveObjectives(ctx, req.ExamID, req.ObjectiveIDs)
	if err != nil {
		return nil, err
	}
	if len(objectives) == 0 {
		return nil, ErrNoObjectives
	}

	perObjective := (req.TotalCount + len(objectives) - 1) / len(objectives)
	jobID := s.newID()

	if _, err := s.progress.Init(ctx, progress.InitParams{
		JobID:                   jobID,
		ExamID:                  req.ExamID,
		UserID:                  req.UserID,
		TotalObjectives:         len(objectives),
		TotalQuestionsRequested: req.TotalCount,
	}); err != nil {
		return nil, fmt.Errorf("init progress: %w", err)
	}

	msgs := make([]models.QueueJob, 0, len(objectives))
	for _, id := range objectives {
		msgs = append(msgs, models.NewObjectiveMessage(models.ObjectiveJob{
			JobID:         jobID,
			ExamID:        req.ExamID,
			ObjectiveID:   id,
			UserID:        req.UserID,
			QuestionCount: perObjective,
			Difficulty:    req.Difficulty,
			ModelID:       req.ModelID,
		}))
	}
	if err := s.queue.Send(ctx, msgs...); err != nil {
		if _, aerr := s.progress.AddError(ctx, jobID, "enqueue objective jobs: "+err.Error()); aerr != nil {
			s.log.Warn("could not record submit error", "job_id", jobID, "error", aerr)
		}
		return nil, fmt.Errorf("enqueue objective jobs: %w", err)
	}

	s.log.Info("generation job submitted",
		"job_id", jobID,
		"exam_id", req.ExamID,
		"user_id", req.UserID,
		"objectives", len(objectives),
		"per_objective", perObjective,
		"difficulty", req.Difficulty,
	)
	return &models.GenerateQuestionsResponse{
		Success: true,
		JobID:   jobID,
		Message: fmt.Sprintf("Generating %d questions across %d objectives", req.TotalCount, len(objectives)),
	}, nil
}

// resolveObjectives returns the explicit ids after checking each belongs to
// the exam, or every objective of the exam when none are given.
func (s *Service) resolveObjectives(ctx context.Context, examID string, ids []string) ([]string, error) {
	if _, err := s.catalog.GetExam(ctx, examID); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		objectives, err := s.catalog.ListObjectives(ctx, examID)
		if err != nil {
			return nil, fmt.Errorf("list objectives: %w", err)
		}
		out := make([]string, 0, len(objectives))
		for _, o := range objectives {
			out = append(out, o.ID)
		}
		return out, nil
	}

	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		o, err := s.catalog.GetObjective(ctx, id)
		if err != nil {
			return nil, err
		}
		if o.ExamID != examID {
			return nil, fmt.Errorf("%w: objective %s does not belong to exam %s", ErrInvalidRequest, id, examID)
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

func (s *Service) Status(ctx context.Context, jobID string) (*models.JobStatusView, error) {
	return s.progress.Status(ctx, jobID)
}

func (s *Service) Questions(ctx context.Context, jobID string) (*models.QuestionsResponse, error) {
	qs, err := s.progress.ValidQuestions(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if qs == nil {
		qs = []models.GeneratedQuestion{}
	}
	return &models.QuestionsResponse{Questions: qs, Count: len(qs)}, nil
}

// Save writes the job's accepted questions to long-term storage. An empty
// exam id falls back to the job's own exam.
func (s *Service) Save(ctx context.Context, req models.SaveQuestionsRequest) (*models.SaveQuestionsResponse, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return nil, fmt.Errorf("%w: job_id is required", ErrInvalidRequest)
	}

	view, err := s.progress.Status(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if len(view.ValidQuestions) == 0 {
		return nil, ErrNoValidQuestions
	}
	examID := req.ExamID
	if examID == "" {
		examID = view.ExamID
	}

	ids, err := s.store.SaveQuestions(ctx, examID, req.JobID, view.ValidQuestions)
	if err != nil {
		return nil, fmt.Errorf("save questions: %w", err)
	}

	s.log.Info("questions saved", "job_id", req.JobID, "exam_id", examID, "count", len(ids))
	return &models.SaveQuestionsResponse{
		Success:     true,
		SavedCount:  len(ids),
		QuestionIDs: ids,
	}, nil
}
