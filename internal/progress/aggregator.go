// Package progress is the per-job progress record: the single source of
// truth for a generation job's counts, results and status.
package progress

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/certforge/backend/internal/logger"
	"github.com/certforge/backend/internal/metrics"
	"github.com/certforge/backend/internal/models"
)

var ErrNotInitialized = errors.New("job progress not initialized")

// DefaultErrorThreshold is the error count a job may reach before failing.
const DefaultErrorThreshold = 10

const lockStripes = 64

type InitParams struct {
	JobID                   string
	ExamID                  string
	UserID                  string
	TotalObjectives         int
	TotalQuestionsRequested int
}

// Aggregator serializes every operation on a job: within a process by a
// striped per-job mutex, across processes by the store's atomic Mutate.
type Aggregator struct {
	store     Store
	threshold int
	log       *logger.Logger
	now       func() time.Time
	locks     [lockStripes]sync.Mutex
}

func NewAggregator(store Store, errorThreshold int, log *logger.Logger) *Aggregator {
	if errorThreshold < 1 {
		errorThreshold = DefaultErrorThreshold
	}
	return &Aggregator{
		store:     store,
		threshold: errorThreshold,
		log:       log.With("component", "ProgressAggregator"),
		now:       time.Now,
	}
}

func (a *Aggregator) lock(jobID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(jobID))
	mu := &a.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// Init creates (or overwrites) the record for a job in the queued state.
func (a *Aggregator) Init(ctx context.Context, p InitParams) (*models.ProgressState, error) {
	defer a.lock(p.JobID)()

	s := newState(p, a.now().UTC())
	if err := a.store.Put(ctx, s); err != nil {
		return nil, err
	}
	a.log.Info("job initialized",
		"job_id", p.JobID,
		"objectives", p.TotalObjectives,
		"questions_requested", p.TotalQuestionsRequested,
	)
	return s, nil
}

func (a *Aggregator) Update(ctx context.Context, jobID string, updates ...Update) (*models.ProgressState, error) {
	return a.mutate(ctx, jobID, func(s *models.ProgressState, now time.Time) {
		applyUpdates(s, now, updates...)
	})
}

func (a *Aggregator) AddValid(ctx context.Context, jobID string, q models.GeneratedQuestion) (*models.ProgressState, error) {
	return a.mutate(ctx, jobID, func(s *models.ProgressState, _ time.Time) {
		addValid(s, q)
	})
}

func (a *Aggregator) AddInvalid(ctx context.Context, jobID string, q models.GeneratedQuestion, v models.ValidationResult) (*models.ProgressState, error) {
	return a.mutate(ctx, jobID, func(s *models.ProgressState, _ time.Time) {
		addInvalid(s, q, v)
	})
}

func (a *Aggregator) AddError(ctx context.Context, jobID, msg string) (*models.ProgressState, error) {
	return a.mutate(ctx, jobID, func(s *models.ProgressState, now time.Time) {
		addError(s, msg, a.threshold, now)
	})
}

func (a *Aggregator) Status(ctx context.Context, jobID string) (*models.JobStatusView, error) {
	s, err := a.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &models.JobStatusView{
		ProgressState:        *s,
		CompletionPercentage: CompletionPercentage(s),
	}, nil
}

// ValidQuestions returns the accepted questions accumulated so far.
func (a *Aggregator) ValidQuestions(ctx context.Context, jobID string) ([]models.GeneratedQuestion, error) {
	s, err := a.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.ValidQuestions, nil
}

func (a *Aggregator) mutate(ctx context.Context, jobID string, fn func(*models.ProgressState, time.Time)) (*models.ProgressState, error) {
	defer a.lock(jobID)()

	var before models.JobStatus
	s, err := a.store.Mutate(ctx, jobID, func(s *models.ProgressState) error {
		before = s.Status
		fn(s, a.now().UTC())
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}

	if !before.Terminal() && s.Status.Terminal() {
		metrics.JobsFinished.WithLabelValues(string(s.Status)).Inc()
		a.log.Info("job finished",
			"job_id", jobID,
			"status", s.Status,
			"questions_saved", s.QuestionsSaved,
			"errors", len(s.Errors),
			"total_time_ms", s.Metrics.TotalTimeMs,
		)
	}
	return s, nil
}
