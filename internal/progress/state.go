package progress

import (
	"math"
	"time"

	"github.com/certforge/backend/internal/models"
)

func newState(p InitParams, now time.Time) *models.ProgressState {
	return &models.ProgressState{
		JobID:                   p.JobID,
		ExamID:                  p.ExamID,
		UserID:                  p.UserID,
		Status:                  models.JobQueued,
		TotalObjectives:         p.TotalObjectives,
		TotalQuestionsRequested: p.TotalQuestionsRequested,
		ProcessedObjectiveIDs:   []string{},
		ValidQuestions:          []models.GeneratedQuestion{},
		InvalidQuestions:        []models.InvalidQuestion{},
		Errors:                  []string{},
		StartedAt:               now,
	}
}

func finish(s *models.ProgressState, status models.JobStatus, now time.Time) {
	s.Status = status
	s.CompletedAt = &now
	s.Metrics.TotalTimeMs = now.Sub(s.StartedAt).Milliseconds()
}

// applyUpdates applies us in order, then completes the job the first time
// every objective has been processed.
func applyUpdates(s *models.ProgressState, now time.Time, us ...Update) {
	for _, u := range us {
		u.apply(s)
	}
	if !s.Status.Terminal() && s.ProcessedObjectives >= s.TotalObjectives {
		finish(s, models.JobCompleted, now)
	}
}

func addValid(s *models.ProgressState, q models.GeneratedQuestion) {
	s.ValidQuestions = append(s.ValidQuestions, q)
	s.QuestionsValidated++
	s.QuestionsSaved++
}

func addInvalid(s *models.ProgressState, q models.GeneratedQuestion, v models.ValidationResult) {
	s.InvalidQuestions = append(s.InvalidQuestions, models.InvalidQuestion{Question: q, Validation: v})
	s.QuestionsValidated++
}

// addError records msg and fails a non-terminal job once the error count
// exceeds threshold.
func addError(s *models.ProgressState, msg string, threshold int, now time.Time) {
	s.Errors = append(s.Errors, msg)
	if !s.Status.Terminal() && len(s.Errors) > threshold {
		finish(s, models.JobFailed, now)
	}
}

// CompletionPercentage is round(saved/requested*100), or 0 when nothing
// was requested. It can exceed 100.
func CompletionPercentage(s *models.ProgressState) int {
	if s.TotalQuestionsRequested <= 0 {
		return 0
	}
	return int(math.Round(float64(s.QuestionsSaved) / float64(s.TotalQuestionsRequested) * 100))
}
