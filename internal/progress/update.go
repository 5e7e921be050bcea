package progress

import (
	"slices"
	"time"

	"github.com/certforge/backend/internal/models"
)

// Update is one named partial change to a job's state. Updates are applied
// inside the job's serialized section, so increments never race.
type Update interface {
	apply(s *models.ProgressState)
}

// SetStatus moves a non-terminal job to Status. Terminal jobs ignore it.
type SetStatus struct {
	Status models.JobStatus
}

func (u SetStatus) apply(s *models.ProgressState) {
	if s.Status.Terminal() || u.Status.Terminal() {
		return
	}
	s.Status = u.Status
}

// ObjectiveProcessed counts an objective once, however often its message
// is redelivered.
type ObjectiveProcessed struct {
	ObjectiveID string
}

func (u ObjectiveProcessed) apply(s *models.ProgressState) {
	if s.ProcessedObjectives >= s.TotalObjectives {
		return
	}
	if u.ObjectiveID != "" {
		if slices.Contains(s.ProcessedObjectiveIDs, u.ObjectiveID) {
			return
		}
		s.ProcessedObjectiveIDs = append(s.ProcessedObjectiveIDs, u.ObjectiveID)
	}
	s.ProcessedObjectives++
}

type QuestionsGenerated struct {
	N int
}

func (u QuestionsGenerated) apply(s *models.ProgressState) {
	s.QuestionsGenerated += u.N
}

type GenerationTime struct {
	D time.Duration
}

func (u GenerationTime) apply(s *models.ProgressState) {
	s.Metrics.GenerationTimeMs += u.D.Milliseconds()
}

type ValidationTime struct {
	D time.Duration
}

func (u ValidationTime) apply(s *models.ProgressState) {
	s.Metrics.ValidationTimeMs += u.D.Milliseconds()
}

// Cost adds an LLM spend estimate in USD.
type Cost struct {
	USD float64
}

func (u Cost) apply(s *models.ProgressState) {
	s.Metrics.CostEstimate += u.USD
}
