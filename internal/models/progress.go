package models

import "time"

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further status transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ProgressMetrics durations are in milliseconds; CostEstimate is USD.
type ProgressMetrics struct {
	GenerationTimeMs int64   `json:"generation_time_ms"`
	ValidationTimeMs int64   `json:"validation_time_ms"`
	TotalTimeMs      int64   `json:"total_time_ms"`
	CostEstimate     float64 `json:"cost_estimate"`
}

type InvalidQuestion struct {
	Question   GeneratedQuestion `json:"question"`
	Validation ValidationResult  `json:"validation"`
}

// ProgressState is the authoritative record for one generation job.
type ProgressState struct {
	JobID                   string              `json:"job_id"`
	ExamID                  string              `json:"exam_id"`
	UserID                  string              `json:"user_id"`
	Status                  JobStatus           `json:"status"`
	TotalObjectives         int                 `json:"total_objectives"`
	ProcessedObjectives     int                 `json:"processed_objectives"`
	ProcessedObjectiveIDs   []string            `json:"processed_objective_ids,omitempty"`
	TotalQuestionsRequested int                 `json:"total_questions_requested"`
	QuestionsGenerated      int                 `json:"questions_generated"`
	QuestionsValidated      int                 `json:"questions_validated"`
	QuestionsSaved          int                 `json:"questions_saved"`
	ValidQuestions          []GeneratedQuestion `json:"valid_questions"`
	InvalidQuestions        []InvalidQuestion   `json:"invalid_questions"`
	Errors                  []string            `json:"errors"`
	StartedAt               time.Time           `json:"started_at"`
	CompletedAt             *time.Time          `json:"completed_at,omitempty"`
	Metrics                 ProgressMetrics     `json:"metrics"`
}

// JobStatusView is the status payload: stored state plus derived fields.
type JobStatusView struct {
	ProgressState
	CompletionPercentage int `json:"completion_percentage"`
}
