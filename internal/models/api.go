package models

// ── Request Types ─────────────────────────────────────

type GenerateQuestionsRequest struct {
	ExamID       string     `json:"exam_id"`
	ObjectiveIDs []string   `json:"objective_ids,omitempty"`
	TotalCount   int        `json:"total_count"`
	Difficulty   Difficulty `json:"difficulty,omitempty"`
	UserID       string     `json:"user_id"`
	ModelID      string     `json:"model_id,omitempty"`
}

type SaveQuestionsRequest struct {
	JobID  string `json:"job_id"`
	ExamID string `json:"exam_id"`
}

// ── Response Types ────────────────────────────────────

type GenerateQuestionsResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

type QuestionsResponse struct {
	Questions []GeneratedQuestion `json:"questions"`
	Count     int                 `json:"count"`
}

type SaveQuestionsResponse struct {
	Success     bool    `json:"success"`
	SavedCount  int     `json:"saved_count"`
	QuestionIDs []int64 `json:"question_ids"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
