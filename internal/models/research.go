package models

import "time"

type DifficultyGuidelines struct {
	Easy   string `json:"easy"`
	Medium string `json:"medium"`
	Hard   string `json:"hard"`
}

// ResearchResult is the research brief for one objective. It is cached
// as-is and never mutated after creation.
type ResearchResult struct {
	ObjectiveID           string               `json:"objective_id"`
	Title                 string               `json:"title"`
	Description           string               `json:"description"`
	ExamContext           string               `json:"exam_context"`
	KeyTopics             []string             `json:"key_topics"`
	PracticalApplications []string             `json:"practical_applications"`
	CommonMisconceptions  []string             `json:"common_misconceptions"`
	DifficultyGuidelines  DifficultyGuidelines `json:"difficulty_guidelines"`
	GeneratedAt           time.Time            `json:"generated_at"`
}

// Guideline returns the guidance text for a concrete difficulty.
func (r *ResearchResult) Guideline(d Difficulty) string {
	switch d {
	case DifficultyEasy:
		return r.DifficultyGuidelines.Easy
	case DifficultyMedium:
		return r.DifficultyGuidelines.Medium
	case DifficultyHard:
		return r.DifficultyGuidelines.Hard
	default:
		return ""
	}
}

// ── Catalog ────────────────────────────────────────────

type Exam struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Vendor      string `json:"vendor"`
	Description string `json:"description"`
}

type Objective struct {
	ID          string `json:"id"`
	ExamID      string `json:"exam_id"`
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
}
