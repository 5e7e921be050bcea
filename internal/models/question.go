package models

import (
	"strings"
	"time"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyMixed  Difficulty = "mixed"
)

// ConcreteDifficulties are the difficulties a single question can carry.
var ConcreteDifficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

var ValidDifficulties = map[Difficulty]bool{
	DifficultyEasy:   true,
	DifficultyMedium: true,
	DifficultyHard:   true,
	DifficultyMixed:  true,
}

// IsConcrete reports whether d is easy, medium or hard.
func (d Difficulty) IsConcrete() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// OptionLabels are the answer letters, in order.
var OptionLabels = []string{"A", "B", "C", "D"}

// ── Core Structs ───────────────────────────────────────

type QuestionMetadata struct {
	GeneratedAt   time.Time  `json:"generated_at"`
	ModelID       string     `json:"model_id"`
	ResearchBased bool       `json:"research_based"`
	WasFixed      bool       `json:"was_fixed"`
	FixedAt       *time.Time `json:"fixed_at,omitempty"`
	OriginalID    string     `json:"original_id,omitempty"`
}

// GeneratedQuestion is a candidate question as produced by the generator.
// Options carry their letter label ("A) ...").
type GeneratedQuestion struct {
	ID            string           `json:"id"`
	Question      string           `json:"question"`
	Options       []string         `json:"options"`
	CorrectAnswer string           `json:"correct_answer"`
	Explanation   string           `json:"explanation"`
	Difficulty    Difficulty       `json:"difficulty"`
	ObjectiveID   string           `json:"objective_id"`
	Metadata      QuestionMetadata `json:"metadata"`
}

// Clone returns a deep copy of q.
func (q GeneratedQuestion) Clone() GeneratedQuestion {
	out := q
	out.Options = append([]string(nil), q.Options...)
	if q.Metadata.FixedAt != nil {
		t := *q.Metadata.FixedAt
		out.Metadata.FixedAt = &t
	}
	return out
}

type ValidationResult struct {
	QuestionID    string             `json:"question_id"`
	IsValid       bool               `json:"is_valid"`
	Issues        []string           `json:"issues"`
	Suggestions   []string           `json:"suggestions"`
	FixedQuestion *GeneratedQuestion `json:"fixed_question,omitempty"`
	Score         int                `json:"score"`
}

// StoredChoice is an answer choice as written to long-term storage,
// with its letter label split off the text.
type StoredChoice struct {
	ChoiceID   string `json:"choice_id"`
	ChoiceText string `json:"choice_text"`
	IsCorrect  bool   `json:"is_correct"`
}

// SplitOptionLabel strips a leading "A) " style label from an option.
// It returns the label ("" when absent) and the remaining text.
func SplitOptionLabel(option string) (string, string) {
	s := strings.TrimSpace(option)
	if len(s) >= 2 && s[1] == ')' {
		label := strings.ToUpper(s[:1])
		for _, l := range OptionLabels {
			if l == label {
				return label, strings.TrimSpace(s[2:])
			}
		}
	}
	return "", s
}

// StoredChoices converts a question's options into storage rows.
func (q GeneratedQuestion) StoredChoices() []StoredChoice {
	choices := make([]StoredChoice, 0, len(q.Options))
	for i, opt := range q.Options {
		label, text := SplitOptionLabel(opt)
		if label == "" && i < len(OptionLabels) {
			label = OptionLabels[i]
		}
		choices = append(choices, StoredChoice{
			ChoiceID:   label,
			ChoiceText: text,
			IsCorrect:  label == strings.ToUpper(strings.TrimSpace(q.CorrectAnswer)),
		})
	}
	return choices
}
