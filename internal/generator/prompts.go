package generator

import (
	"fmt"
	"strings"

	"github.com/certforge/backend/internal/models"
)

var difficultyCalibration = map[models.Difficulty]string{
	models.DifficultyEasy:   "Recall and recognition. One clearly correct answer and distractors a prepared candidate rules out quickly.",
	models.DifficultyMedium: "Application of concepts to a short scenario. At least two plausible distractors.",
	models.DifficultyHard:   "Multi-step analysis or troubleshooting of a realistic scenario. Every distractor is plausible to a partially prepared candidate.",
}

func GenerationSystemPrompt() string {
	return `You are an expert certification exam item writer. You write multiple-choice questions that test real understanding of an exam objective, not trivia.

QUESTION RULES:
- Each question is self-contained and unambiguous
- Questions are grounded in the research brief provided: its key topics, practical applications and common misconceptions
- Scenario-based questions are preferred over definitions at medium and hard difficulty

ANSWER OPTIONS:
- Exactly 4 options per question
- Each option starts with its letter label: "A) ", "B) ", "C) ", "D) "
- Exactly ONE correct answer, given as a single letter A, B, C or D
- No two options may say the same thing
- Distractors should reflect the common misconceptions where possible
- Vary the position of the correct answer across questions

EXPLANATIONS:
- The explanation must TEACH: say why the correct option is right and why each distractor is wrong
- At least two full sentences

You must respond with valid JSON only. No markdown, no explanation outside the JSON.`
}

// BuildGenerationPrompt embeds the research brief and the request shape.
func BuildGenerationPrompt(research *models.ResearchResult, count int, difficulty models.Difficulty) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Generate exactly %d multiple-choice questions.\n\n", count))
	sb.WriteString(fmt.Sprintf("Exam: %s\n", research.ExamContext))
	sb.WriteString(fmt.Sprintf("Objective: %s\n", research.Title))
	if research.Description != "" {
		sb.WriteString(fmt.Sprintf("Objective description: %s\n", research.Description))
	}
	sb.WriteString(fmt.Sprintf("Difficulty: %s\n", difficulty))
	if cal := difficultyCalibration[difficulty]; cal != "" {
		sb.WriteString(fmt.Sprintf("Calibration: %s\n", cal))
	}
	if g := research.Guideline(difficulty); g != "" {
		sb.WriteString(fmt.Sprintf("Guidance for this difficulty: %s\n", g))
	}

	writeList(&sb, "KEY TOPICS", research.KeyTopics)
	writeList(&sb, "PRACTICAL APPLICATIONS", research.PracticalApplications)
	writeList(&sb, "COMMON MISCONCEPTIONS", research.CommonMisconceptions)

	sb.WriteString(`
Respond with this exact JSON structure:
{
  "questions": [
    {
      "question": "...",
      "options": ["A) ...", "B) ...", "C) ...", "D) ..."],
      "correct_answer": "B",
      "explanation": "..."
    }
  ]
}`)

	return sb.String()
}

const semanticCheckSystemPrompt = `You are a senior certification exam reviewer. You check a single multiple-choice question for technical accuracy, exactly one defensible correct answer, plausible distractors, and an explanation that teaches. Respond with JSON only.`

func buildSemanticCheckPrompt(q models.GeneratedQuestion, research *models.ResearchResult) string {
	var sb strings.Builder

	if research != nil {
		sb.WriteString(fmt.Sprintf("EXAM: %s\n", research.ExamContext))
		sb.WriteString(fmt.Sprintf("OBJECTIVE: %s\n", research.Title))
		writeList(&sb, "KEY TOPICS", research.KeyTopics)
		sb.WriteString("\n")
	}

	writeQuestion(&sb, q)

	sb.WriteString(`
Review the question. Respond with JSON only:
{
  "is_valid": true,
  "issues": ["Each concrete problem, one per entry. Empty when there are none."],
  "suggestions": ["How to fix each issue."]
}`)

	return sb.String()
}

const repairSystemPrompt = `You are a certification exam item writer fixing a flawed multiple-choice question. Keep what is right, fix what the reviewer flagged, and keep exactly 4 labeled options with one correct answer. Respond with JSON only.`

func buildRepairPrompt(q models.GeneratedQuestion, issues, suggestions []string) string {
	var sb strings.Builder

	writeQuestion(&sb, q)
	writeList(&sb, "ISSUES", issues)
	writeList(&sb, "SUGGESTIONS", suggestions)

	sb.WriteString(`
Rewrite the question so that every issue is resolved. Respond with JSON only:
{
  "question": "...",
  "options": ["A) ...", "B) ...", "C) ...", "D) ..."],
  "correct_answer": "A",
  "explanation": "..."
}`)

	return sb.String()
}

func writeQuestion(sb *strings.Builder, q models.GeneratedQuestion) {
	sb.WriteString("QUESTION:\n")
	sb.WriteString(q.Question)
	sb.WriteString("\n\nOPTIONS:\n")
	for _, opt := range q.Options {
		sb.WriteString(opt)
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("\nMARKED CORRECT: %s\n", q.CorrectAnswer))
	sb.WriteString(fmt.Sprintf("EXPLANATION: %s\n", q.Explanation))
	sb.WriteString(fmt.Sprintf("DIFFICULTY: %s\n", q.Difficulty))
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("\n%s:\n", title))
	for _, it := range items {
		sb.WriteString(fmt.Sprintf("- %s\n", it))
	}
}
