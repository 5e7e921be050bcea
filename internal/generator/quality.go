package generator

import (
	"fmt"
	"strings"

	"github.com/certforge/backend/internal/models"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Issue is one finding of the automated structural checks.
type Issue struct {
	Severity Severity
	Message  string
}

const (
	minQuestionLen    = 10
	maxQuestionLen    = 500
	minOptionLen      = 2
	minExplanationLen = 20
)

// CheckStructure runs the deterministic checks on q. It makes no network
// calls.
func CheckStructure(q models.GeneratedQuestion) []Issue {
	var issues []Issue
	critical := func(format string, args ...any) {
		issues = append(issues, Issue{SeverityCritical, fmt.Sprintf(format, args...)})
	}
	warning := func(format string, args ...any) {
		issues = append(issues, Issue{SeverityWarning, fmt.Sprintf(format, args...)})
	}

	text := strings.TrimSpace(q.Question)
	switch {
	case len(text) < minQuestionLen:
		critical("Question text is missing or too short")
	case len(text) > maxQuestionLen:
		warning("Question text is longer than %d characters", maxQuestionLen)
	}

	if len(q.Options) != len(models.OptionLabels) {
		critical("Must have exactly %d options, found %d", len(models.OptionLabels), len(q.Options))
	}
	for i, label := range models.OptionLabels {
		if i >= len(q.Options) || len(strings.TrimSpace(q.Options[i])) < minOptionLen {
			critical("Option %s is missing or too short", label)
			continue
		}
		if !strings.HasPrefix(strings.TrimSpace(q.Options[i]), label+")") {
			warning("Option %s should start with %q", label, label+")")
		}
	}

	if hasDuplicateOptions(q.Options) {
		critical("Duplicate options detected")
	}

	answer := strings.ToUpper(strings.TrimSpace(q.CorrectAnswer))
	validAnswer := false
	for _, label := range models.OptionLabels {
		if answer == label {
			validAnswer = true
			break
		}
	}
	if !validAnswer {
		critical("Correct answer must be one of A, B, C, D (got %q)", q.CorrectAnswer)
	}

	if len(strings.TrimSpace(q.Explanation)) < minExplanationLen {
		critical("Explanation is missing or too short")
	}

	if !q.Difficulty.IsConcrete() {
		warning("Difficulty should be easy, medium or hard (got %q)", q.Difficulty)
	}

	return issues
}

// hasDuplicateOptions compares option text with the letter label removed,
// ignoring case and whitespace runs.
func hasDuplicateOptions(options []string) bool {
	seen := make(map[string]bool, len(options))
	for _, opt := range options {
		_, text := models.SplitOptionLabel(opt)
		key := strings.Join(strings.Fields(strings.ToLower(text)), " ")
		if key == "" {
			continue
		}
		if seen[key] {
			return true
		}
		seen[key] = true
	}
	return false
}

func countSeverity(issues []Issue, s Severity) int {
	n := 0
	for _, is := range issues {
		if is.Severity == s {
			n++
		}
	}
	return n
}

// ComputeScore starts at 100 and subtracts 20 per critical issue, 5 per
// warning, 10 per semantic issue and 20 when the semantic check judged the
// question invalid. The result is clamped to [0,100].
func ComputeScore(critical, warnings, semanticIssues int, semanticInvalid bool) int {
	score := 100 - 20*critical - 5*warnings - 10*semanticIssues
	if semanticInvalid {
		score -= 20
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
