package generator

import (
	"strings"

	"github.com/certforge/backend/internal/llm"
	"github.com/certforge/backend/internal/logger"
)

var questionBatchSchema = llm.NewSchema("question-batch", map[string]any{
	"type":     "object",
	"required": []string{"questions"},
	"properties": map[string]any{
		"questions": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []string{"question", "options", "correct_answer", "explanation"},
				"properties": map[string]any{
					"question":       map[string]any{"type": "string"},
					"options":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"correct_answer": map[string]any{"type": "string"},
					"explanation":    map[string]any{"type": "string"},
				},
			},
		},
	},
})

var semanticCheckSchema = llm.NewSchema("semantic-check", map[string]any{
	"type":     "object",
	"required": []string{"is_valid"},
	"properties": map[string]any{
		"is_valid":    map[string]any{"type": "boolean"},
		"issues":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"suggestions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
})

var repairSchema = llm.NewSchema("question-repair", map[string]any{
	"type": "object",
	"properties": map[string]any{
		"question":       map[string]any{"type": "string"},
		"options":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 4, "maxItems": 4},
		"correct_answer": map[string]any{"type": "string", "pattern": "^\\s*[A-Da-d]\\s*$"},
		"explanation":    map[string]any{"type": "string"},
	},
})

type rawQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

type rawBatch struct {
	Questions []rawQuestion `json:"questions"`
}

type semanticCheck struct {
	IsValid     bool     `json:"is_valid"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

func (r rawQuestion) normalized() rawQuestion {
	out := rawQuestion{
		Question:      strings.TrimSpace(r.Question),
		CorrectAnswer: strings.ToUpper(strings.TrimSpace(r.CorrectAnswer)),
		Explanation:   strings.TrimSpace(r.Explanation),
		Options:       make([]string, 0, len(r.Options)),
	}
	for _, opt := range r.Options {
		out.Options = append(out.Options, strings.TrimSpace(opt))
	}
	return out
}

func (r rawQuestion) empty() bool {
	return r.Question == "" && len(r.Options) == 0 && r.CorrectAnswer == "" && r.Explanation == ""
}

// warnBatchQuality logs batch-level smells that do not invalidate any
// single question: clustered correct answers and near-duplicate stems.
func warnBatchQuality(log *logger.Logger, questions []rawQuestion) {
	if len(questions) < 2 {
		return
	}

	counts := make(map[string]int)
	for _, q := range questions {
		counts[q.CorrectAnswer]++
	}
	for letter, n := range counts {
		if n > 2 && len(questions) >= 6 {
			log.Warn("correct answer clustered", "letter", letter, "count", n, "batch_size", len(questions))
		}
	}

	tokenSets := make([]map[string]bool, len(questions))
	for i, q := range questions {
		tokenSets[i] = tokenize(q.Question)
	}
	for i := 0; i < len(questions); i++ {
		for j := i + 1; j < len(questions); j++ {
			if overlap := jaccardSimilarity(tokenSets[i], tokenSets[j]); overlap > 0.60 {
				log.Warn("questions overlap", "first", i+1, "second", j+1, "overlap_pct", int(overlap*100))
			}
		}
	}
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(s)) {
		// Skip very short words (articles, prepositions)
		if len(word) > 3 {
			tokens[word] = true
		}
	}
	return tokens
}

func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}
