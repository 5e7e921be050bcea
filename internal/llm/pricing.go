package llm

// ModelCost holds per-million-token pricing in USD.
type ModelCost struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

func (c ModelCost) Cost(u Usage) float64 {
	return float64(u.PromptTokens)*c.InputPerMTok/1_000_000 +
		float64(u.OutputTokens)*c.OutputPerMTok/1_000_000
}

var modelCosts = map[string]ModelCost{
	// Anthropic
	"claude-haiku-4-5":           {1, 5},
	"claude-haiku-4-5-20251001":  {1, 5},
	"claude-opus-4-5":            {5, 25},
	"claude-opus-4-5-20251101":   {5, 25},
	"claude-sonnet-4-5":          {3, 15},
	"claude-sonnet-4-5-20250929": {3, 15},

	// OpenAI
	"gpt-4o":       {2.5, 10},
	"gpt-4o-mini":  {0.15, 0.6},
	"gpt-4.1":      {2, 8},
	"gpt-4.1-mini": {0.4, 1.6},
	"gpt-5":        {1.25, 10},
	"gpt-5-mini":   {0.25, 2},
}

// EstimateCost returns the USD cost of usage on model, or 0 for unknown models.
func EstimateCost(model string, u Usage) float64 {
	c, ok := modelCosts[model]
	if !ok {
		return 0
	}
	return c.Cost(u)
}
