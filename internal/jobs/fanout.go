package jobs

import "github.com/certforge/backend/internal/models"

// MixedSplit divides n questions across easy, medium and hard. The first
// two groups take ceil(n/3) each, clamped so no group goes negative; hard
// takes the remainder. The three always sum to n.
func MixedSplit(n int) (easy, medium, hard int) {
	if n <= 0 {
		return 0, 0, 0
	}
	c := (n + 2) / 3
	easy = min(c, n)
	medium = min(c, n-easy)
	hard = n - easy - medium
	return easy, medium, hard
}

// PlanFanOut returns one difficulty per question to generate.
func PlanFanOut(n int, difficulty models.Difficulty) []models.Difficulty {
	if n <= 0 {
		return nil
	}
	plan := make([]models.Difficulty, 0, n)
	if difficulty != models.DifficultyMixed {
		for i := 0; i < n; i++ {
			plan = append(plan, difficulty)
		}
		return plan
	}

	easy, medium, hard := MixedSplit(n)
	for _, g := range []struct {
		d models.Difficulty
		n int
	}{
		{models.DifficultyEasy, easy},
		{models.DifficultyMedium, medium},
		{models.DifficultyHard, hard},
	} {
		for i := 0; i < g.n; i++ {
			plan = append(plan, g.d)
		}
	}
	return plan
}
