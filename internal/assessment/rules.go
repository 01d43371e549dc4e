package assessment

import "fmt"

// Rules parameterise one evaluation session. A session keeps the Rules it was
// started with, so changing the rule book never affects sessions in flight.
type Rules struct {
	MaxItems         int `json:"max_items" yaml:"max_items"`
	DifficultyLevels int `json:"difficulty_levels" yaml:"difficulty_levels"`
	MasteryThreshold int `json:"mastery_threshold" yaml:"mastery_threshold"`
	InitialMastery   int `json:"initial_mastery" yaml:"initial_mastery"`
}

// MaxDifficultyLevels bounds Rules.DifficultyLevels and item difficulty; the
// items table enforces the same range.
const MaxDifficultyLevels = 5

func DefaultRules() Rules {
	return Rules{
		MaxItems:         10,
		DifficultyLevels: 5,
		MasteryThreshold: 95,
		InitialMastery:   25,
	}
}

func (r Rules) Validate() error {
	switch {
	case r.MaxItems < 1:
		return fmt.Errorf("max_items must be >= 1, got %d", r.MaxItems)
	case r.DifficultyLevels < 1 || r.DifficultyLevels > MaxDifficultyLevels:
		return fmt.Errorf("difficulty_levels must be in [1,%d], got %d", MaxDifficultyLevels, r.DifficultyLevels)
	case r.MasteryThreshold < 0 || r.MasteryThreshold > MaxMastery:
		return fmt.Errorf("mastery_threshold must be in [0,%d], got %d", MaxMastery, r.MasteryThreshold)
	case r.InitialMastery < 0 || r.InitialMastery > MaxMastery:
		return fmt.Errorf("initial_mastery must be in [0,%d], got %d", MaxMastery, r.InitialMastery)
	}
	return nil
}
