package assessment

import "context"

const (
	MinMastery = 0
	MaxMastery = 100
)

// TargetDifficulty maps mastery onto a difficulty level:
// clamp(ceil(mastery*levels/100), 1, levels). With five levels that is
// clamp(ceil(mastery/20), 1, 5).
func TargetDifficulty(mastery, levels int) int {
	if levels < 1 {
		levels = 1
	}
	mastery = clamp(mastery, MinMastery, MaxMastery)
	t := (mastery*levels + MaxMastery - 1) / MaxMastery
	return clamp(t, 1, levels)
}

// ApplyAnswer returns the mastery after one answer. A correct answer adds
// twice the difficulty; an incorrect one subtracts (levels+1-difficulty).
func ApplyAnswer(mastery, difficulty, levels int, correct bool) int {
	if correct {
		mastery += difficulty * 2
	} else {
		mastery -= levels + 1 - difficulty
	}
	return clamp(mastery, MinMastery, MaxMastery)
}

// neighbours returns target-1 and target+1 restricted to [1,levels],
// hardest first.
func neighbours(target, levels int) []int {
	out := make([]int, 0, 2)
	if target+1 <= levels {
		out = append(out, target+1)
	}
	if target-1 >= 1 {
		out = append(out, target-1)
	}
	return out
}

// Selector picks the next item for a session. It never randomises: the same
// store contents, mastery and exclusions always yield the same item.
type Selector struct {
	items  ItemStore
	levels int
}

func NewSelector(items ItemStore, levels int) *Selector {
	if levels < 1 {
		levels = DefaultRules().DifficultyLevels
	}
	return &Selector{items: items, levels: levels}
}

// SelectNext returns the next item, or ok=false when the module has nothing
// left at the target difficulty or its neighbours.
func (s *Selector) SelectNext(ctx context.Context, module string, mastery int, excluded []string) (Item, bool, error) {
	target := TargetDifficulty(mastery, s.levels)
	it, ok, err := s.items.FindItem(ctx, module, []int{target}, excluded)
	if err != nil || ok {
		return it, ok, err
	}
	fallback := neighbours(target, s.levels)
	if len(fallback) == 0 {
		return Item{}, false, nil
	}
	return s.items.FindItem(ctx, module, fallback, excluded)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
