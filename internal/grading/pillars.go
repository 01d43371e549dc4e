package grading

import (
	"context"
	"fmt"

	"github.com/mind-engage/mindengage-mastery/internal/apperr"
)

const (
	PillarMastery    = "mastery"
	PillarCompletion = "completion"
)

// sectionFacts is loaded once per batch and shared by every student task.
type sectionFacts struct {
	Section     Section
	Modules     []string
	Assignments int
}

// Pillar evaluates one approval criterion for one student.
type Pillar interface {
	Name() string
	Applies(c Criteria) bool
	// Evaluate returns the check. With stopEarly the pillar may return as
	// soon as the outcome is known; counts are then partial.
	Evaluate(ctx context.Context, f *sectionFacts, student string, stopEarly bool) (Check, error)
}

type masteryPillar struct {
	mastery MasteryReader
}

func (masteryPillar) Name() string { return PillarMastery }

func (masteryPillar) Applies(c Criteria) bool { return c.Mastery.Required }

// Evaluate requires a mastery record at or above the minimum for every
// published module. A missing record fails the module.
func (p masteryPillar) Evaluate(ctx context.Context, f *sectionFacts, student string, stopEarly bool) (Check, error) {
	required := f.Section.Criteria.Mastery.MinPercentage
	chk := Check{Pillar: PillarMastery, TotalCount: len(f.Modules)}
	for _, module := range f.Modules {
		rec, err := p.mastery.GetMastery(ctx, student, module)
		switch {
		case apperr.KindOf(err) == apperr.KindNotFound:
			if chk.Reason == "" {
				chk.Reason = fmt.Sprintf("no mastery recorded for module %s (required %d%%)", module, required)
			}
		case err != nil:
			return Check{}, fmt.Errorf("mastery %s: %w", module, err)
		case rec.HighestMasteryScore >= required:
			chk.SatisfiedCount++
			continue
		default:
			if chk.Reason == "" {
				chk.Reason = fmt.Sprintf("mastery for module %s is %d%%, required %d%%", module, rec.HighestMasteryScore, required)
			}
		}
		if stopEarly {
			return chk, nil
		}
	}
	chk.IsMet = chk.SatisfiedCount == chk.TotalCount
	return chk, nil
}

type completionPillar struct {
	store Store
}

func (completionPillar) Name() string { return PillarCompletion }

func (completionPillar) Applies(c Criteria) bool { return c.Completion.AllAssignmentsRequired }

func (p completionPillar) Evaluate(ctx context.Context, f *sectionFacts, student string, _ bool) (Check, error) {
	n, err := p.store.CountSubmittedAssignments(ctx, f.Section.ID, student)
	if err != nil {
		return Check{}, fmt.Errorf("submissions: %w", err)
	}
	chk := Check{
		Pillar:         PillarCompletion,
		SatisfiedCount: n,
		TotalCount:     f.Assignments,
		IsMet:          n == f.Assignments,
	}
	if !chk.IsMet {
		chk.Reason = fmt.Sprintf("submitted %d of %d assignments", n, f.Assignments)
	}
	return chk, nil
}
