package grading

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-mastery/internal/assessment"
)

// Store is the section side of grading: configuration, roster and
// submission facts, plus the outcome write.
type Store interface {
	GetSection(ctx context.Context, id string) (Section, error)
	// PublishedModules lists the modules published into the section in
	// display order.
	PublishedModules(ctx context.Context, sectionID string) ([]string, error)
	CountAssignments(ctx context.Context, sectionID string) (int, error)
	ListEnrollments(ctx context.Context, sectionID string) ([]Enrollment, error)
	// CountSubmittedAssignments counts distinct assignments of the section
	// the student has submitted at least once.
	CountSubmittedAssignments(ctx context.Context, sectionID, student string) (int, error)
	SetEnrollmentOutcome(ctx context.Context, sectionID, student string, status EnrollmentStatus, reason string, at time.Time) error
}

// MasteryReader is satisfied by assessment.SQLStore and assessment.MemoryStore.
type MasteryReader interface {
	GetMastery(ctx context.Context, student, module string) (assessment.MasteryRecord, error)
}
