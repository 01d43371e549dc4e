package grading

import (
	"fmt"
	"time"
)

type EnrollmentStatus string

const (
	EnrollmentEnrolled   EnrollmentStatus = "enrolled"
	EnrollmentInProgress EnrollmentStatus = "in_progress"
	EnrollmentPassed     EnrollmentStatus = "passed"
	EnrollmentFailed     EnrollmentStatus = "failed"
)

type MasteryCriteria struct {
	Required      bool `json:"required" yaml:"required"`
	MinPercentage int  `json:"min_percentage" yaml:"min_percentage"`
}

type CompletionCriteria struct {
	AllAssignmentsRequired bool `json:"all_assignments_required" yaml:"all_assignments_required"`
}

// Criteria is the approval configuration embedded in a section.
type Criteria struct {
	Mastery    MasteryCriteria    `json:"mastery" yaml:"mastery"`
	Completion CompletionCriteria `json:"completion" yaml:"completion"`
}

func (c Criteria) Validate() error {
	if c.Mastery.MinPercentage < 0 || c.Mastery.MinPercentage > 100 {
		return fmt.Errorf("mastery.min_percentage must be in [0,100], got %d", c.Mastery.MinPercentage)
	}
	return nil
}

type Section struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	InstructorID string   `json:"instructor_id"`
	Criteria     Criteria `json:"criteria"`
}

type Enrollment struct {
	SectionID string           `json:"section_id"`
	Student   string           `json:"student"`
	Status    EnrollmentStatus `json:"status"`
	Reason    string           `json:"reason,omitempty"`
	GradedAt  *time.Time       `json:"graded_at,omitempty"`
}

// Actor is whoever invokes grading.
type Actor struct {
	ID   string
	Role string
}

const RoleAdmin = "admin"

// Check is one pillar's outcome for one student.
type Check struct {
	Pillar         string `json:"pillar"`
	SatisfiedCount int    `json:"satisfied_count"`
	TotalCount     int    `json:"total_count"`
	IsMet          bool   `json:"is_met"`
	Reason         string `json:"reason,omitempty"`
}

type StudentPreview struct {
	Student   string  `json:"student"`
	Checks    []Check `json:"checks"`
	WouldPass bool    `json:"would_pass"`
	Error     string  `json:"error,omitempty"`
}

type ResultStatus string

const (
	ResultPassed ResultStatus = "passed"
	ResultFailed ResultStatus = "failed"
	ResultError  ResultStatus = "error"
)

type Result struct {
	Student string       `json:"student"`
	Status  ResultStatus `json:"status"`
	Reason  string       `json:"reason,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type Summary struct {
	SectionID string `json:"section_id"`
	Total     int    `json:"total"`
	Passed    int    `json:"passed"`
	Failed    int    `json:"failed"`
	Errored   int    `json:"errored"`
}

type ProcessResult struct {
	Summary Summary  `json:"summary"`
	Results []Result `json:"results"`
}
