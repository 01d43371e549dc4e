// Package seed loads YAML fixtures (item banks, sections, enrollments,
// submissions and prior mastery) into the database.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mind-engage/mindengage-mastery/internal/assessment"
	"github.com/mind-engage/mindengage-mastery/internal/grading"
)

type Fixtures struct {
	Items    []assessment.Item `yaml:"items"`
	Sections []SectionFixture  `yaml:"sections"`
	Mastery  []MasteryFixture  `yaml:"mastery"`
}

type SectionFixture struct {
	ID           string              `yaml:"id"`
	Title        string              `yaml:"title"`
	InstructorID string              `yaml:"instructor"`
	Criteria     grading.Criteria    `yaml:"criteria"`
	Modules      []string            `yaml:"modules"`
	Assignments  []string            `yaml:"assignments"`
	Students     []string            `yaml:"students"`
	Submissions  map[string][]string `yaml:"submissions"` // student -> assignment ids
}

type MasteryFixture struct {
	Student string `yaml:"student"`
	Module  string `yaml:"module"`
	Score   int    `yaml:"score"`
}

type Counts struct {
	Items       int
	Sections    int
	Enrollments int
	Submissions int
	Mastery     int
}

func Parse(r io.Reader) (Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return Fixtures{}, fmt.Errorf("seed: decode: %w", err)
	}
	for _, it := range f.Items {
		if err := it.Validate(); err != nil {
			return Fixtures{}, fmt.Errorf("seed: %w", err)
		}
	}
	for _, s := range f.Sections {
		if s.ID == "" {
			return Fixtures{}, fmt.Errorf("seed: section without id")
		}
		if err := s.Criteria.Validate(); err != nil {
			return Fixtures{}, fmt.Errorf("seed: section %s: %w", s.ID, err)
		}
	}
	return f, nil
}

// Apply writes the fixtures. Every write is an upsert, so applying the same
// file twice is harmless.
func Apply(ctx context.Context, h *sql.DB, f Fixtures, now time.Time) (Counts, error) {
	items := assessment.NewSQLStore(h)
	sections := grading.NewSQLStore(h)
	var c Counts

	for _, it := range f.Items {
		if err := items.PutItem(ctx, it); err != nil {
			return c, fmt.Errorf("item %s: %w", it.ID, err)
		}
		c.Items++
	}
	for _, s := range f.Sections {
		sec := grading.Section{ID: s.ID, Title: s.Title, InstructorID: s.InstructorID, Criteria: s.Criteria}
		if err := sections.PutSection(ctx, sec); err != nil {
			return c, fmt.Errorf("section %s: %w", s.ID, err)
		}
		c.Sections++
		for i, m := range s.Modules {
			if err := sections.PublishModule(ctx, s.ID, m, i); err != nil {
				return c, fmt.Errorf("section %s module %s: %w", s.ID, m, err)
			}
		}
		for _, a := range s.Assignments {
			if err := sections.PutAssignment(ctx, s.ID, a, a); err != nil {
				return c, fmt.Errorf("section %s assignment %s: %w", s.ID, a, err)
			}
		}
		for _, st := range s.Students {
			if err := sections.Enroll(ctx, s.ID, st); err != nil {
				return c, fmt.Errorf("section %s enroll %s: %w", s.ID, st, err)
			}
			c.Enrollments++
		}
		for st, as := range s.Submissions {
			for _, a := range as {
				if err := sections.PutSubmission(ctx, st+":"+a, a, st, now); err != nil {
					return c, fmt.Errorf("submission %s/%s: %w", st, a, err)
				}
				c.Submissions++
			}
		}
	}
	for _, m := range f.Mastery {
		rec := assessment.MasteryRecord{Student: m.Student, Module: m.Module, HighestMasteryScore: m.Score, UpdatedAt: now}
		if err := items.PutMastery(ctx, rec); err != nil {
			return c, fmt.Errorf("mastery %s/%s: %w", m.Student, m.Module, err)
		}
		c.Mastery++
	}
	return c, nil
}
