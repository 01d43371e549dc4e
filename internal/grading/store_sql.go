package grading

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-mastery/internal/apperr"
	"github.com/mind-engage/mindengage-mastery/internal/db"
	syncx "github.com/mind-engage/mindengage-mastery/internal/sync"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(h *sql.DB) *SQLStore {
	return &SQLStore{db: h}
}

func (s *SQLStore) GetSection(ctx context.Context, id string) (Section, error) {
	var sec Section
	var cj string
	err := s.db.QueryRowContext(ctx, `SELECT id,title,instructor_id,criteria_json FROM sections WHERE id=$1`, id).
		Scan(&sec.ID, &sec.Title, &sec.InstructorID, &cj)
	if errors.Is(err, sql.ErrNoRows) {
		return Section{}, apperr.NotFound("section %q not found", id)
	}
	if err != nil {
		return Section{}, err
	}
	if cj != "" {
		if err := json.Unmarshal([]byte(cj), &sec.Criteria); err != nil {
			return Section{}, fmt.Errorf("section %s criteria: %w", id, err)
		}
	}
	return sec, nil
}

// PutSection upserts a section and its criteria. Used by fixtures.
func (s *SQLStore) PutSection(ctx context.Context, sec Section) error {
	cj, err := json.Marshal(sec.Criteria)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO sections (id,title,instructor_id,criteria_json)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET title=excluded.title, instructor_id=excluded.instructor_id,
		  criteria_json=excluded.criteria_json`,
		sec.ID, sec.Title, sec.InstructorID, string(cj))
	return err
}

func (s *SQLStore) PublishedModules(ctx context.Context, sectionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT module_id FROM section_modules
		WHERE section_id=$1 AND published ORDER BY position, module_id`, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountAssignments(ctx context.Context, sectionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assignments WHERE section_id=$1`, sectionID).Scan(&n)
	return n, err
}

func (s *SQLStore) ListEnrollments(ctx context.Context, sectionID string) ([]Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT section_id,student_id,status,reason,graded_at
		FROM enrollments WHERE section_id=$1 ORDER BY student_id`, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Enrollment{}
	for rows.Next() {
		var en Enrollment
		var status string
		var graded sql.NullInt64
		if err := rows.Scan(&en.SectionID, &en.Student, &status, &en.Reason, &graded); err != nil {
			return nil, err
		}
		en.Status = EnrollmentStatus(status)
		if graded.Valid {
			t := time.UnixMilli(graded.Int64).UTC()
			en.GradedAt = &t
		}
		out = append(out, en)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountSubmittedAssignments(ctx context.Context, sectionID, student string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT sub.assignment_id)
		FROM submissions sub JOIN assignments a ON a.id = sub.assignment_id
		WHERE a.section_id=$1 AND sub.student_id=$2`, sectionID, student).Scan(&n)
	return n, err
}

// SetEnrollmentOutcome writes the grading outcome and its event in one transaction.
func (s *SQLStore) SetEnrollmentOutcome(ctx context.Context, sectionID, student string, status EnrollmentStatus, reason string, at time.Time) error {
	if status != EnrollmentPassed && status != EnrollmentFailed {
		return apperr.InvalidArgument("grading cannot write status %q", status)
	}
	return db.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE enrollments SET status=$1, reason=$2, graded_at=$3
			WHERE section_id=$4 AND student_id=$5`,
			string(status), reason, at.UnixMilli(), sectionID, student)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperr.NotFound("enrollment of %q in section %q not found", student, sectionID)
		}
		return syncx.Append(ctx, tx, syncx.TypeEnrollmentGraded, sectionID+"/"+student, map[string]any{
			"section": sectionID,
			"student": student,
			"status":  status,
			"reason":  reason,
		})
	})
}

// The writers below back the external collaborators' tables for fixtures and tests.

func (s *SQLStore) PublishModule(ctx context.Context, sectionID, moduleID string, position int) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO section_modules (section_id,module_id,position,published)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (section_id,module_id) DO UPDATE SET position=excluded.position, published=excluded.published`,
		sectionID, moduleID, position, true)
	return err
}

func (s *SQLStore) PutAssignment(ctx context.Context, sectionID, assignmentID, title string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO assignments (id,section_id,title) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET section_id=excluded.section_id, title=excluded.title`,
		assignmentID, sectionID, title)
	return err
}

func (s *SQLStore) PutSubmission(ctx context.Context, submissionID, assignmentID, student string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO submissions (id,assignment_id,student_id,submitted_at)
		VALUES ($1,$2,$3,$4) ON CONFLICT (id) DO NOTHING`,
		submissionID, assignmentID, student, at.UnixMilli())
	return err
}

func (s *SQLStore) Enroll(ctx context.Context, sectionID, student string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO enrollments (section_id,student_id,status)
		VALUES ($1,$2,$3) ON CONFLICT (section_id,student_id) DO NOTHING`,
		sectionID, student, string(EnrollmentEnrolled))
	return err
}

func (s *SQLStore) GetEnrollment(ctx context.Context, sectionID, student string) (Enrollment, error) {
	var en Enrollment
	var status string
	var graded sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT section_id,student_id,status,reason,graded_at
		FROM enrollments WHERE section_id=$1 AND student_id=$2`, sectionID, student).
		Scan(&en.SectionID, &en.Student, &status, &en.Reason, &graded)
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, apperr.NotFound("enrollment of %q in section %q not found", student, sectionID)
	}
	if err != nil {
		return Enrollment{}, err
	}
	en.Status = EnrollmentStatus(status)
	if graded.Valid {
		t := time.UnixMilli(graded.Int64).UTC()
		en.GradedAt = &t
	}
	return en, nil
}
