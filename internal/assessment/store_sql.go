package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
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

// PutItem upserts an item. Used by fixtures; authoring lives elsewhere.
func (s *SQLStore) PutItem(ctx context.Context, it Item) error {
	if err := it.Validate(); err != nil {
		return err
	}
	oj, err := json.Marshal(it.Options)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO items (id,module_id,difficulty,text,options_json)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET module_id=excluded.module_id, difficulty=excluded.difficulty,
		  text=excluded.text, options_json=excluded.options_json`,
		it.ID, it.Module, it.Difficulty, it.Text, string(oj))
	return err
}

func (s *SQLStore) FindItem(ctx context.Context, module string, difficulties []int, exclude []string) (Item, bool, error) {
	if len(difficulties) == 0 {
		return Item{}, false, nil
	}
	args := []any{module}
	var q strings.Builder
	q.WriteString(`SELECT id,module_id,difficulty,text,options_json FROM items WHERE module_id=$1 AND difficulty IN (`)
	for i, d := range difficulties {
		if i > 0 {
			q.WriteString(",")
		}
		q.WriteString(bind(&args, d))
	}
	q.WriteString(")")
	if len(exclude) > 0 {
		q.WriteString(" AND id NOT IN (")
		for i, id := range exclude {
			if i > 0 {
				q.WriteString(",")
			}
			q.WriteString(bind(&args, id))
		}
		q.WriteString(")")
	}
	q.WriteString(" ORDER BY difficulty DESC, id ASC LIMIT 1")

	it, err := scanItem(s.db.QueryRowContext(ctx, q.String(), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, fmt.Errorf("find item: %w", err)
	}
	return it, true, nil
}

func (s *SQLStore) GetItem(ctx context.Context, id string) (Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT id,module_id,difficulty,text,options_json FROM items WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, apperr.NotFound("item %q not found", id)
	}
	return it, err
}

func (s *SQLStore) CreateSession(ctx context.Context, sess Session) error {
	qj, rj, err := sessionJSON(sess)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO evaluation_sessions
		(id,student_id,module_id,questions_answered_json,pending_item,current_mastery,correct,incorrect,
		 status,completion_reason,rules_json,version,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		sess.ID, sess.Student, sess.Module, qj, sess.PendingItem, sess.CurrentMastery,
		sess.Score.Correct, sess.Score.Incorrect, string(sess.Status), string(sess.CompletionReason),
		rj, sess.Version, sess.CreatedAt.UnixMilli(), sess.UpdatedAt.UnixMilli())
	if db.IsUniqueViolation(err) {
		return apperr.InvalidState("student %q already has an active session for module %q", sess.Student, sess.Module)
	}
	return err
}

const sessionCols = `id,student_id,module_id,questions_answered_json,pending_item,current_mastery,correct,incorrect,
	status,completion_reason,rules_json,version,created_at,updated_at,completed_at`

func (s *SQLStore) GetSession(ctx context.Context, id string) (Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM evaluation_sessions WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, apperr.NotFound("session %q not found", id)
	}
	return sess, err
}

func (s *SQLStore) FindActiveSession(ctx context.Context, student, module string) (Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM evaluation_sessions
		 WHERE student_id=$1 AND module_id=$2 AND status='in_progress'`, student, module))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, apperr.NotFound("no active session for module %q", module)
	}
	return sess, err
}

func (s *SQLStore) RecordAnswer(ctx context.Context, sess Session, expectVersion int, entry AuditEntry) error {
	qj, _, err := sessionJSON(sess)
	if err != nil {
		return err
	}
	var completedAt sql.NullInt64
	if sess.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: sess.CompletedAt.UnixMilli(), Valid: true}
	}
	return db.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE evaluation_sessions SET
			questions_answered_json=$1, pending_item=$2, current_mastery=$3, correct=$4, incorrect=$5,
			status=$6, completion_reason=$7, version=$8, updated_at=$9, completed_at=$10
			WHERE id=$11 AND version=$12 AND status='in_progress'`,
			qj, sess.PendingItem, sess.CurrentMastery, sess.Score.Correct, sess.Score.Incorrect,
			string(sess.Status), string(sess.CompletionReason), sess.Version, sess.UpdatedAt.UnixMilli(),
			completedAt, sess.ID, expectVersion)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperr.InvalidState("session %q was modified concurrently", sess.ID)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO audit_log
			(session_id,student_id,item_id,module_id,is_correct,difficulty,created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			entry.SessionID, entry.Student, entry.Item, entry.Module, entry.IsCorrect, entry.Difficulty,
			entry.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("append audit: %w", err)
		}

		if sess.Status != StatusCompleted {
			return nil
		}
		if err := upsertMasteryMax(ctx, tx, sess.Student, sess.Module, sess.CurrentMastery, sess.UpdatedAt); err != nil {
			return err
		}
		return syncx.Append(ctx, tx, syncx.TypeSessionCompleted, sess.ID, map[string]any{
			"student": sess.Student,
			"module":  sess.Module,
			"mastery": sess.CurrentMastery,
			"correct": sess.Score.Correct,
			"reason":  sess.CompletionReason,
		})
	})
}

// upsertMasteryMax never lowers a stored score, so concurrent completions of
// retaken sessions cannot regress it.
func upsertMasteryMax(ctx context.Context, ex db.Execer, student, module string, score int, at time.Time) error {
	_, err := ex.ExecContext(ctx, `INSERT INTO mastery_records (student_id,module_id,highest_score,updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (student_id,module_id) DO UPDATE
		  SET highest_score=excluded.highest_score, updated_at=excluded.updated_at
		  WHERE excluded.highest_score > mastery_records.highest_score`,
		student, module, score, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert mastery: %w", err)
	}
	return nil
}

// PutMastery seeds a mastery record with the same monotonic max as a session completion.
func (s *SQLStore) PutMastery(ctx context.Context, rec MasteryRecord) error {
	at := rec.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	return upsertMasteryMax(ctx, s.db, rec.Student, rec.Module, rec.HighestMasteryScore, at)
}

func (s *SQLStore) GetMastery(ctx context.Context, student, module string) (MasteryRecord, error) {
	var rec MasteryRecord
	var updated int64
	err := s.db.QueryRowContext(ctx, `SELECT student_id,module_id,highest_score,updated_at
		FROM mastery_records WHERE student_id=$1 AND module_id=$2`, student, module).
		Scan(&rec.Student, &rec.Module, &rec.HighestMasteryScore, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return MasteryRecord{}, apperr.NotFound("no mastery record for module %q", module)
	}
	if err != nil {
		return MasteryRecord{}, err
	}
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	return rec, nil
}

func (s *SQLStore) ListMastery(ctx context.Context, student string) ([]MasteryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT student_id,module_id,highest_score,updated_at
		FROM mastery_records WHERE student_id=$1 ORDER BY module_id`, student)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []MasteryRecord{}
	for rows.Next() {
		var rec MasteryRecord
		var updated int64
		if err := rows.Scan(&rec.Student, &rec.Module, &rec.HighestMasteryScore, &updated); err != nil {
			return nil, err
		}
		rec.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListAudit(ctx context.Context, student, module string) ([]AuditEntry, error) {
	q := `SELECT seq,session_id,student_id,item_id,module_id,is_correct,difficulty,created_at
		FROM audit_log WHERE student_id=$1`
	args := []any{student}
	if module != "" {
		q += ` AND module_id=$2`
		args = append(args, module)
	}
	q += ` ORDER BY seq ASC`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		var created int64
		if err := rows.Scan(&e.Seq, &e.SessionID, &e.Student, &e.Item, &e.Module, &e.IsCorrect, &e.Difficulty, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// bind appends v to args and returns its positional placeholder.
func bind(args *[]any, v any) string {
	*args = append(*args, v)
	return "$" + strconv.Itoa(len(*args))
}

func sessionJSON(sess Session) (answered, rules string, err error) {
	qa := sess.QuestionsAnswered
	if qa == nil {
		qa = []string{}
	}
	qb, err := json.Marshal(qa)
	if err != nil {
		return "", "", err
	}
	rb, err := json.Marshal(sess.Rules)
	if err != nil {
		return "", "", err
	}
	return string(qb), string(rb), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var it Item
	var oj string
	if err := row.Scan(&it.ID, &it.Module, &it.Difficulty, &it.Text, &oj); err != nil {
		return Item{}, err
	}
	if err := json.Unmarshal([]byte(oj), &it.Options); err != nil {
		return Item{}, fmt.Errorf("item %s options: %w", it.ID, err)
	}
	return it, nil
}

func scanSession(row rowScanner) (Session, error) {
	var (
		sess             Session
		qj, rj           string
		status, reason   string
		created, updated int64
		completed        sql.NullInt64
	)
	if err := row.Scan(&sess.ID, &sess.Student, &sess.Module, &qj, &sess.PendingItem, &sess.CurrentMastery,
		&sess.Score.Correct, &sess.Score.Incorrect, &status, &reason, &rj, &sess.Version,
		&created, &updated, &completed); err != nil {
		return Session{}, err
	}
	sess.Status = Status(status)
	if !sess.Status.Valid() {
		return Session{}, fmt.Errorf("session %s: unknown status %q", sess.ID, status)
	}
	sess.CompletionReason = CompletionReason(reason)
	if err := json.Unmarshal([]byte(qj), &sess.QuestionsAnswered); err != nil {
		return Session{}, fmt.Errorf("session %s answered: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(rj), &sess.Rules); err != nil {
		return Session{}, fmt.Errorf("session %s rules: %w", sess.ID, err)
	}
	sess.CreatedAt = time.UnixMilli(created).UTC()
	sess.UpdatedAt = time.UnixMilli(updated).UTC()
	if completed.Valid {
		t := time.UnixMilli(completed.Int64).UTC()
		sess.CompletedAt = &t
	}
	return sess, nil
}
