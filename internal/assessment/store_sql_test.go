package assessment

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-mastery/internal/apperr"
	"github.com/mind-engage/mindengage-mastery/internal/db"
	syncx "github.com/mind-engage/mindengage-mastery/internal/sync"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	h, err := db.Open(context.Background(), db.DriverSQLite, filepath.Join(t.TempDir(), "mastery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func sqlBank(t *testing.T, h *sql.DB, items ...Item) *SQLStore {
	t.Helper()
	st := NewSQLStore(h)
	for _, it := range items {
		require.NoError(t, st.PutItem(context.Background(), it))
	}
	return st
}

func TestSQLStoreFindItem(t *testing.T) {
	h := openTestDB(t)
	st := sqlBank(t, h, item("a1", "m", 1), item("b3", "m", 3), item("a3", "m", 3), item("x2", "other", 2))
	ctx := context.Background()

	it, ok, err := st.FindItem(ctx, "m", []int{3, 1}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a3", it.ID)
	require.Len(t, it.Options, 2)
	assert.True(t, it.Options[0].IsCorrect)

	it, ok, err = st.FindItem(ctx, "m", []int{3, 1}, []string{"a3", "b3"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a1", it.ID)

	_, ok, err = st.FindItem(ctx, "m", []int{2}, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = st.GetItem(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPutItemBoundsDifficulty(t *testing.T) {
	ctx := context.Background()
	h := openTestDB(t)
	type itemWriter interface {
		PutItem(context.Context, Item) error
	}
	for _, st := range []itemWriter{NewMemoryStore(), NewSQLStore(h)} {
		assert.ErrorIs(t, st.PutItem(ctx, item("hard", "m", MaxDifficultyLevels+1)), apperr.ErrInvalidArgument)
		assert.ErrorIs(t, st.PutItem(ctx, item("easy", "m", 0)), apperr.ErrInvalidArgument)
		assert.NoError(t, st.PutItem(ctx, item("top", "m", MaxDifficultyLevels)))
	}

	// the table enforces the same range for rows written around the store
	_, err := h.ExecContext(ctx, `INSERT INTO items (id, module_id, difficulty, text, options_json) VALUES ('raw', 'm', 6, 'x', '[]')`)
	assert.Error(t, err)
}

func TestSQLStoreSessionLifecycle(t *testing.T) {
	h := openTestDB(t)
	st := sqlBank(t, h, item("q1", "m", 1), item("q2", "m", 2), item("q3", "m", 3), item("q4", "m", 4), item("q5", "m", 5))
	e := newTestEngine(st, DefaultRules())
	ctx := context.Background()

	start, err := e.Start(ctx, "alice", "m")
	require.NoError(t, err)
	require.Equal(t, "q2", start.Item.ID)

	again, err := e.Start(ctx, "alice", "m")
	require.NoError(t, err)
	assert.True(t, again.Resumed)
	assert.Equal(t, start.SessionID, again.SessionID)

	r := answer(t, e, "alice", start.SessionID, "q2", true)
	require.NotNil(t, r.NextItem)
	assert.Equal(t, "q3", r.NextItem.ID)

	s, err := st.GetSession(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"q2"}, s.QuestionsAnswered)
	assert.Equal(t, "q3", s.PendingItem)
	assert.Equal(t, 29, s.CurrentMastery)
	assert.Equal(t, 2, s.Version)
	assert.Equal(t, DefaultRules(), s.Rules)
	assert.True(t, fixedNow.Equal(s.CreatedAt))

	r = answer(t, e, "alice", start.SessionID, "q3", false) // 29 - 3 = 26
	require.NotNil(t, r.NextItem)
	assert.Equal(t, "q1", r.NextItem.ID)
	r = answer(t, e, "alice", start.SessionID, "q1", true) // 28, nothing left near 2
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, ReasonNoMoreItems, r.Reason)
	assert.Equal(t, 28, *r.FinalMastery)

	s, err = st.GetSession(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, s.Status)
	require.NotNil(t, s.CompletedAt)
	assert.Equal(t, Score{Correct: 2, Incorrect: 1}, s.Score)

	_, err = st.FindActiveSession(ctx, "alice", "m")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	audit, err := st.ListAudit(ctx, "alice", "m")
	require.NoError(t, err)
	require.Len(t, audit, 3)
	assert.False(t, audit[1].IsCorrect)
	assert.Equal(t, 3, audit[1].Difficulty)

	rec, err := st.GetMastery(ctx, "alice", "m")
	require.NoError(t, err)
	assert.Equal(t, 28, rec.HighestMasteryScore)

	evs, err := syncx.NewEventRepo(h).Since(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, syncx.TypeSessionCompleted, evs[0].Type)
	assert.Equal(t, start.SessionID, evs[0].Key)
}

func TestSQLStoreOneActiveSessionPerModule(t *testing.T) {
	h := openTestDB(t)
	st := sqlBank(t, h, item("q2", "m", 2))
	ctx := context.Background()

	base := Session{Student: "alice", Module: "m", PendingItem: "q2", Status: StatusInProgress, Rules: DefaultRules(), Version: 1}
	first, second := base, base
	first.ID, second.ID = "a", "b"
	require.NoError(t, st.CreateSession(ctx, first))
	err := st.CreateSession(ctx, second)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestSQLStoreMasteryNeverDecreases(t *testing.T) {
	h := openTestDB(t)
	st := NewSQLStore(h)
	ctx := context.Background()

	require.NoError(t, st.PutMastery(ctx, MasteryRecord{Student: "alice", Module: "m", HighestMasteryScore: 70}))
	require.NoError(t, st.PutMastery(ctx, MasteryRecord{Student: "alice", Module: "m", HighestMasteryScore: 40}))
	rec, err := st.GetMastery(ctx, "alice", "m")
	require.NoError(t, err)
	assert.Equal(t, 70, rec.HighestMasteryScore)

	require.NoError(t, st.PutMastery(ctx, MasteryRecord{Student: "alice", Module: "m", HighestMasteryScore: 85}))
	require.NoError(t, st.PutMastery(ctx, MasteryRecord{Student: "alice", Module: "n", HighestMasteryScore: 10}))
	recs, err := st.ListMastery(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 85, recs[0].HighestMasteryScore)
	assert.Equal(t, "n", recs[1].Module)

	_, err = st.GetMastery(ctx, "bob", "m")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
