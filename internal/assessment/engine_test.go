package assessment

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-mastery/internal/apperr"
)

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestEngine(st Store, rules Rules) *Engine {
	n := 0
	return NewEngine(st, rules,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("s%d", n) }),
	)
}

// fullBank holds perLevel items for every difficulty 1..5 of module m.
func fullBank(t *testing.T, perLevel int) *MemoryStore {
	t.Helper()
	var items []Item
	for d := 1; d <= 5; d++ {
		for i := 0; i < perLevel; i++ {
			items = append(items, item(fmt.Sprintf("d%d-%02d", d, i), "m", d))
		}
	}
	return bank(t, items...)
}

// rulesWith tweaks the defaults; a bare Rules literal leaves unset fields at zero.
func rulesWith(f func(r *Rules)) Rules {
	r := DefaultRules()
	f(&r)
	return r
}

func answer(t *testing.T, e *Engine, student, sessionID, itemID string, correct bool) SubmitResult {
	t.Helper()
	opt := "b"
	if correct {
		opt = "a"
	}
	res, err := e.Submit(context.Background(), SubmitRequest{Student: student, SessionID: sessionID, ItemID: itemID, OptionID: opt})
	require.NoError(t, err)
	return res
}

func TestStartPresentsItemAtInitialMastery(t *testing.T) {
	e := newTestEngine(fullBank(t, 2), DefaultRules())

	res, err := e.Start(context.Background(), "alice", "m")
	require.NoError(t, err)
	assert.Equal(t, "s1", res.SessionID)
	assert.Equal(t, "d2-00", res.Item.ID)
	assert.False(t, res.Resumed)
	require.Len(t, res.Item.Options, 2)

	v, err := e.Get(context.Background(), "alice", res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, v.Status)
	assert.Equal(t, 25, v.CurrentMastery)
	assert.Empty(t, v.QuestionsAnswered)
	require.NotNil(t, v.PendingItem)
	assert.Equal(t, "d2-00", v.PendingItem.ID)
}

func TestStartValidation(t *testing.T) {
	e := newTestEngine(fullBank(t, 1), DefaultRules())

	_, err := e.Start(context.Background(), "alice", " ")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = e.Start(context.Background(), "alice", "unknown")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.Start(context.Background(), "alice", "m", UseRules(Rules{MaxItems: 10, DifficultyLevels: 5, MasteryThreshold: 120, InitialMastery: 25}))
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestStartResumesActiveSession(t *testing.T) {
	e := newTestEngine(fullBank(t, 2), DefaultRules())

	first, err := e.Start(context.Background(), "alice", "m")
	require.NoError(t, err)
	again, err := e.Start(context.Background(), "alice", "m")
	require.NoError(t, err)
	assert.True(t, again.Resumed)
	assert.Equal(t, first.SessionID, again.SessionID)
	assert.Equal(t, first.Item.ID, again.Item.ID)

	other, err := e.Start(context.Background(), "bob", "m")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, other.SessionID)
}

func TestSubmitTracesMasteryAndExhaustsBank(t *testing.T) {
	// One item per level: the selector has to walk the neighbours.
	st := bank(t, item("q1", "m", 1), item("q2", "m", 2), item("q3", "m", 3), item("q4", "m", 4), item("q5", "m", 5))
	e := newTestEngine(st, DefaultRules())

	start, err := e.Start(context.Background(), "alice", "m")
	require.NoError(t, err)
	require.Equal(t, "q2", start.Item.ID)

	res := answer(t, e, "alice", start.SessionID, "q2", true) // 25 -> 29, target 2 taken, harder neighbour
	assert.True(t, res.WasCorrect)
	assert.Equal(t, StatusInProgress, res.Status)
	require.NotNil(t, res.NextItem)
	assert.Equal(t, "q3", res.NextItem.ID)

	res = answer(t, e, "alice", start.SessionID, "q3", true) // 29 -> 35, target 2, only q1 left nearby
	require.NotNil(t, res.NextItem)
	assert.Equal(t, "q1", res.NextItem.ID)

	res = answer(t, e, "alice", start.SessionID, "q1", true) // 35 -> 37, nothing left within reach
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, ReasonNoMoreItems, res.Reason)
	assert.Nil(t, res.NextItem)
	require.NotNil(t, res.FinalScore)
	assert.Equal(t, Score{Correct: 3}, *res.FinalScore)
	require.NotNil(t, res.FinalMastery)
	assert.Equal(t, 37, *res.FinalMastery)

	rec, err := st.GetMastery(context.Background(), "alice", "m")
	require.NoError(t, err)
	assert.Equal(t, 37, rec.HighestMasteryScore)

	h, err := e.History(context.Background(), "alice", "m")
	require.NoError(t, err)
	require.Len(t, h.Entries, 3)
	assert.Equal(t, []string{"q2", "q3", "q1"}, []string{h.Entries[0].Item, h.Entries[1].Item, h.Entries[2].Item})
	require.Len(t, h.Stats, 3)
	assert.Equal(t, 1, h.Stats[0].Difficulty)
}

func TestSubmitStopsAtMaxItems(t *testing.T) {
	st := fullBank(t, 10)
	e := newTestEngine(st, DefaultRules())

	start, err := e.Start(context.Background(), "alice", "m")
	require.NoError(t, err)

	next := start.Item.ID
	var res SubmitResult
	for i := 0; i < 10; i++ {
		require.NotEmpty(t, next, "answer %d", i+1)
		res = answer(t, e, "alice", start.SessionID, next, false)
		next = ""
		if res.NextItem != nil {
			next = res.NextItem.ID
		}
		if i < 9 {
			assert.Equal(t, StatusInProgress, res.Status, "answer %d", i+1)
		}
	}
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, ReasonMaxItems, res.Reason)
	assert.Equal(t, Score{Incorrect: 10}, *res.FinalScore)
	assert.Equal(t, 0, *res.FinalMastery)

	v, err := e.Get(context.Background(), "alice", start.SessionID)
	require.NoError(t, err)
	assert.Len(t, v.QuestionsAnswered, 10)
	assert.Nil(t, v.PendingItem)
	require.NotNil(t, v.CompletedAt)
}

func TestSubmitStopsEarlyAtThreshold(t *testing.T) {
	st := fullBank(t, 2)
	e := newTestEngine(st, DefaultRules())

	start, err := e.Start(context.Background(), "alice", "m", UseRules(rulesWith(func(r *Rules) { r.InitialMastery = 90 })))
	require.NoError(t, err)
	require.Equal(t, "d5-00", start.Item.ID)

	res := answer(t, e, "alice", start.SessionID, "d5-00", true)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, ReasonMasteryThreshold, res.Reason)
	assert.Equal(t, 100, *res.FinalMastery)
}

func TestFiveCorrectAnswersTrace(t *testing.T) {
	st := fullBank(t, 3)
	e := newTestEngine(st, DefaultRules())
	ctx := context.Background()

	start, err := e.Start(ctx, "alice", "m")
	require.NoError(t, err)

	// 25 -> 29 -> 33 -> 37 stay at level 2, the level runs dry, 37 -> 43 -> 49 climb to 3.
	wantItems := []string{"d2-00", "d2-01", "d2-02", "d3-00", "d3-01"}
	wantMastery := []int{29, 33, 37, 43, 49}
	next := start.Item.ID
	var res SubmitResult
	for i, id := range wantItems {
		require.Equal(t, id, next, "item %d", i+1)
		res = answer(t, e, "alice", start.SessionID, next, true)
		assert.True(t, res.WasCorrect)
		assert.Equal(t, StatusInProgress, res.Status, "answer %d", i+1)
		require.NotNil(t, res.NextItem, "answer %d", i+1)
		next = res.NextItem.ID

		v, err := e.Get(ctx, "alice", start.SessionID)
		require.NoError(t, err)
		assert.Equal(t, wantMastery[i], v.CurrentMastery, "answer %d", i+1)
	}
	assert.Equal(t, "d3-02", next)

	v, err := e.Get(ctx, "alice", start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, Score{Correct: 5}, v.Score)
	assert.Len(t, v.QuestionsAnswered, 5)
}

func TestThresholdReachedMidSession(t *testing.T) {
	e := newTestEngine(fullBank(t, 2), DefaultRules())
	ctx := context.Background()

	start, err := e.Start(ctx, "alice", "m", UseRules(rulesWith(func(r *Rules) { r.InitialMastery = 80 })))
	require.NoError(t, err)
	require.Equal(t, "d4-00", start.Item.ID)

	res := answer(t, e, "alice", start.SessionID, "d4-00", true) // 80 -> 88
	assert.Equal(t, StatusInProgress, res.Status)
	require.NotNil(t, res.NextItem)
	assert.Equal(t, "d5-00", res.NextItem.ID)

	res = answer(t, e, "alice", start.SessionID, "d5-00", true) // 88 -> 98
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, ReasonMasteryThreshold, res.Reason)
	assert.Nil(t, res.NextItem)
	assert.Equal(t, Score{Correct: 2}, *res.FinalScore)
	assert.Equal(t, 98, *res.FinalMastery)

	rec, err := e.store.GetMastery(ctx, "alice", "m")
	require.NoError(t, err)
	assert.Equal(t, 98, rec.HighestMasteryScore)
}

func TestZeroInitialMasteryIsKept(t *testing.T) {
	e := newTestEngine(fullBank(t, 1), DefaultRules())

	start, err := e.Start(context.Background(), "alice", "m", UseRules(rulesWith(func(r *Rules) { r.InitialMastery = 0 })))
	require.NoError(t, err)
	assert.Equal(t, "d1-00", start.Item.ID)

	v, err := e.Get(context.Background(), "alice", start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, v.CurrentMastery)
}

func TestMaxItemsWinsOverThreshold(t *testing.T) {
	e := newTestEngine(fullBank(t, 1), DefaultRules())
	start, err := e.Start(context.Background(), "alice", "m", UseRules(rulesWith(func(r *Rules) { r.MaxItems, r.InitialMastery = 1, 90 })))
	require.NoError(t, err)
	res := answer(t, e, "alice", start.SessionID, start.Item.ID, true)
	assert.Equal(t, ReasonMaxItems, res.Reason)
}

func TestSubmitRejections(t *testing.T) {
	st := fullBank(t, 3)
	e := newTestEngine(st, DefaultRules())
	ctx := context.Background()

	start, err := e.Start(ctx, "alice", "m")
	require.NoError(t, err)

	// another student's session does not exist for them
	_, err = e.Submit(ctx, SubmitRequest{Student: "mallory", SessionID: start.SessionID, ItemID: start.Item.ID, OptionID: "a"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.Get(ctx, "mallory", start.SessionID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.Submit(ctx, SubmitRequest{Student: "alice", SessionID: "nope", ItemID: start.Item.ID, OptionID: "a"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// only the presented item may be answered
	_, err = e.Submit(ctx, SubmitRequest{Student: "alice", SessionID: start.SessionID, ItemID: "d5-00", OptionID: "a"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = e.Submit(ctx, SubmitRequest{Student: "alice", SessionID: start.SessionID, ItemID: start.Item.ID, OptionID: "zzz"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = e.Submit(ctx, SubmitRequest{Student: "alice", SessionID: start.SessionID, ItemID: start.Item.ID})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	// none of the rejections touched the session
	v, err := e.Get(ctx, "alice", start.SessionID)
	require.NoError(t, err)
	assert.Empty(t, v.QuestionsAnswered)
	assert.Equal(t, 25, v.CurrentMastery)

	// answering twice is refused
	answer(t, e, "alice", start.SessionID, start.Item.ID, true)
	_, err = e.Submit(ctx, SubmitRequest{Student: "alice", SessionID: start.SessionID, ItemID: start.Item.ID, OptionID: "a"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestSubmitAfterCompletion(t *testing.T) {
	e := newTestEngine(fullBank(t, 2), DefaultRules())
	ctx := context.Background()

	start, err := e.Start(ctx, "alice", "m", UseRules(rulesWith(func(r *Rules) { r.MaxItems = 1 })))
	require.NoError(t, err)
	res := answer(t, e, "alice", start.SessionID, start.Item.ID, true)
	require.Equal(t, StatusCompleted, res.Status)

	_, err = e.Submit(ctx, SubmitRequest{Student: "alice", SessionID: start.SessionID, ItemID: "d2-01", OptionID: "a"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	// a completed session no longer blocks a new one
	again, err := e.Start(ctx, "alice", "m")
	require.NoError(t, err)
	assert.False(t, again.Resumed)
	assert.NotEqual(t, start.SessionID, again.SessionID)
}

func TestMasteryKeepsHighestScore(t *testing.T) {
	st := fullBank(t, 2)
	e := newTestEngine(st, DefaultRules())
	ctx := context.Background()
	one := UseRules(rulesWith(func(r *Rules) { r.MaxItems, r.InitialMastery = 1, 90 }))

	s1, err := e.Start(ctx, "alice", "m", one)
	require.NoError(t, err)
	answer(t, e, "alice", s1.SessionID, s1.Item.ID, true) // 90 -> 100

	s2, err := e.Start(ctx, "alice", "m", one)
	require.NoError(t, err)
	res := answer(t, e, "alice", s2.SessionID, s2.Item.ID, false) // 90 -> 89
	assert.Equal(t, 89, *res.FinalMastery)

	recs, err := e.Mastery(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 100, recs[0].HighestMasteryScore)

	none, err := e.Mastery(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSequentialSubmitsSeeEachOther(t *testing.T) {
	e := newTestEngine(fullBank(t, 3), DefaultRules())
	ctx := context.Background()

	start, err := e.Start(ctx, "alice", "m")
	require.NoError(t, err)
	r1 := answer(t, e, "alice", start.SessionID, start.Item.ID, true)
	require.NotNil(t, r1.NextItem)
	r2 := answer(t, e, "alice", start.SessionID, r1.NextItem.ID, true)
	require.NotNil(t, r2.NextItem)

	v, err := e.Get(ctx, "alice", start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{start.Item.ID, r1.NextItem.ID}, v.QuestionsAnswered)
	assert.Equal(t, 33, v.CurrentMastery)
	assert.Equal(t, Score{Correct: 2}, v.Score)
	assert.NotEqual(t, start.Item.ID, r2.NextItem.ID)
	assert.NotEqual(t, r1.NextItem.ID, r2.NextItem.ID)
}

func TestConcurrentSubmitsApplyOnce(t *testing.T) {
	e := newTestEngine(fullBank(t, 3), DefaultRules())
	ctx := context.Background()

	start, err := e.Start(ctx, "alice", "m")
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Submit(ctx, SubmitRequest{Student: "alice", SessionID: start.SessionID, ItemID: start.Item.ID, OptionID: "a"})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrInvalidState)
	}
	assert.Equal(t, 1, ok)

	v, err := e.Get(ctx, "alice", start.SessionID)
	require.NoError(t, err)
	assert.Len(t, v.QuestionsAnswered, 1)
	assert.Equal(t, 29, v.CurrentMastery)
}

func TestStoreRejectsStaleVersion(t *testing.T) {
	st := fullBank(t, 2)
	e := newTestEngine(st, DefaultRules())
	ctx := context.Background()

	start, err := e.Start(ctx, "alice", "m")
	require.NoError(t, err)
	s, err := st.GetSession(ctx, start.SessionID)
	require.NoError(t, err)

	answer(t, e, "alice", start.SessionID, start.Item.ID, true)

	err = st.RecordAnswer(ctx, s, s.Version, AuditEntry{SessionID: s.ID})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}
