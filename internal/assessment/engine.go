package assessment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-mastery/internal/apperr"
	"github.com/mind-engage/mindengage-mastery/internal/logger"
)

// Engine owns the lifecycle of evaluation sessions. It is the only writer of
// Session values.
type Engine struct {
	store  Store
	locker Locker
	rules  Rules
	log    *logger.Logger
	now    func() time.Time
	newID  func() string
}

type EngineOption func(*Engine)

func WithLocker(l Locker) EngineOption         { return func(e *Engine) { e.locker = l } }
func WithLogger(l *logger.Logger) EngineOption { return func(e *Engine) { e.log = l } }
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}
func WithIDGenerator(f func() string) EngineOption { return func(e *Engine) { e.newID = f } }

// NewEngine builds a session engine. rules are used for sessions started
// without an explicit UseRules option.
func NewEngine(store Store, rules Rules, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		locker: NewLocalLocker(),
		rules:  rules,
		log:    logger.Nop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type startConfig struct {
	rules *Rules
}

type StartOption func(*startConfig)

// UseRules starts the session with r instead of the engine's default rules.
// r is taken as given: zero is a real value for every field, so callers
// build on DefaultRules rather than leaving fields unset.
func UseRules(r Rules) StartOption {
	return func(c *startConfig) { c.rules = &r }
}

type StartResult struct {
	SessionID string   `json:"session_id"`
	Item      ItemView `json:"item"`
	Resumed   bool     `json:"resumed,omitempty"`
}

// Start opens a session for student on module and returns its first item.
// An in-progress session for the same pair is resumed instead. The first item
// is chosen before anything is written, so a failed or abandoned start never
// leaves a session without a pending item.
func (e *Engine) Start(ctx context.Context, student, module string, opts ...StartOption) (StartResult, error) {
	student, module = strings.TrimSpace(student), strings.TrimSpace(module)
	if student == "" || module == "" {
		return StartResult{}, apperr.InvalidArgument("student and module are required")
	}
	cfg := startConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	rules := e.rules
	if cfg.rules != nil {
		rules = *cfg.rules
	}
	if err := rules.Validate(); err != nil {
		return StartResult{}, apperr.Wrap(apperr.KindInvalidArgument, err, "rules")
	}

	if res, ok, err := e.resume(ctx, student, module); err != nil || ok {
		return res, err
	}

	sel := NewSelector(e.store, rules.DifficultyLevels)
	first, ok, err := sel.SelectNext(ctx, module, rules.InitialMastery, nil)
	if err != nil {
		return StartResult{}, err
	}
	if !ok {
		return StartResult{}, apperr.NotFound("no items available for module %q", module)
	}
	if err := ctx.Err(); err != nil {
		return StartResult{}, err
	}

	now := e.now().UTC()
	s := Session{
		ID:                e.newID(),
		Student:           student,
		Module:            module,
		QuestionsAnswered: []string{},
		PendingItem:       first.ID,
		CurrentMastery:    rules.InitialMastery,
		Status:            StatusInProgress,
		Rules:             rules,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.store.CreateSession(ctx, s); err != nil {
		if apperr.KindOf(err) == apperr.KindInvalidState {
			// Lost a race with a concurrent start for the same pair.
			if res, ok, rerr := e.resume(ctx, student, module); rerr == nil && ok {
				return res, nil
			}
		}
		return StartResult{}, err
	}
	e.log.Info("session started", "session_id", s.ID, "student", student, "module", module, "item", first.ID)
	return StartResult{SessionID: s.ID, Item: first.View()}, nil
}

func (e *Engine) resume(ctx context.Context, student, module string) (StartResult, bool, error) {
	active, err := e.store.FindActiveSession(ctx, student, module)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return StartResult{}, false, nil
		}
		return StartResult{}, false, err
	}
	it, err := e.store.GetItem(ctx, active.PendingItem)
	if err != nil {
		return StartResult{}, false, err
	}
	return StartResult{SessionID: active.ID, Item: it.View(), Resumed: true}, true, nil
}

type SubmitRequest struct {
	Student   string
	SessionID string
	ItemID    string
	OptionID  string
}

type SubmitResult struct {
	Status       Status           `json:"status"`
	WasCorrect   bool             `json:"was_correct"`
	NextItem     *ItemView        `json:"next_item,omitempty"`
	FinalScore   *Score           `json:"final_score,omitempty"`
	FinalMastery *int             `json:"final_mastery,omitempty"`
	Reason       CompletionReason `json:"reason,omitempty"`
}

// Submit records one answer. Submissions for the same session are serialised
// through the engine's Locker; the storage version check catches anything
// that slips past it.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if req.SessionID == "" || req.ItemID == "" || req.OptionID == "" {
		return SubmitResult{}, apperr.InvalidArgument("session, item and option are required")
	}
	unlock, err := e.locker.Lock(ctx, req.SessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	defer unlock()

	s, err := e.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if s.Student != req.Student {
		return SubmitResult{}, apperr.NotFound("session %q not found", req.SessionID)
	}
	if s.Status == StatusCompleted {
		return SubmitResult{}, apperr.InvalidState("session %q is already completed", s.ID)
	}
	if req.ItemID != s.PendingItem {
		if s.hasAnswered(req.ItemID) {
			return SubmitResult{}, apperr.InvalidState("item %q was already answered", req.ItemID)
		}
		return SubmitResult{}, apperr.InvalidState("item %q is not the item presented in session %q", req.ItemID, s.ID)
	}

	it, err := e.store.GetItem(ctx, req.ItemID)
	if err != nil {
		return SubmitResult{}, err
	}
	correct, ok := it.OptionCorrect(req.OptionID)
	if !ok {
		return SubmitResult{}, apperr.InvalidArgument("option %q does not belong to item %q", req.OptionID, it.ID)
	}

	prevVersion := s.Version
	now := e.now().UTC()
	if correct {
		s.Score.Correct++
	} else {
		s.Score.Incorrect++
	}
	s.CurrentMastery = ApplyAnswer(s.CurrentMastery, it.Difficulty, s.Rules.DifficultyLevels, correct)
	s.QuestionsAnswered = append(s.QuestionsAnswered, it.ID)
	s.PendingItem = ""
	s.Version = prevVersion + 1
	s.UpdatedAt = now

	var next Item
	switch {
	case len(s.QuestionsAnswered) >= s.Rules.MaxItems:
		err = s.complete(ReasonMaxItems, now)
	case s.CurrentMastery >= s.Rules.MasteryThreshold:
		err = s.complete(ReasonMasteryThreshold, now)
	default:
		var found bool
		next, found, err = NewSelector(e.store, s.Rules.DifficultyLevels).
			SelectNext(ctx, s.Module, s.CurrentMastery, s.excluded())
		if err != nil {
			return SubmitResult{}, err
		}
		if found {
			s.PendingItem = next.ID
		} else {
			err = s.complete(ReasonNoMoreItems, now)
		}
	}
	if err != nil {
		return SubmitResult{}, err
	}

	entry := AuditEntry{
		SessionID:  s.ID,
		Student:    s.Student,
		Item:       it.ID,
		Module:     s.Module,
		IsCorrect:  correct,
		Difficulty: it.Difficulty,
		CreatedAt:  now,
	}
	if err := e.store.RecordAnswer(ctx, s, prevVersion, entry); err != nil {
		return SubmitResult{}, err
	}

	res := SubmitResult{Status: s.Status, WasCorrect: correct}
	if s.Status == StatusCompleted {
		score, mastery := s.Score, s.CurrentMastery
		res.FinalScore, res.FinalMastery, res.Reason = &score, &mastery, s.CompletionReason
		e.log.Info("session completed",
			"session_id", s.ID, "student", s.Student, "module", s.Module,
			"reason", s.CompletionReason, "mastery", s.CurrentMastery,
			"correct", s.Score.Correct, "incorrect", s.Score.Incorrect)
		return res, nil
	}
	v := next.View()
	res.NextItem = &v
	return res, nil
}

func (s *Session) complete(reason CompletionReason, at time.Time) error {
	if !s.Status.CanTransition(StatusCompleted) {
		return apperr.InvalidState("session %q cannot move from %s to %s", s.ID, s.Status, StatusCompleted)
	}
	s.Status = StatusCompleted
	s.CompletionReason = reason
	s.CompletedAt = &at
	return nil
}

type SessionView struct {
	ID                string           `json:"id"`
	Module            string           `json:"module"`
	Status            Status           `json:"status"`
	Score             Score            `json:"score"`
	CurrentMastery    int              `json:"current_mastery"`
	QuestionsAnswered []string         `json:"questions_answered"`
	PendingItem       *ItemView        `json:"pending_item,omitempty"`
	CompletionReason  CompletionReason `json:"completion_reason,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
}

// Get returns the student's own session. Sessions of other students are
// reported as not found.
func (e *Engine) Get(ctx context.Context, student, sessionID string) (SessionView, error) {
	s, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if s.Student != student {
		return SessionView{}, apperr.NotFound("session %q not found", sessionID)
	}
	v := SessionView{
		ID:                s.ID,
		Module:            s.Module,
		Status:            s.Status,
		Score:             s.Score,
		CurrentMastery:    s.CurrentMastery,
		QuestionsAnswered: s.QuestionsAnswered,
		CompletionReason:  s.CompletionReason,
		CreatedAt:         s.CreatedAt,
		CompletedAt:       s.CompletedAt,
	}
	if s.PendingItem != "" {
		it, err := e.store.GetItem(ctx, s.PendingItem)
		if err != nil {
			return SessionView{}, err
		}
		iv := it.View()
		v.PendingItem = &iv
	}
	return v, nil
}

func (e *Engine) Mastery(ctx context.Context, student string) ([]MasteryRecord, error) {
	return e.store.ListMastery(ctx, student)
}

type History struct {
	Module  string           `json:"module"`
	Entries []AuditEntry     `json:"entries"`
	Stats   []DifficultyStat `json:"stats"`
}

func (e *Engine) History(ctx context.Context, student, module string) (History, error) {
	entries, err := e.store.ListAudit(ctx, student, module)
	if err != nil {
		return History{}, err
	}
	return History{Module: module, Entries: entries, Stats: Summarize(entries)}, nil
}
