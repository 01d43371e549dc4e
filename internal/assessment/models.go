package assessment

import (
	"time"

	"github.com/mind-engage/mindengage-mastery/internal/apperr"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

func (s Status) Valid() bool {
	return s == StatusInProgress || s == StatusCompleted
}

// CanTransition reports whether a session may move from s to next.
// in_progress -> completed is the only allowed transition.
func (s Status) CanTransition(next Status) bool {
	return s == StatusInProgress && next == StatusCompleted
}

type CompletionReason string

const (
	ReasonMaxItems         CompletionReason = "max_items"
	ReasonMasteryThreshold CompletionReason = "mastery_threshold"
	ReasonNoMoreItems      CompletionReason = "no_more_items"
)

type Option struct {
	ID        string `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	IsCorrect bool   `json:"is_correct,omitempty" yaml:"is_correct"`
}

type Item struct {
	ID         string   `json:"id" yaml:"id"`
	Module     string   `json:"module" yaml:"module"`
	Difficulty int      `json:"difficulty" yaml:"difficulty"`
	Text       string   `json:"text" yaml:"text"`
	Options    []Option `json:"options" yaml:"options"`
}

// Validate checks what the selector relies on: an id, a module and a
// difficulty in [1,MaxDifficultyLevels].
func (it Item) Validate() error {
	switch {
	case it.ID == "" || it.Module == "":
		return apperr.InvalidArgument("item needs an id and a module")
	case it.Difficulty < 1 || it.Difficulty > MaxDifficultyLevels:
		return apperr.InvalidArgument("item %s: difficulty must be in [1,%d], got %d", it.ID, MaxDifficultyLevels, it.Difficulty)
	}
	return nil
}

// OptionCorrect returns whether optionID is a correct option of the item.
// ok is false when the item has no such option.
func (it Item) OptionCorrect(optionID string) (correct, ok bool) {
	for _, o := range it.Options {
		if o.ID == optionID {
			return o.IsCorrect, true
		}
	}
	return false, false
}

// ItemView is what a student sees: prompt and option labels, never correctness.
type ItemView struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Options []OptionView `json:"options"`
}

type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (it Item) View() ItemView {
	v := ItemView{ID: it.ID, Text: it.Text, Options: make([]OptionView, 0, len(it.Options))}
	for _, o := range it.Options {
		v.Options = append(v.Options, OptionView{ID: o.ID, Text: o.Text})
	}
	return v
}

type Score struct {
	Correct   int `json:"correct"`
	Incorrect int `json:"incorrect"`
}

func (s Score) Total() int { return s.Correct + s.Incorrect }

type Session struct {
	ID                string           `json:"id"`
	Student           string           `json:"student"`
	Module            string           `json:"module"`
	QuestionsAnswered []string         `json:"questions_answered"`
	PendingItem       string           `json:"pending_item,omitempty"`
	CurrentMastery    int              `json:"current_mastery"`
	Score             Score            `json:"score"`
	Status            Status           `json:"status"`
	CompletionReason  CompletionReason `json:"completion_reason,omitempty"`
	Rules             Rules            `json:"rules"`
	Version           int              `json:"-"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
}

func (s Session) hasAnswered(itemID string) bool {
	for _, id := range s.QuestionsAnswered {
		if id == itemID {
			return true
		}
	}
	return false
}

// excluded returns every item already shown in this session.
func (s Session) excluded() []string {
	out := make([]string, 0, len(s.QuestionsAnswered)+1)
	out = append(out, s.QuestionsAnswered...)
	if s.PendingItem != "" {
		out = append(out, s.PendingItem)
	}
	return out
}

type AuditEntry struct {
	Seq        int64     `json:"seq"`
	SessionID  string    `json:"session_id"`
	Student    string    `json:"student"`
	Item       string    `json:"item"`
	Module     string    `json:"module"`
	IsCorrect  bool      `json:"is_correct"`
	Difficulty int       `json:"difficulty"`
	CreatedAt  time.Time `json:"created_at"`
}

type MasteryRecord struct {
	Student             string    `json:"student"`
	Module              string    `json:"module"`
	HighestMasteryScore int       `json:"highest_mastery_score"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// DifficultyStat aggregates audit entries of one difficulty level.
type DifficultyStat struct {
	Difficulty int     `json:"difficulty"`
	Answered   int     `json:"answered"`
	Correct    int     `json:"correct"`
	Accuracy   float64 `json:"accuracy"`
}

// Summarize folds audit entries into per-difficulty accuracy, ordered by difficulty.
func Summarize(entries []AuditEntry) []DifficultyStat {
	byLevel := map[int]*DifficultyStat{}
	maxLevel := 0
	for _, e := range entries {
		st, ok := byLevel[e.Difficulty]
		if !ok {
			st = &DifficultyStat{Difficulty: e.Difficulty}
			byLevel[e.Difficulty] = st
		}
		st.Answered++
		if e.IsCorrect {
			st.Correct++
		}
		if e.Difficulty > maxLevel {
			maxLevel = e.Difficulty
		}
	}
	out := make([]DifficultyStat, 0, len(byLevel))
	for d := 1; d <= maxLevel; d++ {
		st, ok := byLevel[d]
		if !ok {
			continue
		}
		st.Accuracy = float64(st.Correct) / float64(st.Answered)
		out = append(out, *st)
	}
	return out
}
