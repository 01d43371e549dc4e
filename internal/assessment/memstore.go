package assessment

import (
	"context"
	"sort"
	"sync"

	"github.com/mind-engage/mindengage-mastery/internal/apperr"
)

// MemoryStore keeps everything in maps. It backs the engine tests and
// single-process demos; production uses SQLStore.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]Item
	sessions map[string]Session
	audit    []AuditEntry
	mastery  map[string]MasteryRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    map[string]Item{},
		sessions: map[string]Session{},
		mastery:  map[string]MasteryRecord{},
	}
}

func (m *MemoryStore) PutItem(_ context.Context, it Item) error {
	if err := it.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = it
	return nil
}

func (m *MemoryStore) FindItem(_ context.Context, module string, difficulties []int, exclude []string) (Item, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[int]bool, len(difficulties))
	for _, d := range difficulties {
		want[d] = true
	}
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var best *Item
	for id := range m.items {
		it := m.items[id]
		if it.Module != module || !want[it.Difficulty] || skip[it.ID] {
			continue
		}
		if best == nil || it.Difficulty > best.Difficulty ||
			(it.Difficulty == best.Difficulty && it.ID < best.ID) {
			best = &it
		}
	}
	if best == nil {
		return Item{}, false, nil
	}
	return cloneItem(*best), true, nil
}

func (m *MemoryStore) GetItem(_ context.Context, id string) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return Item{}, apperr.NotFound("item %q not found", id)
	}
	return cloneItem(it), nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return apperr.InvalidState("session %q already exists", s.ID)
	}
	for _, other := range m.sessions {
		if other.Student == s.Student && other.Module == s.Module && other.Status == StatusInProgress {
			return apperr.InvalidState("student %q already has an active session for module %q", s.Student, s.Module)
		}
	}
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, apperr.NotFound("session %q not found", id)
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) FindActiveSession(_ context.Context, student, module string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.Student == student && s.Module == module && s.Status == StatusInProgress {
			return cloneSession(s), nil
		}
	}
	return Session{}, apperr.NotFound("no active session for module %q", module)
}

func (m *MemoryStore) RecordAnswer(_ context.Context, s Session, expectVersion int, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID]
	if !ok {
		return apperr.NotFound("session %q not found", s.ID)
	}
	if cur.Version != expectVersion || cur.Status != StatusInProgress {
		return apperr.InvalidState("session %q was modified concurrently", s.ID)
	}
	m.sessions[s.ID] = cloneSession(s)
	entry.Seq = int64(len(m.audit) + 1)
	m.audit = append(m.audit, entry)
	if s.Status == StatusCompleted {
		k := s.Student + "|" + s.Module
		rec, ok := m.mastery[k]
		if !ok || s.CurrentMastery > rec.HighestMasteryScore {
			m.mastery[k] = MasteryRecord{
				Student:             s.Student,
				Module:              s.Module,
				HighestMasteryScore: s.CurrentMastery,
				UpdatedAt:           s.UpdatedAt,
			}
		}
	}
	return nil
}

// PutMastery seeds a mastery record with a monotonic max, like a completed session would.
func (m *MemoryStore) PutMastery(_ context.Context, rec MasteryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := rec.Student + "|" + rec.Module
	if cur, ok := m.mastery[k]; ok && cur.HighestMasteryScore >= rec.HighestMasteryScore {
		return nil
	}
	m.mastery[k] = rec
	return nil
}

func (m *MemoryStore) GetMastery(_ context.Context, student, module string) (MasteryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.mastery[student+"|"+module]
	if !ok {
		return MasteryRecord{}, apperr.NotFound("no mastery record for module %q", module)
	}
	return rec, nil
}

func (m *MemoryStore) ListMastery(_ context.Context, student string) ([]MasteryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []MasteryRecord{}
	for _, rec := range m.mastery {
		if rec.Student == student {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Module < out[j].Module })
	return out, nil
}

func (m *MemoryStore) ListAudit(_ context.Context, student, module string) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []AuditEntry{}
	for _, e := range m.audit {
		if e.Student == student && (module == "" || e.Module == module) {
			out = append(out, e)
		}
	}
	return out, nil
}

func cloneItem(it Item) Item {
	it.Options = append([]Option(nil), it.Options...)
	return it
}

func cloneSession(s Session) Session {
	s.QuestionsAnswered = append([]string{}, s.QuestionsAnswered...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		s.CompletedAt = &t
	}
	return s
}
