package assessment

import "context"

// ItemStore is the read side of the question bank.
type ItemStore interface {
	// FindItem returns one item of module whose difficulty is in
	// difficulties and whose id is not in exclude, preferring the highest
	// difficulty and then the lowest id. ok is false when nothing matches.
	FindItem(ctx context.Context, module string, difficulties []int, exclude []string) (it Item, ok bool, err error)
	GetItem(ctx context.Context, id string) (Item, error)
}

type SessionStore interface {
	// CreateSession inserts a new in-progress session. It returns an
	// InvalidState error when the student already has an active session
	// for the module.
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	FindActiveSession(ctx context.Context, student, module string) (Session, error)

	// RecordAnswer persists s, appends entry to the audit log and, when s is
	// completed, raises the student's mastery record to s.CurrentMastery if
	// higher. All three happen atomically. expectVersion is the version the
	// caller read; a mismatch yields an InvalidState error.
	RecordAnswer(ctx context.Context, s Session, expectVersion int, entry AuditEntry) error
}

type MasteryStore interface {
	GetMastery(ctx context.Context, student, module string) (MasteryRecord, error)
	ListMastery(ctx context.Context, student string) ([]MasteryRecord, error)
}

type AuditLog interface {
	ListAudit(ctx context.Context, student, module string) ([]AuditEntry, error)
}

// Store is everything the session engine and its read endpoints need.
type Store interface {
	ItemStore
	SessionStore
	MasteryStore
	AuditLog
}
