package repositories

import (
	"context"
	"time"

	domain "github.com/hallpass-app/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// StudentDirectoryRepository reads the canonical student directory.
type StudentDirectoryRepository interface {
	FindByID(ctx context.Context, studentID string) (domain.Student, error)
	// Search returns active students whose first or last name contains the
	// query, case-insensitively, ordered by last name then first name and
	// capped at limit.
	Search(ctx context.Context, query string, limit int) ([]domain.Student, error)
}

// RosterRepository loads class rosters per scope.
type RosterRepository interface {
	ListByScope(ctx context.Context, scope string) ([]domain.RosterEntry, error)
}

// PassRepository persists sign-out records.
type PassRepository interface {
	Insert(ctx context.Context, pass domain.Pass) error
	FindByID(ctx context.Context, passID string) (domain.Pass, error)
	// Return closes an open pass. Returns a RepositoryError with IsConflict
	// when the pass is already closed.
	Return(ctx context.Context, passID string, returnedAt time.Time) (domain.Pass, error)
	ListActive(ctx context.Context, scope string, pager domain.Pagination) (domain.CursorPage[domain.Pass], error)
}

// SynonymRepository reads durable raw-name to student bindings. Synonyms
// are written only through ReconciliationRepository.Resolve.
type SynonymRepository interface {
	// FindByRawName looks up the synonym for the normalized form of rawName.
	FindByRawName(ctx context.Context, rawName string) (domain.NameSynonym, error)
}

// ResolveCommand carries everything needed to bind a queue entry to a student.
type ResolveCommand struct {
	EntryID     string
	StudentID   string
	StudentName string
	ResolvedBy  string
	Now         time.Time
}

// ReconciliationRepository applies resolution decisions atomically.
type ReconciliationRepository interface {
	// Resolve relabels every unresolved pass carrying the entry's raw name,
	// records the raw name as a synonym for the student, and marks the
	// queue entry resolved, all inside one transaction. A failure leaves
	// every record untouched. Resolving an already-resolved entry to the
	// same student is a no-op reporting zero updated records.
	Resolve(ctx context.Context, cmd ResolveCommand) (domain.ResolutionResult, error)
}

// UnmatchedOccurrence records one sighting of a raw name that failed to resolve.
type UnmatchedOccurrence struct {
	RawName     string
	Scope       string
	Destination string
	SeenAt      time.Time
}

// UnmatchedRepository maintains the reconciliation queue.
type UnmatchedRepository interface {
	// UpsertOccurrence creates the queue entry for a raw name on first
	// sighting or bumps its occurrence counter on repeats. A previously
	// resolved or dismissed entry is reopened as pending.
	UpsertOccurrence(ctx context.Context, occ UnmatchedOccurrence) (domain.UnmatchedName, error)
	FindByID(ctx context.Context, entryID string) (domain.UnmatchedName, error)
	ListPending(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.UnmatchedName], error)
	// MarkDismissed closes a pending entry without creating a synonym.
	// Returns a RepositoryError with IsConflict when the entry already
	// left the pending state.
	MarkDismissed(ctx context.Context, entryID string, dismissedAt time.Time) (domain.UnmatchedName, error)
}
