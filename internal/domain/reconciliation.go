package domain

import "time"

// UnmatchedStatus represents the lifecycle state of a queue entry.
type UnmatchedStatus string

const (
	// UnmatchedStatusPending indicates the raw name is awaiting staff review.
	UnmatchedStatusPending UnmatchedStatus = "pending"
	// UnmatchedStatusResolved indicates the raw name was bound to a student.
	UnmatchedStatusResolved UnmatchedStatus = "resolved"
	// UnmatchedStatusDismissed indicates the raw name was intentionally ignored.
	UnmatchedStatusDismissed UnmatchedStatus = "dismissed"
)

// UnmatchedName is a raw string somebody typed that did not resolve to a
// student, recorded with the context of its first occurrence. One entry
// exists per normalized raw string; repeat occurrences bump the counter.
type UnmatchedName struct {
	ID          string
	RawName     string
	Scope       string
	Destination string
	Status      UnmatchedStatus
	Occurrences int
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	ResolvedTo  string
	ResolvedAt  *time.Time
	DismissedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UnmatchedAggregate is the grouped read surfaced to staff: one row per
// raw name appearing on historical passes without a student link.
type UnmatchedAggregate struct {
	RawName         string
	OccurrenceCount int
}

// NameSynonym is a durable mapping from a raw input string to a canonical
// student. Many raw strings may map to one student; a raw string maps to
// at most one student. Created when staff resolve a queue entry, consulted
// by the automatic-match path on every raw-name pass.
type NameSynonym struct {
	ID        string
	RawName   string
	StudentID string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResolutionResult reports the effect of a resolve operation.
type ResolutionResult struct {
	RawName        string
	StudentID      string
	StudentName    string
	RecordsUpdated int
}
