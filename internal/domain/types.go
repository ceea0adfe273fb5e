package domain

import (
	"strings"
	"time"
)

// Student is the canonical directory identity. The matching core only
// reads students; ownership of the records sits with the directory sync.
type Student struct {
	ID        string
	FirstName string
	LastName  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName renders the "First Last" form used on rosters and passes.
func (s Student) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(s.FirstName) + " " + strings.TrimSpace(s.LastName))
}

// RosterEntry is a student scoped to a period/course. Fetched fresh per
// scope selection and discarded when the scope changes.
type RosterEntry struct {
	StudentID   string
	DisplayName string
}

// PassStatus tracks the lifecycle of a hall pass.
type PassStatus string

const (
	// PassStatusOut indicates the student has signed out and not returned.
	PassStatusOut PassStatus = "out"
	// PassStatusReturned indicates the pass was closed by a sign-in.
	PassStatusReturned PassStatus = "returned"
)

// Pass is one sign-out record. StudentID is empty while the name on the
// pass has not been bound to a canonical student; RawName preserves the
// text exactly as typed so reconciliation can relabel later.
type Pass struct {
	ID          string
	Scope       string
	StudentID   string
	StudentName string
	RawName     string
	Destination string
	Status      PassStatus
	Override    bool
	// AuthorizedBy records who vouched for an override pass.
	AuthorizedBy string
	LeftAt       time.Time
	ReturnedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Resolved reports whether the pass is bound to a canonical student.
func (p Pass) Resolved() bool {
	return strings.TrimSpace(p.StudentID) != ""
}

// Pagination carries cursor-based paging parameters shared across list reads.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
