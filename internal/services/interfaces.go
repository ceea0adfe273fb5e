// Package services contains the orchestration layer between the HTTP
// handlers and the repositories: suggestion routing, pass lifecycle, and
// the reconciliation queue.
package services

import (
	"context"
	"time"

	domain "github.com/hallpass-app/api/internal/domain"
	"github.com/hallpass-app/api/internal/matching"
)

// Pass lifecycle event types published to the dashboard feed.
const (
	PassEventCreated  = "pass.created"
	PassEventReturned = "pass.returned"
	PassEventResolved = "pass.resolved"
)

// PassEventMessage is the payload emitted on pass lifecycle transitions.
type PassEventMessage struct {
	EventID     string    `json:"eventId"`
	Type        string    `json:"type"`
	PassID      string    `json:"passId"`
	Scope       string    `json:"scope"`
	StudentID   string    `json:"studentId,omitempty"`
	StudentName string    `json:"studentName,omitempty"`
	Destination string    `json:"destination,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// PassEventPublisher emits pass lifecycle events. Implementations must be
// safe for concurrent use.
type PassEventPublisher interface {
	PublishPassEvent(ctx context.Context, message PassEventMessage) (string, error)
}

// SuggestQuery asks for ranked suggestions for live input within a scope.
type SuggestQuery struct {
	Scope string
	Input string
}

// DirectoryStudent is one directory search hit.
type DirectoryStudent struct {
	ID          string
	FirstName   string
	LastName    string
	DisplayName string
}

// SuggestResult carries the outcome of one suggestion request. Exactly one
// of the roster panel or the directory listing is populated, selected by
// the scope's strategy.
type SuggestResult struct {
	Strategy  matching.Strategy
	Panel     matching.Suggestion
	Directory []DirectoryStudent
}

// DirectorySearchQuery is a debounced directory lookup. SessionID groups
// successive queries from one kiosk input stream so rapid keystrokes
// coalesce; an empty SessionID searches immediately.
type DirectorySearchQuery struct {
	SessionID string
	Query     string
}

// SuggestionService routes live name input to the scope's matching strategy.
type SuggestionService interface {
	Roster(ctx context.Context, scope string) ([]domain.RosterEntry, error)
	Suggest(ctx context.Context, query SuggestQuery) (SuggestResult, error)
	SearchDirectory(ctx context.Context, query DirectorySearchQuery) ([]DirectoryStudent, error)
	InvalidateRoster(scope string)
	Close()
}

// CreatePassCommand carries the sign-out request.
type CreatePassCommand struct {
	Scope       string
	StudentID   string
	RawName     string
	Destination string
}

// OverridePassCommand is the authorized bypass: a supervising party picks
// the student directly and vouches with the shared PIN.
type OverridePassCommand struct {
	Scope        string
	StudentID    string
	Destination  string
	PIN          string
	AuthorizedBy string
}

// ActivePassQuery pages through currently-out passes.
type ActivePassQuery struct {
	Scope     string
	PageSize  int
	PageToken string
}

// PassService owns the sign-out/sign-in lifecycle.
type PassService interface {
	CreatePass(ctx context.Context, cmd CreatePassCommand) (domain.Pass, error)
	CreateOverridePass(ctx context.Context, cmd OverridePassCommand) (domain.Pass, error)
	ReturnPass(ctx context.Context, passID string) (domain.Pass, error)
	ListActive(ctx context.Context, query ActivePassQuery) (domain.CursorPage[domain.Pass], error)
}

// UnmatchedView selects the shape of the unmatched listing.
type UnmatchedView string

const (
	// UnmatchedViewAggregate returns one row per raw name with its count.
	UnmatchedViewAggregate UnmatchedView = "aggregate"
	// UnmatchedViewEntries returns the full queue entries.
	UnmatchedViewEntries UnmatchedView = "entries"
)

// UnmatchedQuery pages through the pending reconciliation queue.
type UnmatchedQuery struct {
	View      UnmatchedView
	PageSize  int
	PageToken string
}

// UnmatchedPage is one page of the pending queue in the requested view.
type UnmatchedPage struct {
	View          UnmatchedView
	Aggregates    []domain.UnmatchedAggregate
	Entries       []domain.UnmatchedName
	NextPageToken string
}

// ResolveCommand binds a queue entry to a canonical student.
type ResolveCommand struct {
	EntryID    string
	StudentID  string
	ResolvedBy string
}

// ResolutionService manages the unmatched-name queue end to end.
type ResolutionService interface {
	ListUnmatched(ctx context.Context, query UnmatchedQuery) (UnmatchedPage, error)
	Resolve(ctx context.Context, cmd ResolveCommand) (domain.ResolutionResult, error)
	Dismiss(ctx context.Context, entryID string) (domain.UnmatchedName, error)
}
