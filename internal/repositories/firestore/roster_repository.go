package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/hallpass-app/api/internal/domain"
	pfirestore "github.com/hallpass-app/api/internal/platform/firestore"
	"github.com/hallpass-app/api/internal/repositories"
)

const rosterEntriesCollection = "roster_entries"

// RosterRepository reads per-scope class rosters.
type RosterRepository struct {
	base *pfirestore.BaseRepository[domain.RosterEntry]
}

// NewRosterRepository constructs a Firestore-backed roster reader.
func NewRosterRepository(provider *pfirestore.Provider) (*RosterRepository, error) {
	if provider == nil {
		return nil, errors.New("roster repository: firestore provider is required")
	}

	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.RosterEntry, error) {
		var doc rosterEntryDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.RosterEntry{}, err
		}
		return domain.RosterEntry{
			StudentID:   doc.StudentID,
			DisplayName: doc.DisplayName,
		}, nil
	}

	base := pfirestore.NewBaseRepository[domain.RosterEntry](provider, rosterEntriesCollection, nil, decoder)
	return &RosterRepository{base: base}, nil
}

// ListByScope returns the scope's roster ordered by display name.
func (r *RosterRepository) ListByScope(ctx context.Context, scope string) ([]domain.RosterEntry, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("roster repository not initialised")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errors.New("roster repository: scope is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("scope", "==", scope).OrderBy("displayName", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	entries := make([]domain.RosterEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc.Data)
	}
	return entries, nil
}

type rosterEntryDocument struct {
	Scope       string `firestore:"scope"`
	StudentID   string `firestore:"studentId"`
	DisplayName string `firestore:"displayName"`
}

var _ repositories.RosterRepository = (*RosterRepository)(nil)
