package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hallpass-app/api/internal/domain"
	"github.com/hallpass-app/api/internal/matching"
	pfirestore "github.com/hallpass-app/api/internal/platform/firestore"
	"github.com/hallpass-app/api/internal/platform/pagination"
	"github.com/hallpass-app/api/internal/repositories"
)

const unmatchedNamesCollection = "unmatched_names"

// UnmatchedRepository maintains the reconciliation queue. One document per
// normalized raw name; repeat sightings bump the counter rather than adding
// rows.
type UnmatchedRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.UnmatchedName]
}

// NewUnmatchedRepository constructs a Firestore-backed queue repository.
func NewUnmatchedRepository(provider *pfirestore.Provider) (*UnmatchedRepository, error) {
	if provider == nil {
		return nil, errors.New("unmatched repository: firestore provider is required")
	}

	base := pfirestore.NewBaseRepository[domain.UnmatchedName](provider, unmatchedNamesCollection, encodeUnmatched, decodeUnmatched)
	return &UnmatchedRepository{provider: provider, base: base}, nil
}

// UpsertOccurrence records one sighting of a raw name. First sighting
// creates the entry; repeats bump the counter and refresh the last-seen
// context. Entries that already left the pending state are reopened, since
// a fresh sighting means the name is back in circulation.
func (r *UnmatchedRepository) UpsertOccurrence(ctx context.Context, occ repositories.UnmatchedOccurrence) (domain.UnmatchedName, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.UnmatchedName{}, errors.New("unmatched repository not initialised")
	}
	key := matching.NormalizeKey(occ.RawName)
	if key == "" {
		return domain.UnmatchedName{}, errors.New("unmatched repository: raw name normalizes to nothing")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.UnmatchedName{}, err
	}
	docRef, err := r.base.DocumentRef(ctx, key)
	if err != nil {
		return domain.UnmatchedName{}, err
	}

	seenAt := occ.SeenAt.UTC()
	var result domain.UnmatchedName
	txErr := pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil && !isNotFound(err) {
			return err
		}

		if snap == nil || !snap.Exists() {
			entry := domain.UnmatchedName{
				ID:          key,
				RawName:     occ.RawName,
				Scope:       occ.Scope,
				Destination: occ.Destination,
				Status:      domain.UnmatchedStatusPending,
				Occurrences: 1,
				FirstSeenAt: seenAt,
				LastSeenAt:  seenAt,
				CreatedAt:   seenAt,
				UpdatedAt:   seenAt,
			}
			payload, err := r.base.Encode(ctx, entry)
			if err != nil {
				return err
			}
			result = entry
			return tx.Create(docRef, payload)
		}

		doc, err := r.base.Decode(ctx, snap)
		if err != nil {
			return err
		}
		entry := doc.Data
		entry.Occurrences++
		entry.Scope = occ.Scope
		entry.Destination = occ.Destination
		entry.LastSeenAt = seenAt
		entry.UpdatedAt = seenAt
		entry.Status = domain.UnmatchedStatusPending
		entry.ResolvedTo = ""
		entry.ResolvedAt = nil
		entry.DismissedAt = nil

		payload, err := r.base.Encode(ctx, entry)
		if err != nil {
			return err
		}
		result = entry
		return tx.Set(docRef, payload)
	})
	if txErr != nil {
		return domain.UnmatchedName{}, pfirestore.WrapError("unmatched_names.upsert", txErr)
	}
	return result, nil
}

// FindByID loads one queue entry.
func (r *UnmatchedRepository) FindByID(ctx context.Context, entryID string) (domain.UnmatchedName, error) {
	if r == nil || r.base == nil {
		return domain.UnmatchedName{}, errors.New("unmatched repository not initialised")
	}
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return domain.UnmatchedName{}, errors.New("unmatched repository: id is required")
	}
	doc, err := r.base.Get(ctx, entryID)
	if err != nil {
		return domain.UnmatchedName{}, err
	}
	return doc.Data, nil
}

// ListPending returns open queue entries, most frequent first.
func (r *UnmatchedRepository) ListPending(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.UnmatchedName], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.UnmatchedName]{}, errors.New("unmatched repository not initialised")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.UnmatchedName]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.
			Where("status", "==", string(domain.UnmatchedStatusPending)).
			OrderBy("occurrences", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Asc)
		if values, ok := unmatchedCursorValues(cursor); ok {
			q = q.StartAfter(values...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.UnmatchedName]{}, err
	}

	page := domain.CursorPage[domain.UnmatchedName]{}
	for i, doc := range docs {
		if i == pageSize {
			last := page.Items[len(page.Items)-1]
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{last.Occurrences, last.ID},
			})
			if err != nil {
				return domain.CursorPage[domain.UnmatchedName]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data)
	}
	return page, nil
}

// MarkDismissed closes a pending entry without creating a synonym.
func (r *UnmatchedRepository) MarkDismissed(ctx context.Context, entryID string, dismissedAt time.Time) (domain.UnmatchedName, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.UnmatchedName{}, errors.New("unmatched repository not initialised")
	}
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return domain.UnmatchedName{}, errors.New("unmatched repository: id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.UnmatchedName{}, err
	}
	docRef, err := r.base.DocumentRef(ctx, entryID)
	if err != nil {
		return domain.UnmatchedName{}, err
	}

	closedAt := dismissedAt.UTC()
	var result domain.UnmatchedName
	txErr := pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		doc, err := r.base.Decode(ctx, snap)
		if err != nil {
			return err
		}
		entry := doc.Data
		if entry.Status != domain.UnmatchedStatusPending {
			return conflictError("unmatched_names.dismiss", "entry is not pending")
		}

		entry.Status = domain.UnmatchedStatusDismissed
		entry.DismissedAt = &closedAt
		entry.UpdatedAt = closedAt
		result = entry

		return tx.Update(docRef, []firestore.Update{
			{Path: "status", Value: string(domain.UnmatchedStatusDismissed)},
			{Path: "dismissedAt", Value: closedAt},
			{Path: "updatedAt", Value: closedAt},
		})
	})
	if txErr != nil {
		return domain.UnmatchedName{}, pfirestore.WrapError("unmatched_names.dismiss", txErr)
	}
	return result, nil
}

// unmatchedCursorValues restores cursor values for the pending listing.
// JSON round-trips the occurrence count as float64.
func unmatchedCursorValues(cursor pagination.Cursor) ([]any, bool) {
	if len(cursor.StartAfter) != 2 {
		return nil, false
	}
	var occurrences int
	switch v := cursor.StartAfter[0].(type) {
	case int:
		occurrences = v
	case float64:
		occurrences = int(v)
	default:
		return nil, false
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok {
		return nil, false
	}
	return []any{occurrences, id}, true
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(pfirestore.WrapError("", err), &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func encodeUnmatched(_ context.Context, entry domain.UnmatchedName) (any, error) {
	doc := unmatchedNameDocument{
		RawName:     entry.RawName,
		Scope:       entry.Scope,
		Destination: entry.Destination,
		Status:      string(entry.Status),
		Occurrences: entry.Occurrences,
		FirstSeenAt: entry.FirstSeenAt.UTC(),
		LastSeenAt:  entry.LastSeenAt.UTC(),
		ResolvedTo:  entry.ResolvedTo,
		CreatedAt:   entry.CreatedAt.UTC(),
		UpdatedAt:   entry.UpdatedAt.UTC(),
	}
	if entry.ResolvedAt != nil {
		resolved := entry.ResolvedAt.UTC()
		doc.ResolvedAt = &resolved
	}
	if entry.DismissedAt != nil {
		dismissed := entry.DismissedAt.UTC()
		doc.DismissedAt = &dismissed
	}
	return doc, nil
}

func decodeUnmatched(_ context.Context, snap *firestore.DocumentSnapshot) (domain.UnmatchedName, error) {
	var doc unmatchedNameDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.UnmatchedName{}, err
	}
	entry := domain.UnmatchedName{
		ID:          snap.Ref.ID,
		RawName:     doc.RawName,
		Scope:       doc.Scope,
		Destination: doc.Destination,
		Status:      domain.UnmatchedStatus(doc.Status),
		Occurrences: doc.Occurrences,
		FirstSeenAt: doc.FirstSeenAt.UTC(),
		LastSeenAt:  doc.LastSeenAt.UTC(),
		ResolvedTo:  doc.ResolvedTo,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}
	if doc.ResolvedAt != nil {
		resolved := doc.ResolvedAt.UTC()
		entry.ResolvedAt = &resolved
	}
	if doc.DismissedAt != nil {
		dismissed := doc.DismissedAt.UTC()
		entry.DismissedAt = &dismissed
	}
	return entry, nil
}

type unmatchedNameDocument struct {
	RawName     string     `firestore:"rawName"`
	Scope       string     `firestore:"scope"`
	Destination string     `firestore:"destination,omitempty"`
	Status      string     `firestore:"status"`
	Occurrences int        `firestore:"occurrences"`
	FirstSeenAt time.Time  `firestore:"firstSeenAt"`
	LastSeenAt  time.Time  `firestore:"lastSeenAt"`
	ResolvedTo  string     `firestore:"resolvedTo,omitempty"`
	ResolvedAt  *time.Time `firestore:"resolvedAt,omitempty"`
	DismissedAt *time.Time `firestore:"dismissedAt,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

var _ repositories.UnmatchedRepository = (*UnmatchedRepository)(nil)
