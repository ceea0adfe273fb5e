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

const passesCollection = "passes"

// PassRepository persists sign-out records.
type PassRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.Pass]
}

// NewPassRepository constructs a Firestore-backed pass repository.
func NewPassRepository(provider *pfirestore.Provider) (*PassRepository, error) {
	if provider == nil {
		return nil, errors.New("pass repository: firestore provider is required")
	}

	encoder := func(ctx context.Context, value domain.Pass) (any, error) {
		return encodePassDocument(value), nil
	}
	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.Pass, error) {
		var doc passDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Pass{}, err
		}
		doc.ID = snap.Ref.ID
		return decodePassDocument(doc), nil
	}

	base := pfirestore.NewBaseRepository[domain.Pass](provider, passesCollection, encoder, decoder)
	return &PassRepository{provider: provider, base: base}, nil
}

// Insert stores a new pass document. The caller assigns the ID.
func (r *PassRepository) Insert(ctx context.Context, pass domain.Pass) error {
	if r == nil || r.base == nil {
		return errors.New("pass repository not initialised")
	}
	pass.ID = strings.TrimSpace(pass.ID)
	if pass.ID == "" {
		return errors.New("pass repository: id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, pass.ID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodePassDocument(pass)); err != nil {
		return pfirestore.WrapError("passes.insert", err)
	}
	return nil
}

// FindByID loads one pass by identifier.
func (r *PassRepository) FindByID(ctx context.Context, passID string) (domain.Pass, error) {
	if r == nil || r.base == nil {
		return domain.Pass{}, errors.New("pass repository not initialised")
	}
	passID = strings.TrimSpace(passID)
	if passID == "" {
		return domain.Pass{}, errors.New("pass repository: id is required")
	}
	doc, err := r.base.Get(ctx, passID)
	if err != nil {
		return domain.Pass{}, err
	}
	return doc.Data, nil
}

// Return closes an open pass. Closing an already-returned pass is a conflict.
func (r *PassRepository) Return(ctx context.Context, passID string, returnedAt time.Time) (domain.Pass, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.Pass{}, errors.New("pass repository not initialised")
	}
	passID = strings.TrimSpace(passID)
	if passID == "" {
		return domain.Pass{}, errors.New("pass repository: id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Pass{}, err
	}
	docRef, err := r.base.DocumentRef(ctx, passID)
	if err != nil {
		return domain.Pass{}, err
	}

	var updated domain.Pass
	txErr := pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		doc, err := r.base.Decode(ctx, snap)
		if err != nil {
			return err
		}
		pass := doc.Data
		if pass.Status != domain.PassStatusOut {
			return conflictError("passes.return", "pass already returned")
		}

		closedAt := returnedAt.UTC()
		pass.Status = domain.PassStatusReturned
		pass.ReturnedAt = &closedAt
		pass.UpdatedAt = closedAt
		updated = pass

		return tx.Update(docRef, []firestore.Update{
			{Path: "status", Value: string(domain.PassStatusReturned)},
			{Path: "returnedAt", Value: closedAt},
			{Path: "updatedAt", Value: closedAt},
		})
	})
	if txErr != nil {
		return domain.Pass{}, pfirestore.WrapError("passes.return", txErr)
	}
	return updated, nil
}

// ListActive returns open passes ordered by sign-out time, newest first.
// An empty scope lists all scopes.
func (r *PassRepository) ListActive(ctx context.Context, scope string, pager domain.Pagination) (domain.CursorPage[domain.Pass], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Pass]{}, errors.New("pass repository not initialised")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Pass]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.PassStatusOut))
		if strings.TrimSpace(scope) != "" {
			q = q.Where("scope", "==", strings.TrimSpace(scope))
		}
		q = q.OrderBy("leftAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc)
		if values, ok := passCursorValues(cursor); ok {
			q = q.StartAfter(values...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Pass]{}, err
	}

	page := domain.CursorPage[domain.Pass]{}
	for i, doc := range docs {
		if i == pageSize {
			last := page.Items[len(page.Items)-1]
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{last.LeftAt.UTC().Format(time.RFC3339Nano), last.ID},
			})
			if err != nil {
				return domain.CursorPage[domain.Pass]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data)
	}
	return page, nil
}

// passCursorValues converts the decoded token back into Firestore cursor
// values. The sign-out time travels through the token as RFC 3339 text and
// must be restored to a timestamp before Firestore will compare it.
func passCursorValues(cursor pagination.Cursor) ([]any, bool) {
	if len(cursor.StartAfter) != 2 {
		return nil, false
	}
	rawTime, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, false
	}
	leftAt, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return nil, false
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok {
		return nil, false
	}
	return []any{leftAt, id}, true
}

func encodePassDocument(pass domain.Pass) passDocument {
	doc := passDocument{
		Scope:        strings.TrimSpace(pass.Scope),
		StudentID:    strings.TrimSpace(pass.StudentID),
		StudentName:  strings.TrimSpace(pass.StudentName),
		RawName:      pass.RawName,
		RawNameKey:   matching.NormalizeKey(pass.RawName),
		Destination:  strings.TrimSpace(pass.Destination),
		Status:       string(pass.Status),
		Override:     pass.Override,
		AuthorizedBy: strings.TrimSpace(pass.AuthorizedBy),
		LeftAt:       pass.LeftAt.UTC(),
		CreatedAt:    pass.CreatedAt.UTC(),
		UpdatedAt:    pass.UpdatedAt.UTC(),
	}
	if pass.ReturnedAt != nil {
		returned := pass.ReturnedAt.UTC()
		doc.ReturnedAt = &returned
	}
	return doc
}

func decodePassDocument(doc passDocument) domain.Pass {
	pass := domain.Pass{
		ID:           doc.ID,
		Scope:        doc.Scope,
		StudentID:    doc.StudentID,
		StudentName:  doc.StudentName,
		RawName:      doc.RawName,
		Destination:  doc.Destination,
		Status:       domain.PassStatus(doc.Status),
		Override:     doc.Override,
		AuthorizedBy: doc.AuthorizedBy,
		LeftAt:       doc.LeftAt.UTC(),
		CreatedAt:    doc.CreatedAt.UTC(),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}
	if doc.ReturnedAt != nil {
		returned := doc.ReturnedAt.UTC()
		pass.ReturnedAt = &returned
	}
	return pass
}

type passDocument struct {
	ID           string     `firestore:"-"`
	Scope        string     `firestore:"scope"`
	StudentID    string     `firestore:"studentId"`
	StudentName  string     `firestore:"studentName"`
	RawName      string     `firestore:"rawName"`
	RawNameKey   string     `firestore:"rawNameKey"`
	Destination  string     `firestore:"destination"`
	Status       string     `firestore:"status"`
	Override     bool       `firestore:"override"`
	AuthorizedBy string     `firestore:"authorizedBy,omitempty"`
	LeftAt       time.Time  `firestore:"leftAt"`
	ReturnedAt   *time.Time `firestore:"returnedAt,omitempty"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	UpdatedAt    time.Time  `firestore:"updatedAt"`
}

var _ repositories.PassRepository = (*PassRepository)(nil)
