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
	"github.com/hallpass-app/api/internal/repositories"
)

const nameSynonymsCollection = "name_synonyms"

// SynonymRepository reads raw-name to student bindings. Documents are keyed
// by the normalized raw name so every spelling variant that tokenizes the
// same way shares one binding.
type SynonymRepository struct {
	base *pfirestore.BaseRepository[domain.NameSynonym]
}

// NewSynonymRepository constructs a Firestore-backed synonym reader.
func NewSynonymRepository(provider *pfirestore.Provider) (*SynonymRepository, error) {
	if provider == nil {
		return nil, errors.New("synonym repository: firestore provider is required")
	}

	base := pfirestore.NewBaseRepository[domain.NameSynonym](provider, nameSynonymsCollection, encodeSynonym, decodeSynonym)
	return &SynonymRepository{base: base}, nil
}

// FindByRawName looks up the binding for the normalized form of rawName.
func (r *SynonymRepository) FindByRawName(ctx context.Context, rawName string) (domain.NameSynonym, error) {
	if r == nil || r.base == nil {
		return domain.NameSynonym{}, errors.New("synonym repository not initialised")
	}
	key := matching.NormalizeKey(rawName)
	if key == "" {
		return domain.NameSynonym{}, notFoundError("name_synonyms.find", "raw name normalizes to nothing")
	}
	doc, err := r.base.Get(ctx, key)
	if err != nil {
		return domain.NameSynonym{}, err
	}
	return doc.Data, nil
}

func encodeSynonym(_ context.Context, synonym domain.NameSynonym) (any, error) {
	return nameSynonymDocument{
		RawName:   synonym.RawName,
		StudentID: strings.TrimSpace(synonym.StudentID),
		CreatedBy: strings.TrimSpace(synonym.CreatedBy),
		CreatedAt: synonym.CreatedAt.UTC(),
		UpdatedAt: synonym.UpdatedAt.UTC(),
	}, nil
}

func decodeSynonym(_ context.Context, snap *firestore.DocumentSnapshot) (domain.NameSynonym, error) {
	var doc nameSynonymDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.NameSynonym{}, err
	}
	return domain.NameSynonym{
		ID:        snap.Ref.ID,
		RawName:   doc.RawName,
		StudentID: doc.StudentID,
		CreatedBy: doc.CreatedBy,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}, nil
}

type nameSynonymDocument struct {
	RawName   string    `firestore:"rawName"`
	StudentID string    `firestore:"studentId"`
	CreatedBy string    `firestore:"createdBy,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

var _ repositories.SynonymRepository = (*SynonymRepository)(nil)
