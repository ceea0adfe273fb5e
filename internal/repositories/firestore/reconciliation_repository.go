package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/hallpass-app/api/internal/domain"
	pfirestore "github.com/hallpass-app/api/internal/platform/firestore"
	"github.com/hallpass-app/api/internal/repositories"
)

// ReconciliationRepository applies resolution decisions across the pass,
// synonym, and queue collections in one transaction.
type ReconciliationRepository struct {
	provider  *pfirestore.Provider
	passes    *pfirestore.BaseRepository[domain.Pass]
	synonyms  *pfirestore.BaseRepository[domain.NameSynonym]
	unmatched *pfirestore.BaseRepository[domain.UnmatchedName]
}

// NewReconciliationRepository constructs the transactional resolve repository.
func NewReconciliationRepository(provider *pfirestore.Provider) (*ReconciliationRepository, error) {
	if provider == nil {
		return nil, errors.New("reconciliation repository: firestore provider is required")
	}
	return &ReconciliationRepository{
		provider:  provider,
		passes:    pfirestore.NewBaseRepository[domain.Pass](provider, passesCollection, func(ctx context.Context, v domain.Pass) (any, error) { return encodePassDocument(v), nil }, nil),
		synonyms:  pfirestore.NewBaseRepository[domain.NameSynonym](provider, nameSynonymsCollection, encodeSynonym, decodeSynonym),
		unmatched: pfirestore.NewBaseRepository[domain.UnmatchedName](provider, unmatchedNamesCollection, encodeUnmatched, decodeUnmatched),
	}, nil
}

// Resolve binds a queue entry to a student. Inside one transaction it
// relabels every unresolved pass carrying the raw name, upserts the synonym
// keyed by the normalized raw name, and marks the entry resolved. Resolving
// an entry already bound to the same student reports zero updated records;
// a pending-state conflict with a different student is rejected.
func (r *ReconciliationRepository) Resolve(ctx context.Context, cmd repositories.ResolveCommand) (domain.ResolutionResult, error) {
	if r == nil || r.provider == nil {
		return domain.ResolutionResult{}, errors.New("reconciliation repository not initialised")
	}
	cmd.EntryID = strings.TrimSpace(cmd.EntryID)
	cmd.StudentID = strings.TrimSpace(cmd.StudentID)
	if cmd.EntryID == "" {
		return domain.ResolutionResult{}, errors.New("reconciliation repository: entry id is required")
	}
	if cmd.StudentID == "" {
		return domain.ResolutionResult{}, errors.New("reconciliation repository: student id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.ResolutionResult{}, err
	}
	entryRef, err := r.unmatched.DocumentRef(ctx, cmd.EntryID)
	if err != nil {
		return domain.ResolutionResult{}, err
	}
	passColl, err := r.passes.CollectionRef(ctx)
	if err != nil {
		return domain.ResolutionResult{}, err
	}

	now := cmd.Now.UTC()
	var result domain.ResolutionResult
	txErr := pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(entryRef)
		if err != nil {
			return err
		}
		entryDoc, err := r.unmatched.Decode(ctx, snap)
		if err != nil {
			return err
		}
		entry := entryDoc.Data

		switch entry.Status {
		case domain.UnmatchedStatusResolved:
			if entry.ResolvedTo == cmd.StudentID {
				result = domain.ResolutionResult{
					RawName:        entry.RawName,
					StudentID:      cmd.StudentID,
					StudentName:    cmd.StudentName,
					RecordsUpdated: 0,
				}
				return nil
			}
			return conflictError("reconciliation.resolve", "entry already resolved to a different student")
		case domain.UnmatchedStatusDismissed:
			return conflictError("reconciliation.resolve", "entry was dismissed")
		}

		// All reads happen before the first write; Firestore rejects
		// interleaved read-after-write inside a transaction.
		query := passColl.
			Where("rawNameKey", "==", entry.ID).
			Where("studentId", "==", "")
		iter := tx.Documents(query)
		defer iter.Stop()

		var passRefs []*firestore.DocumentRef
		for {
			passSnap, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return err
			}
			passRefs = append(passRefs, passSnap.Ref)
		}

		for _, ref := range passRefs {
			err := tx.Update(ref, []firestore.Update{
				{Path: "studentId", Value: cmd.StudentID},
				{Path: "studentName", Value: cmd.StudentName},
				{Path: "updatedAt", Value: now},
			})
			if err != nil {
				return err
			}
		}

		synonymRef, err := r.synonyms.DocumentRef(ctx, entry.ID)
		if err != nil {
			return err
		}
		synonymPayload, err := r.synonyms.Encode(ctx, domain.NameSynonym{
			RawName:   entry.RawName,
			StudentID: cmd.StudentID,
			CreatedBy: cmd.ResolvedBy,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		if err := tx.Set(synonymRef, synonymPayload); err != nil {
			return err
		}

		err = tx.Update(entryRef, []firestore.Update{
			{Path: "status", Value: string(domain.UnmatchedStatusResolved)},
			{Path: "resolvedTo", Value: cmd.StudentID},
			{Path: "resolvedAt", Value: now},
			{Path: "updatedAt", Value: now},
		})
		if err != nil {
			return err
		}

		result = domain.ResolutionResult{
			RawName:        entry.RawName,
			StudentID:      cmd.StudentID,
			StudentName:    cmd.StudentName,
			RecordsUpdated: len(passRefs),
		}
		return nil
	})
	if txErr != nil {
		return domain.ResolutionResult{}, pfirestore.WrapError("reconciliation.resolve", txErr)
	}
	return result, nil
}

var _ repositories.ReconciliationRepository = (*ReconciliationRepository)(nil)
