package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	domain "github.com/hallpass-app/api/internal/domain"
	"github.com/hallpass-app/api/internal/platform/pagination"
	"github.com/hallpass-app/api/internal/repositories"
)

// ErrResolutionInvalidInput indicates a missing entry or student reference.
var ErrResolutionInvalidInput = errors.New("reconciliation: invalid input")

// ErrResolutionEntryNotFound indicates the queue entry does not exist.
var ErrResolutionEntryNotFound = errors.New("reconciliation: entry not found")

// ErrResolutionConflict indicates the entry already left the pending state
// in a way incompatible with the request.
var ErrResolutionConflict = errors.New("reconciliation: entry state conflict")

// ErrResolutionStudentNotFound indicates the target student does not exist
// or is inactive.
var ErrResolutionStudentNotFound = errors.New("reconciliation: student not found")

// ErrResolutionUnavailable indicates the backing store failed.
var ErrResolutionUnavailable = errors.New("reconciliation: backend unavailable")

// ResolutionServiceDeps wires the reconciliation service dependencies.
type ResolutionServiceDeps struct {
	Unmatched      repositories.UnmatchedRepository
	Students       repositories.StudentDirectoryRepository
	Reconciliation repositories.ReconciliationRepository
	Publisher      PassEventPublisher

	Logger *zap.Logger
	Clock  func() time.Time
}

type resolutionService struct {
	unmatched      repositories.UnmatchedRepository
	students       repositories.StudentDirectoryRepository
	reconciliation repositories.ReconciliationRepository
	publisher      PassEventPublisher

	logger *zap.Logger
	now    func() time.Time
}

// NewResolutionService constructs the reconciliation queue service.
func NewResolutionService(deps ResolutionServiceDeps) (ResolutionService, error) {
	if deps.Unmatched == nil {
		return nil, errors.New("reconciliation: unmatched repository is required")
	}
	if deps.Students == nil {
		return nil, errors.New("reconciliation: student repository is required")
	}
	if deps.Reconciliation == nil {
		return nil, errors.New("reconciliation: reconciliation repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &resolutionService{
		unmatched:      deps.Unmatched,
		students:       deps.Students,
		reconciliation: deps.Reconciliation,
		publisher:      deps.Publisher,
		logger:         logger,
		now:            func() time.Time { return clock().UTC() },
	}, nil
}

// ListUnmatched pages through the pending queue, most frequent raw names
// first, in either the aggregate or the full-entry view.
func (s *resolutionService) ListUnmatched(ctx context.Context, query UnmatchedQuery) (UnmatchedPage, error) {
	view := query.View
	if view == "" {
		view = UnmatchedViewAggregate
	}
	if view != UnmatchedViewAggregate && view != UnmatchedViewEntries {
		return UnmatchedPage{}, ErrResolutionInvalidInput
	}

	page, err := s.unmatched.ListPending(ctx, domain.Pagination{
		PageSize:  query.PageSize,
		PageToken: strings.TrimSpace(query.PageToken),
	})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return UnmatchedPage{}, ErrResolutionInvalidInput
		}
		s.logger.Error("unmatched list failed", zap.Error(err))
		return UnmatchedPage{}, ErrResolutionUnavailable
	}

	result := UnmatchedPage{View: view, NextPageToken: page.NextPageToken}
	if view == UnmatchedViewEntries {
		result.Entries = page.Items
		return result, nil
	}
	result.Aggregates = make([]domain.UnmatchedAggregate, 0, len(page.Items))
	for _, entry := range page.Items {
		result.Aggregates = append(result.Aggregates, domain.UnmatchedAggregate{
			RawName:         entry.RawName,
			OccurrenceCount: entry.Occurrences,
		})
	}
	return result, nil
}

// Resolve binds a queue entry to a student: relabels the historical passes
// carrying the raw name, records the synonym, and closes the entry, all as
// one atomic unit. Repeating a resolve with the same student succeeds with
// zero updated records.
func (s *resolutionService) Resolve(ctx context.Context, cmd ResolveCommand) (domain.ResolutionResult, error) {
	entryID := strings.TrimSpace(cmd.EntryID)
	studentID := strings.TrimSpace(cmd.StudentID)
	if entryID == "" || studentID == "" {
		return domain.ResolutionResult{}, ErrResolutionInvalidInput
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.ResolutionResult{}, ErrResolutionStudentNotFound
		}
		s.logger.Error("student lookup failed", zap.String("student_id", studentID), zap.Error(err))
		return domain.ResolutionResult{}, ErrResolutionUnavailable
	}
	if !student.Active {
		return domain.ResolutionResult{}, ErrResolutionStudentNotFound
	}

	result, err := s.reconciliation.Resolve(ctx, repositories.ResolveCommand{
		EntryID:     entryID,
		StudentID:   student.ID,
		StudentName: student.DisplayName(),
		ResolvedBy:  strings.TrimSpace(cmd.ResolvedBy),
		Now:         s.now(),
	})
	if err != nil {
		switch {
		case isRepoNotFound(err):
			return domain.ResolutionResult{}, ErrResolutionEntryNotFound
		case isRepoConflict(err):
			return domain.ResolutionResult{}, ErrResolutionConflict
		default:
			s.logger.Error("resolve failed", zap.String("entry_id", entryID), zap.Error(err))
			return domain.ResolutionResult{}, ErrResolutionUnavailable
		}
	}

	s.logger.Info("unmatched name resolved",
		zap.String("entry_id", entryID),
		zap.String("student_id", student.ID),
		zap.Int("records_updated", result.RecordsUpdated))

	if s.publisher != nil && result.RecordsUpdated > 0 {
		_, err := s.publisher.PublishPassEvent(ctx, PassEventMessage{
			EventID:     strings.ToLower(ulid.Make().String()),
			Type:        PassEventResolved,
			StudentID:   student.ID,
			StudentName: student.DisplayName(),
			OccurredAt:  s.now(),
		})
		if err != nil {
			s.logger.Warn("resolve event publish failed", zap.String("entry_id", entryID), zap.Error(err))
		}
	}
	return result, nil
}

// Dismiss closes a pending entry as intentionally ignored: no synonym, no
// relabel, terminal state distinct from resolved.
func (s *resolutionService) Dismiss(ctx context.Context, entryID string) (domain.UnmatchedName, error) {
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return domain.UnmatchedName{}, ErrResolutionInvalidInput
	}

	entry, err := s.unmatched.MarkDismissed(ctx, entryID, s.now())
	if err != nil {
		switch {
		case isRepoNotFound(err):
			return domain.UnmatchedName{}, ErrResolutionEntryNotFound
		case isRepoConflict(err):
			return domain.UnmatchedName{}, ErrResolutionConflict
		default:
			s.logger.Error("dismiss failed", zap.String("entry_id", entryID), zap.Error(err))
			return domain.UnmatchedName{}, ErrResolutionUnavailable
		}
	}
	return entry, nil
}

var _ ResolutionService = (*resolutionService)(nil)
