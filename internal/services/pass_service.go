package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	domain "github.com/hallpass-app/api/internal/domain"
	"github.com/hallpass-app/api/internal/matching"
	"github.com/hallpass-app/api/internal/platform/pagination"
	"github.com/hallpass-app/api/internal/repositories"
)

// ErrPassInvalidInput indicates a missing scope, destination, or name.
var ErrPassInvalidInput = errors.New("passes: invalid input")

// ErrPassNotFound indicates the pass does not exist.
var ErrPassNotFound = errors.New("passes: not found")

// ErrPassAlreadyReturned indicates the pass was already closed.
var ErrPassAlreadyReturned = errors.New("passes: already returned")

// ErrPassStudentNotFound indicates the referenced student does not exist or
// is inactive.
var ErrPassStudentNotFound = errors.New("passes: student not found")

// ErrPassPINRejected indicates the override PIN did not match.
var ErrPassPINRejected = errors.New("passes: override pin rejected")

// ErrPassUnavailable indicates the backing store failed.
var ErrPassUnavailable = errors.New("passes: backend unavailable")

const passIDPrefix = "pass_"

// OverrideAuthorizer checks the shared override PIN.
type OverrideAuthorizer interface {
	Verify(pin string) error
}

// PassServiceDeps wires the pass service dependencies.
type PassServiceDeps struct {
	Passes     repositories.PassRepository
	Students   repositories.StudentDirectoryRepository
	Synonyms   repositories.SynonymRepository
	Unmatched  repositories.UnmatchedRepository
	Publisher  PassEventPublisher
	Authorizer OverrideAuthorizer

	Logger      *zap.Logger
	Clock       func() time.Time
	IDGenerator func() string
}

type passService struct {
	passes     repositories.PassRepository
	students   repositories.StudentDirectoryRepository
	synonyms   repositories.SynonymRepository
	unmatched  repositories.UnmatchedRepository
	publisher  PassEventPublisher
	authorizer OverrideAuthorizer

	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewPassService constructs the pass lifecycle service.
func NewPassService(deps PassServiceDeps) (PassService, error) {
	if deps.Passes == nil {
		return nil, errors.New("passes: pass repository is required")
	}
	if deps.Students == nil {
		return nil, errors.New("passes: student repository is required")
	}
	if deps.Synonyms == nil {
		return nil, errors.New("passes: synonym repository is required")
	}
	if deps.Unmatched == nil {
		return nil, errors.New("passes: unmatched repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &passService{
		passes:     deps.Passes,
		students:   deps.Students,
		synonyms:   deps.Synonyms,
		unmatched:  deps.Unmatched,
		publisher:  deps.Publisher,
		authorizer: deps.Authorizer,
		logger:     logger,
		now:        func() time.Time { return clock().UTC() },
		newID:      func() string { return passIDPrefix + strings.ToLower(idGen()) },
	}, nil
}

// CreatePass signs a student out. A bound student ID wins; a raw name is
// first auto-resolved through the synonym table, and a raw name that still
// does not resolve produces an unresolved pass plus a queue occurrence.
func (s *passService) CreatePass(ctx context.Context, cmd CreatePassCommand) (domain.Pass, error) {
	scope := strings.TrimSpace(cmd.Scope)
	destination := strings.TrimSpace(cmd.Destination)
	studentID := strings.TrimSpace(cmd.StudentID)
	rawName := strings.TrimSpace(cmd.RawName)

	if scope == "" || destination == "" {
		return domain.Pass{}, ErrPassInvalidInput
	}
	if studentID == "" && len(matching.Tokenize(rawName)) == 0 {
		return domain.Pass{}, ErrPassInvalidInput
	}

	now := s.now()
	pass := domain.Pass{
		ID:          s.newID(),
		Scope:       scope,
		RawName:     rawName,
		Destination: destination,
		Status:      domain.PassStatusOut,
		LeftAt:      now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	switch {
	case studentID != "":
		student, err := s.loadStudent(ctx, studentID)
		if err != nil {
			return domain.Pass{}, err
		}
		pass.StudentID = student.ID
		pass.StudentName = student.DisplayName()
	default:
		if student, ok := s.resolveSynonym(ctx, rawName); ok {
			pass.StudentID = student.ID
			pass.StudentName = student.DisplayName()
		}
	}

	if err := s.passes.Insert(ctx, pass); err != nil {
		s.logger.Error("pass insert failed", zap.String("scope", scope), zap.Error(err))
		return domain.Pass{}, ErrPassUnavailable
	}

	if !pass.Resolved() {
		_, err := s.unmatched.UpsertOccurrence(ctx, repositories.UnmatchedOccurrence{
			RawName:     rawName,
			Scope:       scope,
			Destination: destination,
			SeenAt:      now,
		})
		if err != nil {
			// The pass itself is already recorded; losing one queue bump is
			// recoverable the next time the name is typed.
			s.logger.Warn("unmatched occurrence record failed",
				zap.String("pass_id", pass.ID), zap.Error(err))
		}
	}

	s.publish(ctx, PassEventCreated, pass)
	return pass, nil
}

// CreateOverridePass is the authorized bypass: a supervising party picks a
// roster student directly and vouches with the shared PIN. A submission
// without a bound student ID is rejected outright.
func (s *passService) CreateOverridePass(ctx context.Context, cmd OverridePassCommand) (domain.Pass, error) {
	scope := strings.TrimSpace(cmd.Scope)
	destination := strings.TrimSpace(cmd.Destination)
	studentID := strings.TrimSpace(cmd.StudentID)

	if scope == "" || destination == "" || studentID == "" {
		return domain.Pass{}, ErrPassInvalidInput
	}
	if s.authorizer == nil {
		return domain.Pass{}, ErrPassUnavailable
	}
	if err := s.authorizer.Verify(cmd.PIN); err != nil {
		s.logger.Warn("override pin rejected", zap.String("scope", scope))
		return domain.Pass{}, ErrPassPINRejected
	}

	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return domain.Pass{}, err
	}

	now := s.now()
	pass := domain.Pass{
		ID:           s.newID(),
		Scope:        scope,
		StudentID:    student.ID,
		StudentName:  student.DisplayName(),
		Destination:  destination,
		Status:       domain.PassStatusOut,
		Override:     true,
		AuthorizedBy: strings.TrimSpace(cmd.AuthorizedBy),
		LeftAt:       now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.passes.Insert(ctx, pass); err != nil {
		s.logger.Error("override pass insert failed", zap.String("scope", scope), zap.Error(err))
		return domain.Pass{}, ErrPassUnavailable
	}

	s.publish(ctx, PassEventCreated, pass)
	return pass, nil
}

// ReturnPass signs the student back in.
func (s *passService) ReturnPass(ctx context.Context, passID string) (domain.Pass, error) {
	passID = strings.TrimSpace(passID)
	if passID == "" {
		return domain.Pass{}, ErrPassInvalidInput
	}

	pass, err := s.passes.Return(ctx, passID, s.now())
	if err != nil {
		switch {
		case isRepoNotFound(err):
			return domain.Pass{}, ErrPassNotFound
		case isRepoConflict(err):
			return domain.Pass{}, ErrPassAlreadyReturned
		default:
			s.logger.Error("pass return failed", zap.String("pass_id", passID), zap.Error(err))
			return domain.Pass{}, ErrPassUnavailable
		}
	}

	s.publish(ctx, PassEventReturned, pass)
	return pass, nil
}

// ListActive pages through currently-out passes, newest sign-out first.
func (s *passService) ListActive(ctx context.Context, query ActivePassQuery) (domain.CursorPage[domain.Pass], error) {
	page, err := s.passes.ListActive(ctx, strings.TrimSpace(query.Scope), domain.Pagination{
		PageSize:  query.PageSize,
		PageToken: strings.TrimSpace(query.PageToken),
	})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.CursorPage[domain.Pass]{}, ErrPassInvalidInput
		}
		s.logger.Error("active pass list failed", zap.Error(err))
		return domain.CursorPage[domain.Pass]{}, ErrPassUnavailable
	}
	return page, nil
}

func (s *passService) loadStudent(ctx context.Context, studentID string) (domain.Student, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Student{}, ErrPassStudentNotFound
		}
		s.logger.Error("student lookup failed", zap.String("student_id", studentID), zap.Error(err))
		return domain.Student{}, ErrPassUnavailable
	}
	if !student.Active {
		return domain.Student{}, ErrPassStudentNotFound
	}
	return student, nil
}

// resolveSynonym tries the durable raw-name binding. Any failure falls back
// to the unresolved path; a stale synonym pointing at a vanished student is
// logged and ignored.
func (s *passService) resolveSynonym(ctx context.Context, rawName string) (domain.Student, bool) {
	synonym, err := s.synonyms.FindByRawName(ctx, rawName)
	if err != nil {
		if !isRepoNotFound(err) {
			s.logger.Warn("synonym lookup failed", zap.Error(err))
		}
		return domain.Student{}, false
	}

	student, err := s.students.FindByID(ctx, synonym.StudentID)
	if err != nil || !student.Active {
		s.logger.Warn("synonym points at unusable student",
			zap.String("student_id", synonym.StudentID), zap.Error(err))
		return domain.Student{}, false
	}
	return student, true
}

// publish emits the lifecycle event best effort; the pass record is the
// source of truth and a missed event only delays a dashboard refresh.
func (s *passService) publish(ctx context.Context, eventType string, pass domain.Pass) {
	if s.publisher == nil {
		return
	}
	_, err := s.publisher.PublishPassEvent(ctx, PassEventMessage{
		EventID:     strings.ToLower(ulid.Make().String()),
		Type:        eventType,
		PassID:      pass.ID,
		Scope:       pass.Scope,
		StudentID:   pass.StudentID,
		StudentName: pass.StudentName,
		Destination: pass.Destination,
		OccurredAt:  s.now(),
	})
	if err != nil {
		s.logger.Warn("pass event publish failed",
			zap.String("pass_id", pass.ID), zap.String("event_type", eventType), zap.Error(err))
	}
}

var _ PassService = (*passService)(nil)
