// Package firestore contains the Firestore-backed repository implementations.
package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/hallpass-app/api/internal/domain"
	pfirestore "github.com/hallpass-app/api/internal/platform/firestore"
	"github.com/hallpass-app/api/internal/repositories"
)

const studentsCollection = "students"

// directoryScanLimit bounds how many active students one search reads.
// Firestore has no substring operator, so containment is checked in
// memory over the active population; the bound keeps the read finite on
// directories far larger than any single school.
const directoryScanLimit = 5000

// StudentDirectoryRepository reads the canonical student directory.
type StudentDirectoryRepository struct {
	base *pfirestore.BaseRepository[domain.Student]
}

// NewStudentDirectoryRepository constructs a Firestore-backed directory reader.
func NewStudentDirectoryRepository(provider *pfirestore.Provider) (*StudentDirectoryRepository, error) {
	if provider == nil {
		return nil, errors.New("student repository: firestore provider is required")
	}

	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.Student, error) {
		var doc studentDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Student{}, err
		}
		doc.ID = snap.Ref.ID
		return decodeStudentDocument(doc), nil
	}
	encoder := func(ctx context.Context, value domain.Student) (any, error) {
		return encodeStudentDocument(value), nil
	}

	base := pfirestore.NewBaseRepository[domain.Student](provider, studentsCollection, encoder, decoder)
	return &StudentDirectoryRepository{base: base}, nil
}

// FindByID loads one student by identifier.
func (r *StudentDirectoryRepository) FindByID(ctx context.Context, studentID string) (domain.Student, error) {
	if r == nil || r.base == nil {
		return domain.Student{}, errors.New("student repository not initialised")
	}
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return domain.Student{}, errors.New("student repository: id is required")
	}
	doc, err := r.base.Get(ctx, studentID)
	if err != nil {
		return domain.Student{}, err
	}
	return doc.Data, nil
}

// Search returns active students whose first or last name contains the
// query, case-insensitively. Containment runs in memory over a bounded
// scan of the active population; the query is matched whole, not token
// by token, so "mit" finds "Smith".
func (r *StudentDirectoryRepository) Search(ctx context.Context, query string, limit int) ([]domain.Student, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("student repository not initialised")
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}
	if limit <= 0 {
		return nil, errors.New("student repository: limit must be positive")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("active", "==", true).
			OrderBy("lastNameLower", firestore.Asc).
			Limit(directoryScanLimit)
	})
	if err != nil {
		return nil, err
	}

	students := make([]domain.Student, 0, len(docs))
	for _, doc := range docs {
		students = append(students, doc.Data)
	}
	return selectDirectoryMatches(students, needle, limit), nil
}

// selectDirectoryMatches keeps students whose lowercased first or last
// name contains needle, ordered by last name, first name, then ID, and
// capped at limit.
func selectDirectoryMatches(students []domain.Student, needle string, limit int) []domain.Student {
	matched := make([]domain.Student, 0, limit)
	for _, student := range students {
		first := strings.ToLower(student.FirstName)
		last := strings.ToLower(student.LastName)
		if strings.Contains(first, needle) || strings.Contains(last, needle) {
			matched = append(matched, student)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		left := strings.ToLower(matched[i].LastName)
		right := strings.ToLower(matched[j].LastName)
		if left != right {
			return left < right
		}
		leftFirst := strings.ToLower(matched[i].FirstName)
		rightFirst := strings.ToLower(matched[j].FirstName)
		if leftFirst != rightFirst {
			return leftFirst < rightFirst
		}
		return matched[i].ID < matched[j].ID
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func encodeStudentDocument(student domain.Student) studentDocument {
	return studentDocument{
		FirstName:      strings.TrimSpace(student.FirstName),
		LastName:       strings.TrimSpace(student.LastName),
		FirstNameLower: strings.ToLower(strings.TrimSpace(student.FirstName)),
		LastNameLower:  strings.ToLower(strings.TrimSpace(student.LastName)),
		Active:         student.Active,
		CreatedAt:      student.CreatedAt.UTC(),
		UpdatedAt:      student.UpdatedAt.UTC(),
	}
}

func decodeStudentDocument(doc studentDocument) domain.Student {
	return domain.Student{
		ID:        doc.ID,
		FirstName: doc.FirstName,
		LastName:  doc.LastName,
		Active:    doc.Active,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
}

type studentDocument struct {
	ID             string    `firestore:"-"`
	FirstName      string    `firestore:"firstName"`
	LastName       string    `firestore:"lastName"`
	FirstNameLower string    `firestore:"firstNameLower"`
	LastNameLower  string    `firestore:"lastNameLower"`
	Active         bool      `firestore:"active"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func notFoundError(op string, message string) error {
	return pfirestore.WrapError(op, status.Error(codes.NotFound, message))
}

func conflictError(op string, message string) error {
	return pfirestore.WrapError(op, status.Error(codes.FailedPrecondition, message))
}

var _ repositories.StudentDirectoryRepository = (*StudentDirectoryRepository)(nil)
