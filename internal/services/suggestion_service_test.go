package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/hallpass-app/api/internal/domain"
	"github.com/hallpass-app/api/internal/matching"
)

type fakeRosterRepo struct {
	mu      sync.Mutex
	entries map[string][]domain.RosterEntry
	err     error
	calls   int
}

func (f *fakeRosterRepo) ListByScope(ctx context.Context, scope string) ([]domain.RosterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[scope], nil
}

type fakeDirectoryRepo struct {
	mu       sync.Mutex
	students map[string]domain.Student
	results  []domain.Student
	err      error
	queries  []string
}

func (f *fakeDirectoryRepo) FindByID(ctx context.Context, studentID string) (domain.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	student, ok := f.students[studentID]
	if !ok {
		return domain.Student{}, fakeRepoError{notFound: true}
	}
	return student, nil
}

func (f *fakeDirectoryRepo) Search(ctx context.Context, query string, limit int) ([]domain.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeDirectoryRepo) queryLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.queries))
	copy(out, f.queries)
	return out
}

type fakeRepoError struct {
	notFound bool
	conflict bool
}

func (e fakeRepoError) Error() string       { return "fake repository error" }
func (e fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e fakeRepoError) IsConflict() bool    { return e.conflict }
func (e fakeRepoError) IsUnavailable() bool { return !e.notFound && !e.conflict }

func newSuggestionFixture(t *testing.T, rosters *fakeRosterRepo, directory *fakeDirectoryRepo, debounceInterval time.Duration) SuggestionService {
	t.Helper()
	svc, err := NewSuggestionService(SuggestionServiceDeps{
		Rosters:          rosters,
		Directory:        directory,
		CatchAllScope:    "Other",
		DebounceInterval: debounceInterval,
	})
	if err != nil {
		t.Fatalf("NewSuggestionService returned error: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func TestSuggestRosterStrategy(t *testing.T) {
	rosters := &fakeRosterRepo{entries: map[string][]domain.RosterEntry{
		"Period 3": {
			{StudentID: "stu_1", DisplayName: "John Smith"},
			{StudentID: "stu_2", DisplayName: "Jane Smith"},
		},
	}}
	svc := newSuggestionFixture(t, rosters, &fakeDirectoryRepo{}, time.Millisecond)

	result, err := svc.Suggest(context.Background(), SuggestQuery{Scope: "Period 3", Input: "john"})
	if err != nil {
		t.Fatalf("Suggest returned error: %v", err)
	}
	if result.Strategy != matching.StrategyRoster {
		t.Fatalf("expected roster strategy, got %q", result.Strategy)
	}
	if len(result.Panel.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(result.Panel.Candidates))
	}
	if result.Panel.Candidates[0].Entry.StudentID != "stu_1" {
		t.Fatalf("unexpected candidate %+v", result.Panel.Candidates[0])
	}
}

func TestSuggestCachesRosterUntilInvalidated(t *testing.T) {
	rosters := &fakeRosterRepo{entries: map[string][]domain.RosterEntry{
		"Period 3": {{StudentID: "stu_1", DisplayName: "John Smith"}},
	}}
	svc := newSuggestionFixture(t, rosters, &fakeDirectoryRepo{}, time.Millisecond)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := svc.Suggest(ctx, SuggestQuery{Scope: "Period 3", Input: "jo"}); err != nil {
			t.Fatalf("Suggest returned error: %v", err)
		}
	}
	if rosters.calls != 1 {
		t.Fatalf("expected 1 roster load, got %d", rosters.calls)
	}

	svc.InvalidateRoster("Period 3")
	if _, err := svc.Suggest(ctx, SuggestQuery{Scope: "Period 3", Input: "jo"}); err != nil {
		t.Fatalf("Suggest returned error: %v", err)
	}
	if rosters.calls != 2 {
		t.Fatalf("expected reload after invalidation, got %d loads", rosters.calls)
	}
}

func TestSuggestDirectoryStrategyForCatchAllScope(t *testing.T) {
	directory := &fakeDirectoryRepo{results: []domain.Student{
		{ID: "stu_9", FirstName: "Sam", LastName: "Miller", Active: true},
	}}
	svc := newSuggestionFixture(t, &fakeRosterRepo{}, directory, time.Millisecond)

	result, err := svc.Suggest(context.Background(), SuggestQuery{Scope: "Other", Input: "mil"})
	if err != nil {
		t.Fatalf("Suggest returned error: %v", err)
	}
	if result.Strategy != matching.StrategyDirectory {
		t.Fatalf("expected directory strategy, got %q", result.Strategy)
	}
	if len(result.Directory) != 1 || result.Directory[0].DisplayName != "Sam Miller" {
		t.Fatalf("unexpected directory hits %+v", result.Directory)
	}
}

func TestSearchDirectorySkipsShortQueries(t *testing.T) {
	directory := &fakeDirectoryRepo{}
	svc := newSuggestionFixture(t, &fakeRosterRepo{}, directory, time.Millisecond)

	hits, err := svc.SearchDirectory(context.Background(), DirectorySearchQuery{Query: "s"})
	if err != nil {
		t.Fatalf("SearchDirectory returned error: %v", err)
	}
	if hits != nil {
		t.Fatalf("expected no hits, got %+v", hits)
	}
	if calls := directory.queryLog(); len(calls) != 0 {
		t.Fatalf("expected no repository calls for a short query, got %v", calls)
	}
}

func TestSearchDirectoryDebouncesPerSession(t *testing.T) {
	directory := &fakeDirectoryRepo{results: []domain.Student{
		{ID: "stu_5", FirstName: "Sam", LastName: "Mills", Active: true},
	}}
	svc := newSuggestionFixture(t, &fakeRosterRepo{}, directory, 40*time.Millisecond)

	ctx := context.Background()
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.SearchDirectory(ctx, DirectorySearchQuery{SessionID: "kiosk-1", Query: "sm"})
		firstErr <- err
	}()

	// Let the first query register before superseding it.
	time.Sleep(10 * time.Millisecond)

	hits, err := svc.SearchDirectory(ctx, DirectorySearchQuery{SessionID: "kiosk-1", Query: "smi"})
	if err != nil {
		t.Fatalf("SearchDirectory returned error: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "stu_5" {
		t.Fatalf("unexpected hits %+v", hits)
	}

	select {
	case err := <-firstErr:
		if !errors.Is(err, ErrSearchSuperseded) {
			t.Fatalf("expected ErrSearchSuperseded for the first query, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first query never completed")
	}

	queries := directory.queryLog()
	if len(queries) != 1 || queries[0] != "smi" {
		t.Fatalf("expected exactly one search for %q, got %v", "smi", queries)
	}
}

func TestSuggestRequiresScope(t *testing.T) {
	svc := newSuggestionFixture(t, &fakeRosterRepo{}, &fakeDirectoryRepo{}, time.Millisecond)
	if _, err := svc.Suggest(context.Background(), SuggestQuery{Input: "jo"}); !errors.Is(err, ErrSuggestionInvalidInput) {
		t.Fatalf("expected ErrSuggestionInvalidInput, got %v", err)
	}
}
