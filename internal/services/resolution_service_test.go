package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hallpass-app/api/internal/domain"
	"github.com/hallpass-app/api/internal/repositories"
)

type fakeReconRepo struct {
	commands []repositories.ResolveCommand
	result   domain.ResolutionResult
	err      error
}

func (f *fakeReconRepo) Resolve(ctx context.Context, cmd repositories.ResolveCommand) (domain.ResolutionResult, error) {
	f.commands = append(f.commands, cmd)
	if f.err != nil {
		return domain.ResolutionResult{}, f.err
	}
	return f.result, nil
}

type resolutionFixture struct {
	svc       ResolutionService
	unmatched *fakeUnmatchedRepo
	recon     *fakeReconRepo
	publisher *fakePublisher
}

func newResolutionFixture(t *testing.T) *resolutionFixture {
	t.Helper()
	fix := &resolutionFixture{
		unmatched: newFakeUnmatchedRepo(),
		recon:     &fakeReconRepo{},
		publisher: &fakePublisher{},
	}
	students := &fakeDirectoryRepo{students: map[string]domain.Student{
		"stu_42": {ID: "stu_42", FirstName: "Jon", LastName: "Smith", Active: true},
		"stu_77": {ID: "stu_77", FirstName: "Ana", LastName: "Perez", Active: false},
	}}

	svc, err := NewResolutionService(ResolutionServiceDeps{
		Unmatched:      fix.unmatched,
		Students:       students,
		Reconciliation: fix.recon,
		Publisher:      fix.publisher,
		Clock:          func() time.Time { return time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewResolutionService returned error: %v", err)
	}
	fix.svc = svc
	return fix
}

func TestListUnmatchedAggregateView(t *testing.T) {
	fix := newResolutionFixture(t)
	fix.unmatched.listPage = domain.CursorPage[domain.UnmatchedName]{
		Items: []domain.UnmatchedName{
			{ID: "jon smth", RawName: "Jon Smth", Occurrences: 4},
			{ID: "zz nobody", RawName: "Zz Nobody", Occurrences: 1},
		},
		NextPageToken: "tok-2",
	}

	page, err := fix.svc.ListUnmatched(context.Background(), UnmatchedQuery{})
	if err != nil {
		t.Fatalf("ListUnmatched returned error: %v", err)
	}
	if page.View != UnmatchedViewAggregate {
		t.Fatalf("expected aggregate view, got %q", page.View)
	}
	if len(page.Aggregates) != 2 {
		t.Fatalf("expected 2 aggregates, got %d", len(page.Aggregates))
	}
	if page.Aggregates[0].RawName != "Jon Smth" || page.Aggregates[0].OccurrenceCount != 4 {
		t.Fatalf("unexpected aggregate %+v", page.Aggregates[0])
	}
	if page.NextPageToken != "tok-2" {
		t.Fatalf("expected page token passthrough, got %q", page.NextPageToken)
	}
	if page.Entries != nil {
		t.Fatal("aggregate view must not include full entries")
	}
}

func TestListUnmatchedEntriesView(t *testing.T) {
	fix := newResolutionFixture(t)
	fix.unmatched.listPage = domain.CursorPage[domain.UnmatchedName]{
		Items: []domain.UnmatchedName{{ID: "jon smth", RawName: "Jon Smth", Scope: "Period 3", Occurrences: 4}},
	}

	page, err := fix.svc.ListUnmatched(context.Background(), UnmatchedQuery{View: UnmatchedViewEntries})
	if err != nil {
		t.Fatalf("ListUnmatched returned error: %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0].Scope != "Period 3" {
		t.Fatalf("unexpected entries %+v", page.Entries)
	}
	if page.Aggregates != nil {
		t.Fatal("entries view must not include aggregates")
	}
}

func TestResolveBindsEntryAndPublishes(t *testing.T) {
	fix := newResolutionFixture(t)
	fix.recon.result = domain.ResolutionResult{
		RawName:        "Jon Smth",
		StudentID:      "stu_42",
		StudentName:    "Jon Smith",
		RecordsUpdated: 4,
	}

	result, err := fix.svc.Resolve(context.Background(), ResolveCommand{
		EntryID:    "jon smth",
		StudentID:  "stu_42",
		ResolvedBy: "staff_7",
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if result.RecordsUpdated != 4 {
		t.Fatalf("expected 4 records updated, got %d", result.RecordsUpdated)
	}

	if len(fix.recon.commands) != 1 {
		t.Fatalf("expected one repository resolve, got %d", len(fix.recon.commands))
	}
	cmd := fix.recon.commands[0]
	if cmd.StudentName != "Jon Smith" || cmd.ResolvedBy != "staff_7" {
		t.Fatalf("unexpected resolve command %+v", cmd)
	}

	events := fix.publisher.published()
	if len(events) != 1 || events[0].Type != PassEventResolved {
		t.Fatalf("expected one resolved event, got %+v", events)
	}
}

func TestResolveIdempotentRepeatSkipsEvent(t *testing.T) {
	fix := newResolutionFixture(t)
	fix.recon.result = domain.ResolutionResult{RawName: "Jon Smth", StudentID: "stu_42", RecordsUpdated: 0}

	result, err := fix.svc.Resolve(context.Background(), ResolveCommand{EntryID: "jon smth", StudentID: "stu_42"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if result.RecordsUpdated != 0 {
		t.Fatalf("expected zero records updated, got %d", result.RecordsUpdated)
	}
	if events := fix.publisher.published(); len(events) != 0 {
		t.Fatalf("repeat resolve must not publish, got %+v", events)
	}
}

func TestResolveRejectsInactiveStudent(t *testing.T) {
	fix := newResolutionFixture(t)
	_, err := fix.svc.Resolve(context.Background(), ResolveCommand{EntryID: "jon smth", StudentID: "stu_77"})
	if !errors.Is(err, ErrResolutionStudentNotFound) {
		t.Fatalf("expected ErrResolutionStudentNotFound, got %v", err)
	}
	if len(fix.recon.commands) != 0 {
		t.Fatal("resolve must not reach the repository for an unusable student")
	}
}

func TestResolveMapsRepositoryErrors(t *testing.T) {
	cases := []struct {
		name    string
		repoErr error
		want    error
	}{
		{"not found", fakeRepoError{notFound: true}, ErrResolutionEntryNotFound},
		{"conflict", fakeRepoError{conflict: true}, ErrResolutionConflict},
		{"unavailable", fakeRepoError{}, ErrResolutionUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fix := newResolutionFixture(t)
			fix.recon.err = tc.repoErr
			_, err := fix.svc.Resolve(context.Background(), ResolveCommand{EntryID: "jon smth", StudentID: "stu_42"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDismissMarksEntryTerminal(t *testing.T) {
	fix := newResolutionFixture(t)
	fix.unmatched.entries["jon smth"] = domain.UnmatchedName{
		ID:      "jon smth",
		RawName: "Jon Smth",
		Status:  domain.UnmatchedStatusPending,
	}

	entry, err := fix.svc.Dismiss(context.Background(), "jon smth")
	if err != nil {
		t.Fatalf("Dismiss returned error: %v", err)
	}
	if entry.Status != domain.UnmatchedStatusDismissed || entry.DismissedAt == nil {
		t.Fatalf("entry not dismissed: %+v", entry)
	}

	if _, err := fix.svc.Dismiss(context.Background(), "jon smth"); !errors.Is(err, ErrResolutionConflict) {
		t.Fatalf("expected ErrResolutionConflict on double dismiss, got %v", err)
	}
}

func TestDismissUnknownEntry(t *testing.T) {
	fix := newResolutionFixture(t)
	if _, err := fix.svc.Dismiss(context.Background(), "missing"); !errors.Is(err, ErrResolutionEntryNotFound) {
		t.Fatalf("expected ErrResolutionEntryNotFound, got %v", err)
	}
}
