package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/hallpass-app/api/internal/domain"
	"github.com/hallpass-app/api/internal/services"
)

type fakeResolutionService struct {
	listResult    services.UnmatchedPage
	listErr       error
	resolveResult domain.ResolutionResult
	resolveErr    error
	dismissResult domain.UnmatchedName
	dismissErr    error

	lastList    services.UnmatchedQuery
	lastResolve services.ResolveCommand
	lastDismiss string
}

func (f *fakeResolutionService) ListUnmatched(ctx context.Context, query services.UnmatchedQuery) (services.UnmatchedPage, error) {
	f.lastList = query
	return f.listResult, f.listErr
}

func (f *fakeResolutionService) Resolve(ctx context.Context, cmd services.ResolveCommand) (domain.ResolutionResult, error) {
	f.lastResolve = cmd
	return f.resolveResult, f.resolveErr
}

func (f *fakeResolutionService) Dismiss(ctx context.Context, entryID string) (domain.UnmatchedName, error) {
	f.lastDismiss = entryID
	return f.dismissResult, f.dismissErr
}

func newReconciliationRouter(svc services.ResolutionService) http.Handler {
	return NewRouter(WithReconciliationRoutes(NewReconciliationHandlers(svc).Routes))
}

func TestListUnmatchedAggregateView(t *testing.T) {
	svc := &fakeResolutionService{listResult: services.UnmatchedPage{
		View: services.UnmatchedViewAggregate,
		Aggregates: []domain.UnmatchedAggregate{
			{RawName: "jonh smith", OccurrenceCount: 4},
			{RawName: "jsmith", OccurrenceCount: 1},
		},
		NextPageToken: "tok-2",
	}}
	router := newReconciliationRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/unmatched?pageSize=25", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastList.PageSize != 25 {
		t.Fatalf("unexpected query %+v", svc.lastList)
	}
	var payload unmatchedListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.View != "aggregate" || len(payload.Aggregates) != 2 || payload.NextPageToken != "tok-2" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.Aggregates[0].OccurrenceCount != 4 {
		t.Fatalf("unexpected aggregate %+v", payload.Aggregates[0])
	}
}

func TestListUnmatchedEntriesView(t *testing.T) {
	seen := time.Date(2026, 3, 9, 10, 30, 0, 0, time.UTC)
	svc := &fakeResolutionService{listResult: services.UnmatchedPage{
		View: services.UnmatchedViewEntries,
		Entries: []domain.UnmatchedName{
			{
				ID:          "jonh smith",
				RawName:     "Jonh Smith",
				Scope:       "Period 3",
				Destination: "Library",
				Status:      domain.UnmatchedStatusPending,
				Occurrences: 4,
				FirstSeenAt: seen,
				LastSeenAt:  seen,
			},
		},
	}}
	router := newReconciliationRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/unmatched?view=entries", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastList.View != services.UnmatchedViewEntries {
		t.Fatalf("unexpected view %q", svc.lastList.View)
	}
	var payload unmatchedListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Entries) != 1 || payload.Entries[0].RawName != "Jonh Smith" || payload.Entries[0].Status != "pending" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestResolveEndpoint(t *testing.T) {
	svc := &fakeResolutionService{resolveResult: domain.ResolutionResult{
		RawName:        "Jonh Smith",
		StudentID:      "stu_42",
		StudentName:    "Jon Smith",
		RecordsUpdated: 4,
	}}
	router := newReconciliationRouter(svc)

	body := `{"entryId":"jonh smith","studentId":"stu_42"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation:resolve", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastResolve.EntryID != "jonh smith" || svc.lastResolve.StudentID != "stu_42" {
		t.Fatalf("unexpected command %+v", svc.lastResolve)
	}
	var payload resolveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.RecordsUpdated != 4 || payload.StudentName != "Jon Smith" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestResolveEndpointErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"entry missing", services.ErrResolutionEntryNotFound, http.StatusNotFound, "entry_not_found"},
		{"student missing", services.ErrResolutionStudentNotFound, http.StatusNotFound, "student_not_found"},
		{"already settled", services.ErrResolutionConflict, http.StatusConflict, "entry_conflict"},
		{"backend down", services.ErrResolutionUnavailable, http.StatusServiceUnavailable, "backend_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newReconciliationRouter(&fakeResolutionService{resolveErr: tc.err})
			body := `{"entryId":"jonh smith","studentId":"stu_42"}`
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation:resolve", strings.NewReader(body)))
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.body) {
				t.Fatalf("expected %q in body, got %s", tc.body, rec.Body.String())
			}
		})
	}
}

func TestResolveEndpointRejectsEmptyBody(t *testing.T) {
	router := newReconciliationRouter(&fakeResolutionService{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation:resolve", strings.NewReader("")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDismissEndpoint(t *testing.T) {
	dismissedAt := time.Date(2026, 3, 9, 11, 0, 0, 0, time.UTC)
	svc := &fakeResolutionService{dismissResult: domain.UnmatchedName{
		ID:          "visitor",
		RawName:     "Visitor",
		Status:      domain.UnmatchedStatusDismissed,
		DismissedAt: &dismissedAt,
	}}
	router := newReconciliationRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/visitor:dismiss", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastDismiss != "visitor" {
		t.Fatalf("unexpected entry id %q", svc.lastDismiss)
	}
	var payload unmatchedEntryPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "dismissed" || payload.DismissedAt == "" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestDismissEndpointConflict(t *testing.T) {
	router := newReconciliationRouter(&fakeResolutionService{dismissErr: services.ErrResolutionConflict})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/visitor:dismiss", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
