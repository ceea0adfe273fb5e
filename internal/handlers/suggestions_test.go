package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/hallpass-app/api/internal/domain"
	"github.com/hallpass-app/api/internal/matching"
	"github.com/hallpass-app/api/internal/services"
)

type fakeSuggestionService struct {
	rosterEntries []domain.RosterEntry
	rosterErr     error
	suggestResult services.SuggestResult
	suggestErr    error
	searchHits    []services.DirectoryStudent
	searchErr     error
	lastQuery     services.SuggestQuery
	lastSearch    services.DirectorySearchQuery
}

func (f *fakeSuggestionService) Roster(ctx context.Context, scope string) ([]domain.RosterEntry, error) {
	return f.rosterEntries, f.rosterErr
}

func (f *fakeSuggestionService) Suggest(ctx context.Context, query services.SuggestQuery) (services.SuggestResult, error) {
	f.lastQuery = query
	return f.suggestResult, f.suggestErr
}

func (f *fakeSuggestionService) SearchDirectory(ctx context.Context, query services.DirectorySearchQuery) ([]services.DirectoryStudent, error) {
	f.lastSearch = query
	return f.searchHits, f.searchErr
}

func (f *fakeSuggestionService) InvalidateRoster(scope string) {}
func (f *fakeSuggestionService) Close()                       {}

func newSuggestionRouter(svc services.SuggestionService) http.Handler {
	return NewRouter(WithSuggestionRoutes(NewSuggestionHandlers(svc).Routes))
}

func TestRosterEndpoint(t *testing.T) {
	svc := &fakeSuggestionService{rosterEntries: []domain.RosterEntry{
		{StudentID: "stu_1", DisplayName: "Jane Smith"},
		{StudentID: "stu_2", DisplayName: "John Smith"},
	}}
	router := newSuggestionRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scopes/Period%203/roster", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload rosterResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Scope != "Period 3" {
		t.Fatalf("expected decoded scope, got %q", payload.Scope)
	}
	if len(payload.Entries) != 2 || payload.Entries[0].StudentID != "stu_1" {
		t.Fatalf("unexpected entries %+v", payload.Entries)
	}
}

func TestSuggestEndpointRosterStrategy(t *testing.T) {
	svc := &fakeSuggestionService{suggestResult: services.SuggestResult{
		Strategy: matching.StrategyRoster,
		Panel: matching.Suggestion{
			State: matching.PanelOpen,
			Candidates: []matching.Candidate{
				{Entry: domain.RosterEntry{StudentID: "stu_1", DisplayName: "John Smith"}, Score: 10},
			},
		},
	}}
	router := newSuggestionRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scopes/Period%203/suggest?q=john", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastQuery.Scope != "Period 3" || svc.lastQuery.Input != "john" {
		t.Fatalf("unexpected query %+v", svc.lastQuery)
	}
	var payload suggestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Panel != string(matching.PanelOpen) {
		t.Fatalf("expected open panel, got %q", payload.Panel)
	}
	if len(payload.Candidates) != 1 || payload.Candidates[0].Score != 10 {
		t.Fatalf("unexpected candidates %+v", payload.Candidates)
	}
}

func TestDirectorySearchEndpoint(t *testing.T) {
	svc := &fakeSuggestionService{searchHits: []services.DirectoryStudent{
		{ID: "stu_5", FirstName: "Sam", LastName: "Mills", DisplayName: "Sam Mills"},
	}}
	router := newSuggestionRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/directory/search?q=mil&sessionId=kiosk-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastSearch.SessionID != "kiosk-1" || svc.lastSearch.Query != "mil" {
		t.Fatalf("unexpected search %+v", svc.lastSearch)
	}
	var payload directorySearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Superseded {
		t.Fatal("expected a live result")
	}
	if len(payload.Students) != 1 || payload.Students[0].ID != "stu_5" {
		t.Fatalf("unexpected students %+v", payload.Students)
	}
}

func TestDirectorySearchSupersededResponse(t *testing.T) {
	svc := &fakeSuggestionService{searchErr: services.ErrSearchSuperseded}
	router := newSuggestionRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/directory/search?q=sm&sessionId=kiosk-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("superseded search must not error, got %d", rec.Code)
	}
	var payload directorySearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Superseded || len(payload.Students) != 0 {
		t.Fatalf("expected empty superseded payload, got %+v", payload)
	}
}

func TestSuggestEndpointUnavailable(t *testing.T) {
	svc := &fakeSuggestionService{suggestErr: services.ErrSuggestionUnavailable}
	router := newSuggestionRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scopes/Period%203/suggest?q=jo", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
