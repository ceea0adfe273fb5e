package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hallpass-app/api/internal/matching"
	"github.com/hallpass-app/api/internal/platform/httpx"
	"github.com/hallpass-app/api/internal/services"
)

// SuggestionHandlers exposes the roster and name suggestion endpoints the
// kiosk drives on every keystroke.
type SuggestionHandlers struct {
	svc services.SuggestionService
}

// NewSuggestionHandlers constructs the suggestion handler set.
func NewSuggestionHandlers(svc services.SuggestionService) *SuggestionHandlers {
	return &SuggestionHandlers{svc: svc}
}

// Routes registers the suggestion endpoints.
func (h *SuggestionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/scopes/{scope}/roster", h.roster)
	r.Get("/scopes/{scope}/suggest", h.suggest)
	r.Get("/directory/search", h.searchDirectory)
}

func (h *SuggestionHandlers) roster(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "service_unavailable", "suggestion service not available")
		return
	}
	scope := scopeParam(r)

	entries, err := h.svc.Roster(r.Context(), scope)
	if err != nil {
		writeSuggestionError(w, r, err)
		return
	}

	payload := rosterResponse{Scope: scope, Entries: make([]rosterEntryPayload, 0, len(entries))}
	for _, entry := range entries {
		payload.Entries = append(payload.Entries, rosterEntryPayload{
			StudentID:   entry.StudentID,
			DisplayName: entry.DisplayName,
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *SuggestionHandlers) suggest(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "service_unavailable", "suggestion service not available")
		return
	}
	scope := scopeParam(r)
	input := r.URL.Query().Get("q")

	result, err := h.svc.Suggest(r.Context(), services.SuggestQuery{Scope: scope, Input: input})
	if err != nil {
		writeSuggestionError(w, r, err)
		return
	}

	payload := suggestResponse{
		Scope:    scope,
		Strategy: string(result.Strategy),
	}
	if result.Strategy == matching.StrategyDirectory {
		payload.Students = directoryPayload(result.Directory)
	} else {
		payload.Panel = string(result.Panel.State)
		payload.Candidates = make([]candidatePayload, 0, len(result.Panel.Candidates))
		for _, cand := range result.Panel.Candidates {
			payload.Candidates = append(payload.Candidates, candidatePayload{
				StudentID:   cand.Entry.StudentID,
				DisplayName: cand.Entry.DisplayName,
				Score:       cand.Score,
			})
		}
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *SuggestionHandlers) searchDirectory(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "service_unavailable", "suggestion service not available")
		return
	}
	query := r.URL.Query().Get("q")
	sessionID := r.URL.Query().Get("sessionId")

	students, err := h.svc.SearchDirectory(r.Context(), services.DirectorySearchQuery{
		SessionID: sessionID,
		Query:     query,
	})
	if errors.Is(err, services.ErrSearchSuperseded) {
		// Expected when a newer keystroke replaced this query; the kiosk
		// drops the response the same way it would a stale completion.
		writeJSONResponse(w, http.StatusOK, directorySearchResponse{
			Query:      query,
			Superseded: true,
			Students:   []directoryStudentPayload{},
		})
		return
	}
	if err != nil {
		writeSuggestionError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, directorySearchResponse{
		Query:    query,
		Students: directoryPayload(students),
	})
}

func scopeParam(r *http.Request) string {
	scope := chi.URLParam(r, "scope")
	if decoded, err := url.PathUnescape(scope); err == nil {
		scope = decoded
	}
	return strings.TrimSpace(scope)
}

func directoryPayload(students []services.DirectoryStudent) []directoryStudentPayload {
	out := make([]directoryStudentPayload, 0, len(students))
	for _, student := range students {
		out = append(out, directoryStudentPayload{
			ID:          student.ID,
			FirstName:   student.FirstName,
			LastName:    student.LastName,
			DisplayName: student.DisplayName,
		})
	}
	return out
}

func writeSuggestionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrSuggestionInvalidInput):
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_request", "scope is required")
	case errors.Is(err, services.ErrSuggestionUnavailable):
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "backend_unavailable", "try again shortly")
	default:
		httpx.WriteInternalError(w, r, err)
	}
}

type rosterResponse struct {
	Scope   string               `json:"scope"`
	Entries []rosterEntryPayload `json:"entries"`
}

type rosterEntryPayload struct {
	StudentID   string `json:"studentId"`
	DisplayName string `json:"displayName"`
}

type suggestResponse struct {
	Scope      string                    `json:"scope"`
	Strategy   string                    `json:"strategy"`
	Panel      string                    `json:"panel,omitempty"`
	Candidates []candidatePayload        `json:"candidates,omitempty"`
	Students   []directoryStudentPayload `json:"students,omitempty"`
}

type candidatePayload struct {
	StudentID   string `json:"studentId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

type directorySearchResponse struct {
	Query      string                    `json:"query"`
	Superseded bool                      `json:"superseded,omitempty"`
	Students   []directoryStudentPayload `json:"students"`
}

type directoryStudentPayload struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DisplayName string `json:"displayName"`
}
