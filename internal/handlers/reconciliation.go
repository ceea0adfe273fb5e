package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hallpass-app/api/internal/domain"
	"github.com/hallpass-app/api/internal/platform/auth"
	"github.com/hallpass-app/api/internal/platform/httpx"
	"github.com/hallpass-app/api/internal/platform/pagination"
	"github.com/hallpass-app/api/internal/services"
)

// ReconciliationHandlers exposes the staff-facing unmatched-name queue.
type ReconciliationHandlers struct {
	svc services.ResolutionService
}

// NewReconciliationHandlers constructs the reconciliation handler set.
func NewReconciliationHandlers(svc services.ResolutionService) *ReconciliationHandlers {
	return &ReconciliationHandlers{svc: svc}
}

// Routes registers the reconciliation endpoints.
func (h *ReconciliationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/reconciliation/unmatched", h.listUnmatched)
	r.Post("/reconciliation:resolve", h.resolve)
	r.Post("/reconciliation/{entryId}:dismiss", h.dismiss)
}

func (h *ReconciliationHandlers) listUnmatched(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "service_unavailable", "reconciliation service not available")
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	page, err := h.svc.ListUnmatched(r.Context(), services.UnmatchedQuery{
		View:      services.UnmatchedView(r.URL.Query().Get("view")),
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeReconciliationError(w, r, err)
		return
	}

	payload := unmatchedListResponse{
		View:          string(page.View),
		NextPageToken: page.NextPageToken,
	}
	switch page.View {
	case services.UnmatchedViewEntries:
		payload.Entries = make([]unmatchedEntryPayload, 0, len(page.Entries))
		for _, entry := range page.Entries {
			payload.Entries = append(payload.Entries, buildUnmatchedEntryPayload(entry))
		}
	default:
		payload.Aggregates = make([]unmatchedAggregatePayload, 0, len(page.Aggregates))
		for _, agg := range page.Aggregates {
			payload.Aggregates = append(payload.Aggregates, unmatchedAggregatePayload{
				RawName:         agg.RawName,
				OccurrenceCount: agg.OccurrenceCount,
			})
		}
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *ReconciliationHandlers) resolve(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "service_unavailable", "reconciliation service not available")
		return
	}

	var req resolveRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resolvedBy := ""
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil {
		resolvedBy = identity.UID
	}

	result, err := h.svc.Resolve(r.Context(), services.ResolveCommand{
		EntryID:    req.EntryID,
		StudentID:  req.StudentID,
		ResolvedBy: resolvedBy,
	})
	if err != nil {
		writeReconciliationError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, resolveResponse{
		RawName:        result.RawName,
		StudentID:      result.StudentID,
		StudentName:    result.StudentName,
		RecordsUpdated: result.RecordsUpdated,
	})
}

func (h *ReconciliationHandlers) dismiss(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "service_unavailable", "reconciliation service not available")
		return
	}
	entryID := strings.TrimSpace(chi.URLParam(r, "entryId"))
	if entryID == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_request", "entry id is required")
		return
	}

	entry, err := h.svc.Dismiss(r.Context(), entryID)
	if err != nil {
		writeReconciliationError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildUnmatchedEntryPayload(entry))
}

func writeReconciliationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrResolutionInvalidInput):
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_request", "entry id and student id are required")
	case errors.Is(err, services.ErrResolutionEntryNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "entry_not_found", "queue entry does not exist")
	case errors.Is(err, services.ErrResolutionStudentNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "student_not_found", "student does not exist or is inactive")
	case errors.Is(err, services.ErrResolutionConflict):
		httpx.WriteError(w, r, http.StatusConflict, "entry_conflict", "entry already left the pending state")
	case errors.Is(err, services.ErrResolutionUnavailable):
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "backend_unavailable", "try again shortly")
	default:
		httpx.WriteInternalError(w, r, err)
	}
}

func buildUnmatchedEntryPayload(entry domain.UnmatchedName) unmatchedEntryPayload {
	return unmatchedEntryPayload{
		ID:          entry.ID,
		RawName:     entry.RawName,
		Scope:       entry.Scope,
		Destination: entry.Destination,
		Status:      string(entry.Status),
		Occurrences: entry.Occurrences,
		FirstSeenAt: formatTime(entry.FirstSeenAt),
		LastSeenAt:  formatTime(entry.LastSeenAt),
		ResolvedTo:  entry.ResolvedTo,
		ResolvedAt:  formatTimePtr(entry.ResolvedAt),
		DismissedAt: formatTimePtr(entry.DismissedAt),
	}
}

type resolveRequest struct {
	EntryID   string `json:"entryId"`
	StudentID string `json:"studentId"`
}

type resolveResponse struct {
	RawName        string `json:"rawName"`
	StudentID      string `json:"studentId"`
	StudentName    string `json:"studentName"`
	RecordsUpdated int    `json:"recordsUpdated"`
}

type unmatchedListResponse struct {
	View          string                      `json:"view"`
	Aggregates    []unmatchedAggregatePayload `json:"aggregates,omitempty"`
	Entries       []unmatchedEntryPayload     `json:"entries,omitempty"`
	NextPageToken string                      `json:"nextPageToken,omitempty"`
}

type unmatchedAggregatePayload struct {
	RawName         string `json:"rawName"`
	OccurrenceCount int    `json:"occurrenceCount"`
}

type unmatchedEntryPayload struct {
	ID          string `json:"id"`
	RawName     string `json:"rawName"`
	Scope       string `json:"scope"`
	Destination string `json:"destination,omitempty"`
	Status      string `json:"status"`
	Occurrences int    `json:"occurrences"`
	FirstSeenAt string `json:"firstSeenAt"`
	LastSeenAt  string `json:"lastSeenAt"`
	ResolvedTo  string `json:"resolvedTo,omitempty"`
	ResolvedAt  string `json:"resolvedAt,omitempty"`
	DismissedAt string `json:"dismissedAt,omitempty"`
}
