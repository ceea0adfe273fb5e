package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hallpass-app/api/internal/domain"
	"github.com/hallpass-app/api/internal/platform/auth"
	"github.com/hallpass-app/api/internal/platform/httpx"
	"github.com/hallpass-app/api/internal/platform/pagination"
	"github.com/hallpass-app/api/internal/services"
)

const (
	defaultOverrideAttempts = 5
	defaultOverrideWindow   = time.Minute
)

// PassHandlers exposes the sign-out/sign-in lifecycle endpoints.
type PassHandlers struct {
	svc             services.PassService
	overrideLimiter rateLimiter
}

// NewPassHandlers constructs the pass handler set. The override endpoint is
// throttled per caller to keep the shared PIN from being brute forced.
func NewPassHandlers(svc services.PassService) *PassHandlers {
	return &PassHandlers{
		svc:             svc,
		overrideLimiter: newRateLimiter(defaultOverrideAttempts, defaultOverrideWindow, nil),
	}
}

// Routes registers the kiosk-facing pass lifecycle endpoints.
func (h *PassHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/passes", h.create)
	r.Post("/passes:override", h.override)
	r.Post("/passes/{passId}:return", h.returnPass)
}

// ActiveRoutes registers the staff dashboard read. Mounted separately so
// the kiosk endpoints stay open while this one carries the staff guard.
func (h *PassHandlers) ActiveRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/passes/active", h.listActive)
}

func (h *PassHandlers) create(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "service_unavailable", "pass service not available")
		return
	}

	var req createPassRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	pass, err := h.svc.CreatePass(r.Context(), services.CreatePassCommand{
		Scope:       req.Scope,
		StudentID:   req.StudentID,
		RawName:     req.RawName,
		Destination: req.Destination,
	})
	if err != nil {
		writePassError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildPassPayload(pass))
}

func (h *PassHandlers) override(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "service_unavailable", "pass service not available")
		return
	}
	if h.overrideLimiter != nil && !h.overrideLimiter.Allow(callerKey(r)) {
		httpx.WriteError(w, r, http.StatusTooManyRequests, "rate_limited", "too many override attempts")
		return
	}

	var req overridePassRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	authorizedBy := ""
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil {
		authorizedBy = identity.UID
	}

	pass, err := h.svc.CreateOverridePass(r.Context(), services.OverridePassCommand{
		Scope:        req.Scope,
		StudentID:    req.StudentID,
		Destination:  req.Destination,
		PIN:          req.PIN,
		AuthorizedBy: authorizedBy,
	})
	if err != nil {
		writePassError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildPassPayload(pass))
}

func (h *PassHandlers) returnPass(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "service_unavailable", "pass service not available")
		return
	}
	passID := strings.TrimSpace(chi.URLParam(r, "passId"))
	if passID == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_request", "pass id is required")
		return
	}

	pass, err := h.svc.ReturnPass(r.Context(), passID)
	if err != nil {
		writePassError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPassPayload(pass))
}

func (h *PassHandlers) listActive(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "service_unavailable", "pass service not available")
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	page, err := h.svc.ListActive(r.Context(), services.ActivePassQuery{
		Scope:     r.URL.Query().Get("scope"),
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writePassError(w, r, err)
		return
	}

	payload := activePassesResponse{
		Passes:        make([]passPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, pass := range page.Items {
		payload.Passes = append(payload.Passes, buildPassPayload(pass))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, defaultMaxRequestBody)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds allowed size")
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(w, r, http.StatusBadRequest, "invalid_request", "request body is required")
		default:
			httpx.WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		}
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return false
	}
	return true
}

func callerKey(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil && identity.UID != "" {
		return identity.UID
	}
	return r.RemoteAddr
}

func writePassError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrPassInvalidInput):
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_request", "scope, destination, and a student or name are required")
	case errors.Is(err, services.ErrPassStudentNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "student_not_found", "student does not exist or is inactive")
	case errors.Is(err, services.ErrPassPINRejected):
		// Distinct code so the kiosk clears only the PIN field.
		httpx.WriteError(w, r, http.StatusUnauthorized, "invalid_pin", "override pin rejected")
	case errors.Is(err, services.ErrPassNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "pass_not_found", "pass does not exist")
	case errors.Is(err, services.ErrPassAlreadyReturned):
		httpx.WriteError(w, r, http.StatusConflict, "already_returned", "pass was already returned")
	case errors.Is(err, services.ErrPassUnavailable):
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "backend_unavailable", "try again shortly")
	default:
		httpx.WriteInternalError(w, r, err)
	}
}

func buildPassPayload(pass domain.Pass) passPayload {
	return passPayload{
		ID:           pass.ID,
		Scope:        pass.Scope,
		StudentID:    pass.StudentID,
		StudentName:  pass.StudentName,
		RawName:      pass.RawName,
		Destination:  pass.Destination,
		Status:       string(pass.Status),
		Override:     pass.Override,
		AuthorizedBy: pass.AuthorizedBy,
		Resolved:     pass.Resolved(),
		LeftAt:       formatTime(pass.LeftAt),
		ReturnedAt:   formatTimePtr(pass.ReturnedAt),
	}
}

type createPassRequest struct {
	Scope       string `json:"scope"`
	StudentID   string `json:"studentId"`
	RawName     string `json:"rawName"`
	Destination string `json:"destination"`
}

type overridePassRequest struct {
	Scope       string `json:"scope"`
	StudentID   string `json:"studentId"`
	Destination string `json:"destination"`
	PIN         string `json:"pin"`
}

type passPayload struct {
	ID           string `json:"id"`
	Scope        string `json:"scope"`
	StudentID    string `json:"studentId,omitempty"`
	StudentName  string `json:"studentName,omitempty"`
	RawName      string `json:"rawName,omitempty"`
	Destination  string `json:"destination"`
	Status       string `json:"status"`
	Override     bool   `json:"override,omitempty"`
	AuthorizedBy string `json:"authorizedBy,omitempty"`
	Resolved     bool   `json:"resolved"`
	LeftAt       string `json:"leftAt"`
	ReturnedAt   string `json:"returnedAt,omitempty"`
}

type activePassesResponse struct {
	Passes        []passPayload `json:"passes"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
}
