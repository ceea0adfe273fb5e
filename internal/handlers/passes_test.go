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

type fakePassService struct {
	createResult   domain.Pass
	createErr      error
	overrideResult domain.Pass
	overrideErr    error
	returnResult   domain.Pass
	returnErr      error
	listResult     domain.CursorPage[domain.Pass]
	listErr        error

	lastCreate   services.CreatePassCommand
	lastOverride services.OverridePassCommand
	lastReturn   string
	lastList     services.ActivePassQuery
}

func (f *fakePassService) CreatePass(ctx context.Context, cmd services.CreatePassCommand) (domain.Pass, error) {
	f.lastCreate = cmd
	return f.createResult, f.createErr
}

func (f *fakePassService) CreateOverridePass(ctx context.Context, cmd services.OverridePassCommand) (domain.Pass, error) {
	f.lastOverride = cmd
	return f.overrideResult, f.overrideErr
}

func (f *fakePassService) ReturnPass(ctx context.Context, passID string) (domain.Pass, error) {
	f.lastReturn = passID
	return f.returnResult, f.returnErr
}

func (f *fakePassService) ListActive(ctx context.Context, query services.ActivePassQuery) (domain.CursorPage[domain.Pass], error) {
	f.lastList = query
	return f.listResult, f.listErr
}

func newPassRouter(svc services.PassService) http.Handler {
	h := NewPassHandlers(svc)
	return NewRouter(
		WithPassRoutes(h.Routes),
		WithActivePassRoutes(h.ActiveRoutes),
	)
}

func TestCreatePassEndpoint(t *testing.T) {
	svc := &fakePassService{createResult: domain.Pass{
		ID:          "pass_01",
		Scope:       "Period 3",
		StudentID:   "stu_42",
		StudentName: "Jon Smith",
		Destination: "Library",
		Status:      domain.PassStatusOut,
		LeftAt:      time.Date(2026, 3, 9, 10, 30, 0, 0, time.UTC),
	}}
	router := newPassRouter(svc)

	body := `{"scope":"Period 3","studentId":"stu_42","destination":"Library"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/passes", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastCreate.StudentID != "stu_42" || svc.lastCreate.Scope != "Period 3" {
		t.Fatalf("unexpected command %+v", svc.lastCreate)
	}
	var payload passPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.ID != "pass_01" || !payload.Resolved {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestCreatePassEndpointRejectsEmptyBody(t *testing.T) {
	router := newPassRouter(&fakePassService{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/passes", strings.NewReader("")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOverrideEndpointMapsPINRejection(t *testing.T) {
	svc := &fakePassService{overrideErr: services.ErrPassPINRejected}
	router := newPassRouter(svc)

	body := `{"scope":"Period 3","studentId":"stu_42","destination":"Library","pin":"0000"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/passes:override", strings.NewReader(body)))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "invalid_pin") {
		t.Fatalf("expected invalid_pin code, got %s", rec.Body.String())
	}
}

func TestOverrideEndpointRateLimits(t *testing.T) {
	svc := &fakePassService{overrideErr: services.ErrPassPINRejected}
	router := newPassRouter(svc)

	body := `{"scope":"Period 3","studentId":"stu_42","destination":"Library","pin":"0000"}`
	var lastCode int
	for i := 0; i < defaultOverrideAttempts+1; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/passes:override", strings.NewReader(body))
		req.RemoteAddr = "10.0.0.7:4000"
		router.ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated attempts, got %d", lastCode)
	}
}

func TestReturnPassEndpoint(t *testing.T) {
	returnedAt := time.Date(2026, 3, 9, 10, 45, 0, 0, time.UTC)
	svc := &fakePassService{returnResult: domain.Pass{
		ID:         "pass_01",
		Status:     domain.PassStatusReturned,
		ReturnedAt: &returnedAt,
	}}
	router := newPassRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/passes/pass_01:return", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastReturn != "pass_01" {
		t.Fatalf("unexpected pass id %q", svc.lastReturn)
	}
}

func TestReturnPassEndpointConflict(t *testing.T) {
	svc := &fakePassService{returnErr: services.ErrPassAlreadyReturned}
	router := newPassRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/passes/pass_01:return", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestListActivePassesEndpoint(t *testing.T) {
	svc := &fakePassService{listResult: domain.CursorPage[domain.Pass]{
		Items: []domain.Pass{
			{ID: "pass_01", Scope: "Period 3", Status: domain.PassStatusOut},
		},
		NextPageToken: "tok-2",
	}}
	router := newPassRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/passes/active?scope=Period+3&pageSize=10", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastList.Scope != "Period 3" || svc.lastList.PageSize != 10 {
		t.Fatalf("unexpected query %+v", svc.lastList)
	}
	var payload activePassesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Passes) != 1 || payload.NextPageToken != "tok-2" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestListActivePassesRejectsBadPageSize(t *testing.T) {
	router := newPassRouter(&fakePassService{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/passes/active?pageSize=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
