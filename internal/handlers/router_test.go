package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRouterNotFoundEnvelope(t *testing.T) {
	router := NewRouter()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nowhere", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "route_not_found") {
		t.Fatalf("expected route_not_found envelope, got %s", rec.Body.String())
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	router := NewRouter(WithPassRoutes(NewPassHandlers(&fakePassService{}).Routes))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/passes", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "method_not_allowed") {
		t.Fatalf("expected method_not_allowed envelope, got %s", rec.Body.String())
	}
}

func TestHealthzEndpoint(t *testing.T) {
	router := NewRouter()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestReadyzReportsDegradedDependency(t *testing.T) {
	health := NewHealthHandlers(map[string]ReadinessCheck{
		"firestore": func(ctx context.Context) error { return nil },
		"pubsub":    func(ctx context.Context) error { return errors.New("topic missing") },
	})
	router := NewRouter(WithHealthHandlers(health))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "degraded") || !strings.Contains(rec.Body.String(), "topic missing") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestGroupMiddlewareAppliesToReconciliationOnly(t *testing.T) {
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	router := NewRouter(
		WithSuggestionRoutes(NewSuggestionHandlers(&fakeSuggestionService{}).Routes),
		WithReconciliationRoutes(NewReconciliationHandlers(&fakeResolutionService{}).Routes, deny),
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/unmatched", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected reconciliation group to be guarded, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scopes/Period%203/roster", nil))
	if rec.Code == http.StatusUnauthorized {
		t.Fatalf("suggestion group must not inherit the reconciliation guard, got %d", rec.Code)
	}
}

func TestActivePassGuardLeavesKioskRoutesOpen(t *testing.T) {
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	h := NewPassHandlers(&fakePassService{})
	router := NewRouter(
		WithPassRoutes(h.Routes),
		WithActivePassRoutes(h.ActiveRoutes, deny),
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/passes/active", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected active-pass read to be guarded, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/passes", strings.NewReader(`{}`)))
	if rec.Code == http.StatusUnauthorized {
		t.Fatalf("kiosk pass creation must not inherit the staff guard, got %d", rec.Code)
	}
}

func TestRouterBasePathOverride(t *testing.T) {
	router := NewRouter(
		WithBasePath("/kiosk"),
		WithActivePassRoutes(NewPassHandlers(&fakePassService{}).ActiveRoutes),
	)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/kiosk/passes/active", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 under overridden base path, got %d", rec.Code)
	}
}
