package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deskhub/api/internal/services"
)

type stubExpiryService struct {
	result services.SweepResult
	err    error
	calls  int
}

func (s *stubExpiryService) Sweep(context.Context) (services.SweepResult, error) {
	s.calls++
	return s.result, s.err
}

func TestJobHandlersBookingExpiry(t *testing.T) {
	svc := &stubExpiryService{result: services.SweepResult{RunID: "run_1", ExpiredApprovals: 1, ExpiredPayments: 2, ExpiredSlots: 3}}
	router := NewRouter(WithInternalRoutes(NewJobHandlers(svc).Routes))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/internal/jobs/booking-expiry", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["total"] != float64(6) {
		t.Fatalf("expected total 6, got %v", body["total"])
	}
	if result := body["result"].(map[string]any); result["run_id"] != "run_1" {
		t.Fatalf("unexpected result %v", result)
	}
	if svc.calls != 1 {
		t.Fatalf("expected one sweep, got %d", svc.calls)
	}
}

func TestJobHandlersBookingExpiryFailure(t *testing.T) {
	svc := &stubExpiryService{result: services.SweepResult{ExpiredPayments: 1}, err: errors.New("firestore down")}
	router := NewRouter(WithInternalRoutes(NewJobHandlers(svc).Routes))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/internal/jobs/booking-expiry", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "sweep_failed" {
		t.Fatalf("expected sweep_failed, got %v", body["error"])
	}
	if _, ok := body["result"].(map[string]any); !ok {
		t.Fatalf("expected partial result in details, got %v", body)
	}
}

func TestJobHandlersWithoutService(t *testing.T) {
	router := NewRouter(WithInternalRoutes(NewJobHandlers(nil).Routes))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/internal/jobs/booking-expiry", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
