package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/deskhub/api/internal/platform/idempotency"
)

const slotLockBody = `{"spaceId":"sp_1","date":"2025-01-15","startTime":"14:00","endTime":"15:00"}`

func newSlotLockRouter(f *handlerFixture, opts ...SlotLockHandlerOption) http.Handler {
	return NewRouter(WithMeRoutes(NewSlotLockHandlers(f.authn, f.locks, opts...).Routes))
}

func asUser(req *http.Request, uid string) *http.Request {
	req.Header.Set("Authorization", "Bearer token-"+uid)
	return req
}

func TestSlotLockLifecycle(t *testing.T) {
	f := newHandlerFixture(t)
	router := newSlotLockRouter(f)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(newJSONRequest(http.MethodPost, "/api/v1/me/slot-locks", slotLockBody), "alice"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	lock := decodeBody(t, rr)["lock"].(map[string]any)
	key, _ := lock["lockKey"].(string)
	if key != "sp_1_2025-01-15_14:00_15:00" {
		t.Fatalf("unexpected lock key %q", key)
	}
	if lock["expiresAt"] != formatTime(fixtureNow.Add(5*time.Minute)) {
		t.Fatalf("unexpected expiry %v", lock["expiresAt"])
	}

	f.now = fixtureNow.Add(time.Minute)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(newJSONRequest(http.MethodPost, "/api/v1/me/slot-locks", slotLockBody), "bob"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["error"] != "slot_locked" || body["expires_in"] != float64(240) {
		t.Fatalf("unexpected contention payload %v", body)
	}
	if _, leaked := body["owner"]; leaked {
		t.Fatalf("owner must not be exposed: %v", body)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet,
		"/api/v1/me/slot-locks/status?spaceId=sp_1&date=2025-01-15&startTime=14:00&endTime=15:00", nil), "bob"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	status := decodeBody(t, rr)
	if status["isLocked"] != true || status["expiresIn"] != float64(240) {
		t.Fatalf("unexpected status %v", status)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPut, "/api/v1/me/slot-locks/"+key, nil), "bob"))
	if rr.Code != http.StatusConflict || decodeBody(t, rr)["error"] != "slot_lock_not_held" {
		t.Fatalf("expected slot_lock_not_held for foreign refresh, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPut, "/api/v1/me/slot-locks/"+key, nil), "alice"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on refresh, got %d: %s", rr.Code, rr.Body.String())
	}
	if refreshed := decodeBody(t, rr)["lock"].(map[string]any); refreshed["expiresAt"] != formatTime(f.now.Add(5*time.Minute)) {
		t.Fatalf("expected extended expiry, got %v", refreshed["expiresAt"])
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodDelete, "/api/v1/me/slot-locks/"+key, nil), "alice"))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(newJSONRequest(http.MethodPost, "/api/v1/me/slot-locks", slotLockBody), "bob"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected bob to acquire after release, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSlotLockRejectsBookedSlot(t *testing.T) {
	f := newHandlerFixture(t)
	router := newSlotLockRouter(f)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(newJSONRequest(http.MethodPost, "/api/v1/me/slot-locks",
		`{"spaceId":"sp_1","date":"2025-01-15","startTime":"10:30","endTime":"11:30"}`), "alice"))
	if rr.Code != http.StatusConflict || decodeBody(t, rr)["error"] != "slot_unavailable" {
		t.Fatalf("expected slot_unavailable, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSlotLockRequiresAuthentication(t *testing.T) {
	f := newHandlerFixture(t)
	router := newSlotLockRouter(f)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newJSONRequest(http.MethodPost, "/api/v1/me/slot-locks", slotLockBody))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestSlotLockInvalidKey(t *testing.T) {
	f := newHandlerFixture(t)
	router := newSlotLockRouter(f)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodDelete, "/api/v1/me/slot-locks/garbage", nil), "alice"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSlotLockReleaseAll(t *testing.T) {
	f := newHandlerFixture(t)
	router := newSlotLockRouter(f)

	for _, body := range []string{
		slotLockBody,
		`{"spaceId":"sp_1","date":"2025-01-16","startTime":"09:00","endTime":"10:00"}`,
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, asUser(newJSONRequest(http.MethodPost, "/api/v1/me/slot-locks", body), "alice"))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodDelete, "/api/v1/me/slot-locks", nil), "alice"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if released := decodeBody(t, rr)["released"]; released != float64(2) {
		t.Fatalf("expected 2 released, got %v", released)
	}
}

func TestSlotLockIdempotentReplay(t *testing.T) {
	f := newHandlerFixture(t)
	mw := idempotency.Middleware(idempotency.NewMemoryStore(), idempotency.WithClock(func() time.Time { return f.now }))
	router := newSlotLockRouter(f, WithSlotLockIdempotency(mw))

	send := func() *httptest.ResponseRecorder {
		req := asUser(newJSONRequest(http.MethodPost, "/api/v1/me/slot-locks", slotLockBody), "alice")
		req.Header.Set("Idempotency-Key", "lock-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	first := send()
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	f.now = fixtureNow.Add(30 * time.Second)
	second := send()
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d: %s", second.Code, second.Body.String())
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatalf("expected replay header")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical body, got %s vs %s", first.Body.String(), second.Body.String())
	}
}
