package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/deskhub/api/internal/platform/requestctx"
)

func TestRequestLoggerMiddlewareLogsCompletion(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	handler := RequestLoggerMiddleware(logger, "deskhub")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestctx.Logger(r.Context()) == requestctx.NoopLogger() {
			t.Fatal("expected request scoped logger")
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/validation/booking", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zap.WarnLevel {
		t.Fatalf("expected warn level for 422, got %s", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["status"] != int64(http.StatusUnprocessableEntity) {
		t.Fatalf("unexpected status field %v", fields["status"])
	}
	if fields["bytes"] != int64(2) {
		t.Fatalf("unexpected bytes field %v", fields["bytes"])
	}
}

func TestRequestLoggerMiddlewareRecordsActor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	authenticate := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestctx.WithActor(r.Context(), requestctx.Actor{UID: "alice"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	handler := RequestLoggerMiddleware(zap.New(core), "")(authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestctx.Logger(r.Context()).Info("slot locked")
		w.WriteHeader(http.StatusCreated)
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/me/slot-locks", nil))

	inner := logs.FilterMessage("slot locked").All()
	if len(inner) != 1 || inner[0].ContextMap()["uid"] != "alice" {
		t.Fatalf("expected handler log to carry uid, got %+v", inner)
	}
	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 1 || completed[0].ContextMap()["user_id"] != "alice" {
		t.Fatalf("expected completion log to carry user_id, got %+v", completed)
	}
}

func TestRecoveryMiddlewareWritesJSON(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "internal_server_error" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatal("expected panic to be logged")
	}
}
