package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deskhub/api/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	rec := httptest.NewRecorder()

	err := NewError("validation_failed", "dati non validi\nriprova", http.StatusUnprocessableEntity).
		WithRequestID("req-1").
		WithDetails(map[string]any{"fields": []string{"guests"}, "error": "ignored"})
	WriteError(ctx, rec, err)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "validation_failed", body["error"])
	require.Equal(t, "dati non validi riprova", body["message"])
	require.EqualValues(t, 422, body["status"])
	require.Equal(t, "req-1", body["request_id"])
	require.Equal(t, "abc123", body["trace_id"])
	require.Equal(t, []any{"guests"}, body["fields"])
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	err := NewError("boom", "", 0)
	require.Equal(t, http.StatusInternalServerError, err.Status)
}
