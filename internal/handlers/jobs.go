package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/deskhub/api/internal/platform/httpx"
	"github.com/deskhub/api/internal/services"
)

// JobHandlers triggers background jobs from Cloud Scheduler.
type JobHandlers struct {
	expiry services.BookingExpiryService
}

// NewJobHandlers constructs JobHandlers.
func NewJobHandlers(expiry services.BookingExpiryService) *JobHandlers {
	return &JobHandlers{expiry: expiry}
}

// Routes registers the /internal/jobs endpoints. Callers mount them behind OIDC.
func (h *JobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/jobs/booking-expiry", h.runBookingExpiry)
}

type sweepResponse struct {
	Result services.SweepResult `json:"result"`
	Total  int                  `json:"total"`
}

func (h *JobHandlers) runBookingExpiry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.expiry == nil {
		httpx.WriteError(ctx, w, httpx.NewError("expiry_service_unavailable", "booking expiry service unavailable", http.StatusServiceUnavailable))
		return
	}

	result, err := h.expiry.Sweep(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("sweep_failed", "booking expiry sweep failed", http.StatusInternalServerError).
			WithDetails(map[string]any{"result": result}))
		return
	}
	writeJSONResponse(w, http.StatusOK, sweepResponse{Result: result, Total: result.Total()})
}
