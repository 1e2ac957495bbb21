package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/deskhub/api/internal/platform/httpx"
	"github.com/deskhub/api/internal/services"
	"github.com/deskhub/api/internal/validation"
)

const maxValidationBodySize = 16 * 1024

// ValidationHandlers checks form payloads before the client submits them.
type ValidationHandlers struct {
	validator *validation.Validator
}

// NewValidationHandlers constructs ValidationHandlers. A nil validator uses the default one.
func NewValidationHandlers(v *validation.Validator) *ValidationHandlers {
	if v == nil {
		v = validation.New()
	}
	return &ValidationHandlers{validator: v}
}

// Routes registers the /validation endpoints.
func (h *ValidationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/tax-details", h.validateTaxDetails)
	r.Post("/fiscal-profile", h.validateFiscalProfile)
	r.Post("/booking", h.validateBooking)
	r.Post("/space", h.validateSpace)
	r.Post("/payment", h.validatePayment)
	r.Post("/search", h.validateSearch)
	r.Post("/name", h.validateName)
}

type validationResponse struct {
	Valid      bool `json:"valid"`
	Normalized any  `json:"normalized,omitempty"`
}

func (h *ValidationHandlers) validateTaxDetails(w http.ResponseWriter, r *http.Request) {
	var req validation.TaxDetails
	if !decodeJSONBody(w, r, maxValidationBodySize, &req) {
		return
	}
	h.respond(w, r, req.Normalize())
}

func (h *ValidationHandlers) validateFiscalProfile(w http.ResponseWriter, r *http.Request) {
	var req validation.FiscalProfile
	if !decodeJSONBody(w, r, maxValidationBodySize, &req) {
		return
	}
	h.respond(w, r, req.Normalize())
}

func (h *ValidationHandlers) validateBooking(w http.ResponseWriter, r *http.Request) {
	var req validation.BookingRequest
	if !decodeJSONBody(w, r, maxValidationBodySize, &req) {
		return
	}
	if req.DurationHours == 0 {
		if hours, err := services.BookingDuration(req.StartTime, req.EndTime); err == nil {
			req.DurationHours = hours
		}
	}
	h.respond(w, r, req)
}

func (h *ValidationHandlers) validateSpace(w http.ResponseWriter, r *http.Request) {
	var req validation.SpaceListing
	if !decodeJSONBody(w, r, maxValidationBodySize, &req) {
		return
	}
	h.respond(w, r, req)
}

func (h *ValidationHandlers) validatePayment(w http.ResponseWriter, r *http.Request) {
	var req validation.PaymentRequest
	if !decodeJSONBody(w, r, maxValidationBodySize, &req) {
		return
	}
	h.respond(w, r, req.Normalize())
}

func (h *ValidationHandlers) validateSearch(w http.ResponseWriter, r *http.Request) {
	var req validation.SearchQuery
	if !decodeJSONBody(w, r, maxValidationBodySize, &req) {
		return
	}
	h.respondSanitized(w, r, req, req.Normalize())
}

func (h *ValidationHandlers) validateName(w http.ResponseWriter, r *http.Request) {
	var req validation.Name
	if !decodeJSONBody(w, r, maxValidationBodySize, &req) {
		return
	}
	h.respondSanitized(w, r, req, req.Normalize())
}

func (h *ValidationHandlers) respond(w http.ResponseWriter, r *http.Request, value any) {
	h.respondSanitized(w, r, value, value)
}

// respondSanitized validates the raw input, so that truncation or whitespace folding cannot
// hide a violation, and echoes the sanitized value on success.
func (h *ValidationHandlers) respondSanitized(w http.ResponseWriter, r *http.Request, raw, sanitized any) {
	ctx := r.Context()
	if err := h.validator.Struct(raw); err != nil {
		if !writeValidationError(ctx, w, err) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, validationResponse{Valid: true, Normalized: sanitized})
}
