package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/platform/httpx"
	"github.com/deskhub/api/internal/services"
	"github.com/deskhub/api/internal/validation"
)

const maxPricingBodySize = 8 * 1024

// PricingHandlers exposes the raw pricing computation.
type PricingHandlers struct {
	validator *validation.Validator
}

// NewPricingHandlers constructs PricingHandlers. A nil validator uses the default one.
func NewPricingHandlers(v *validation.Validator) *PricingHandlers {
	if v == nil {
		v = validation.New()
	}
	return &PricingHandlers{validator: v}
}

// Routes registers the /pricing endpoints.
func (h *PricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/compute", h.compute)
}

type pricingResultPayload struct {
	IsDayRate      bool    `json:"isDayRate"`
	Base           float64 `json:"base"`
	ServiceFee     float64 `json:"serviceFee"`
	VAT            float64 `json:"vat"`
	Total          float64 `json:"total"`
	BreakdownLabel string  `json:"breakdownLabel"`
}

type displayAmountsPayload struct {
	Base       string `json:"base"`
	ServiceFee string `json:"serviceFee"`
	VAT        string `json:"vat"`
	Total      string `json:"total"`
}

type computeResponse struct {
	Pricing pricingResultPayload  `json:"pricing"`
	Display displayAmountsPayload `json:"display"`
}

func (h *PricingHandlers) compute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req validation.PricingComputation
	if !decodeJSONBody(w, r, maxPricingBodySize, &req) {
		return
	}
	if err := h.validator.Struct(req); err != nil {
		if !writeValidationError(ctx, w, err) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	rules := domain.CanonicalPricingRules()
	if req.Rules != nil {
		rules = domain.PricingRules{
			VATBase:               domain.VATBase(req.Rules.VATBase),
			VATRounding:           domain.VATRounding(req.Rules.VATRounding),
			Label:                 domain.LabelStyle(req.Rules.Label),
			DayRateThresholdHours: req.Rules.DayRateThresholdHours,
		}.Normalize()
	}

	result := services.ComputePricingWithRules(services.PricingInput{
		DurationHours:    req.DurationHours,
		PricePerHour:     req.PricePerHour,
		PricePerDay:      req.PricePerDay,
		GuestsCount:      int(req.GuestsCount),
		ServiceFeePct:    req.ServiceFeePct,
		VATPct:           req.VATPct,
		StripeTaxEnabled: req.StripeTaxEnabled,
	}, rules)

	lang := displayLanguage(r)
	writeJSONResponse(w, http.StatusOK, computeResponse{
		Pricing: buildPricingPayload(result),
		Display: buildDisplayAmounts(lang, result),
	})
}

func buildPricingPayload(result services.PricingResult) pricingResultPayload {
	return pricingResultPayload{
		IsDayRate:      result.IsDayRate,
		Base:           result.Base,
		ServiceFee:     result.ServiceFee,
		VAT:            result.VAT,
		Total:          result.Total,
		BreakdownLabel: result.BreakdownLabel,
	}
}
