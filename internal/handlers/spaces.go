package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/deskhub/api/internal/platform/httpx"
	"github.com/deskhub/api/internal/repositories"
	"github.com/deskhub/api/internal/services"
	"github.com/deskhub/api/internal/validation"
)

const maxQuoteBodySize = 4 * 1024

// SpaceHandlers exposes quotes and availability of a space.
type SpaceHandlers struct {
	quotes       services.QuoteService
	availability services.AvailabilityService
	validator    *validation.Validator
}

// NewSpaceHandlers constructs SpaceHandlers. A nil validator uses the default one.
func NewSpaceHandlers(quotes services.QuoteService, availability services.AvailabilityService, v *validation.Validator) *SpaceHandlers {
	if v == nil {
		v = validation.New()
	}
	return &SpaceHandlers{quotes: quotes, availability: availability, validator: v}
}

// Routes registers the /spaces endpoints.
func (h *SpaceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{spaceId}/quote", h.quote)
	r.Get("/{spaceId}/availability", h.getAvailability)
}

type quoteRequest struct {
	Date      string  `json:"date"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	Guests    float64 `json:"guests"`
	Profile   string  `json:"profile"`
}

type checkoutAmountsPayload struct {
	Currency            string `json:"currency"`
	TotalCents          int64  `json:"totalCents"`
	ApplicationFeeCents int64  `json:"applicationFeeCents"`
	HostAmountCents     int64  `json:"hostAmountCents"`
}

type commissionPayload struct {
	Base                float64 `json:"base"`
	BuyerFee            float64 `json:"buyerFee"`
	HostFee             float64 `json:"hostFee"`
	BuyerTotal          float64 `json:"buyerTotal"`
	HostPayout          float64 `json:"hostPayout"`
	PlatformTotal       float64 `json:"platformTotal"`
	ApplicationFeeCents int64   `json:"applicationFeeCents"`
}

type quotePayload struct {
	SpaceID    string                 `json:"spaceId"`
	Date       string                 `json:"date"`
	StartTime  string                 `json:"startTime"`
	EndTime    string                 `json:"endTime"`
	Guests     int                    `json:"guests"`
	Profile    string                 `json:"profile"`
	RateSource string                 `json:"rateSource"`
	Pricing    pricingResultPayload   `json:"pricing"`
	Display    displayAmountsPayload  `json:"display"`
	Checkout   checkoutAmountsPayload `json:"checkout"`
	Commission commissionPayload      `json:"commission"`
}

type quoteResponse struct {
	Quote quotePayload `json:"quote"`
}

func (h *SpaceHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quote_service_unavailable", "quote service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req quoteRequest
	if !decodeJSONBody(w, r, maxQuoteBodySize, &req) {
		return
	}
	if req.Guests != math.Trunc(req.Guests) {
		err := h.validator.Struct(validation.BookingRequest{
			Guests:        req.Guests,
			Date:          req.Date,
			StartTime:     req.StartTime,
			EndTime:       req.EndTime,
			DurationHours: 1,
		})
		if err == nil || !writeValidationError(ctx, w, err) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "guests must be a whole number", http.StatusBadRequest))
		}
		return
	}

	quote, err := h.quotes.Quote(ctx, services.QuoteCommand{
		SpaceID:   chi.URLParam(r, "spaceId"),
		Date:      strings.TrimSpace(req.Date),
		StartTime: strings.TrimSpace(req.StartTime),
		EndTime:   strings.TrimSpace(req.EndTime),
		Guests:    int(req.Guests),
		Profile:   req.Profile,
	})
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	lang := displayLanguage(r)
	writeJSONResponse(w, http.StatusOK, quoteResponse{Quote: quotePayload{
		SpaceID:    quote.SpaceID,
		Date:       quote.Date,
		StartTime:  quote.StartTime,
		EndTime:    quote.EndTime,
		Guests:     quote.Guests,
		Profile:    quote.Profile,
		RateSource: quote.RateSource,
		Pricing:    buildPricingPayload(quote.Pricing),
		Display:    buildDisplayAmounts(lang, quote.Pricing),
		Checkout: checkoutAmountsPayload{
			Currency:            quote.Checkout.Currency,
			TotalCents:          quote.Checkout.TotalCents,
			ApplicationFeeCents: quote.Checkout.ApplicationFeeCents,
			HostAmountCents:     quote.Checkout.HostAmountCents,
		},
		Commission: commissionPayload{
			Base:                quote.Commission.Base,
			BuyerFee:            quote.Commission.BuyerFee,
			HostFee:             quote.Commission.HostFee,
			BuyerTotal:          quote.Commission.BuyerTotal,
			HostPayout:          quote.Commission.HostPayout,
			PlatformTotal:       quote.Commission.PlatformTotal,
			ApplicationFeeCents: quote.Commission.ApplicationFeeCents,
		},
	}})
}

func writeQuoteError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPricingInvalidInput):
		if writeValidationError(ctx, w, err) {
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPricingSpaceNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("space_not_found", "space not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPricingNoRate):
		httpx.WriteError(ctx, w, httpx.NewError("space_not_priced", "space has no hourly or daily price", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPricingFeeExceedsTotal):
		httpx.WriteError(ctx, w, httpx.NewError("fee_exceeds_total", "application fee exceeds booking total", http.StatusUnprocessableEntity))
	default:
		writeRepositoryError(ctx, w, err)
	}
}

type slotPayload struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
	BookingID string `json:"bookingId,omitempty"`
}

type dayPayload struct {
	Date   string        `json:"date"`
	Status string        `json:"status"`
	Slots  []slotPayload `json:"slots"`
}

type availabilityResponse struct {
	SpaceID string       `json:"spaceId"`
	Days    []dayPayload `json:"days"`
}

func (h *SpaceHandlers) getAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.availability == nil {
		httpx.WriteError(ctx, w, httpx.NewError("availability_service_unavailable", "availability service unavailable", http.StatusServiceUnavailable))
		return
	}

	spaceID := strings.TrimSpace(chi.URLParam(r, "spaceId"))
	query := r.URL.Query()
	date := strings.TrimSpace(query.Get("date"))
	from := strings.TrimSpace(query.Get("from"))
	to := strings.TrimSpace(query.Get("to"))

	var days []services.DayAvailability
	switch {
	case date != "":
		day, err := h.availability.DayAvailability(ctx, spaceID, date)
		if err != nil {
			writeAvailabilityError(ctx, w, err)
			return
		}
		days = []services.DayAvailability{day}
	case from != "" && to != "":
		var err error
		days, err = h.availability.RangeAvailability(ctx, spaceID, from, to)
		if err != nil {
			writeAvailabilityError(ctx, w, err)
			return
		}
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "either date or from and to are required", http.StatusBadRequest))
		return
	}

	resp := availabilityResponse{SpaceID: spaceID, Days: make([]dayPayload, 0, len(days))}
	for _, day := range days {
		slots := make([]slotPayload, 0, len(day.Slots))
		for _, slot := range day.Slots {
			slots = append(slots, slotPayload{
				Start:     slot.Start,
				End:       slot.End,
				Available: slot.Available,
				BookingID: slot.BookingID,
			})
		}
		resp.Days = append(resp.Days, dayPayload{Date: day.Date, Status: string(day.Status), Slots: slots})
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func writeAvailabilityError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAvailabilityRangeTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("range_too_large", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAvailabilityInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAvailabilitySpaceNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("space_not_found", "space not found", http.StatusNotFound))
	default:
		writeRepositoryError(ctx, w, err)
	}
}

// writeRepositoryError maps persistence failures and unknown errors.
func writeRepositoryError(ctx context.Context, w http.ResponseWriter, err error) {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
			return
		case repoErr.IsConflict():
			httpx.WriteError(ctx, w, httpx.NewError("conflict", "resource conflict", http.StatusConflict))
			return
		case repoErr.IsUnavailable():
			httpx.WriteError(ctx, w, httpx.NewError("dependency_unavailable", "backing service unavailable", http.StatusServiceUnavailable))
			return
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
}
