package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v78"

	"github.com/deskhub/api/internal/payments"
	"github.com/deskhub/api/internal/platform/auth"
	"github.com/deskhub/api/internal/platform/httpx"
	"github.com/deskhub/api/internal/services"
)

const (
	maxCheckoutBodySize    = 4 * 1024
	defaultCheckoutSession = 30 * time.Minute
)

// CheckoutHandlers prepares Stripe Checkout parameters for a booking the caller is paying for.
type CheckoutHandlers struct {
	authn      *auth.Authenticator
	bookings   services.BookingCheckoutService
	successURL string
	cancelURL  string
	sessionTTL time.Duration
	clock      func() time.Time
}

// CheckoutHandlerOption customises CheckoutHandlers.
type CheckoutHandlerOption func(*CheckoutHandlers)

// WithCheckoutRedirects sets the hosted page redirect targets.
func WithCheckoutRedirects(successURL, cancelURL string) CheckoutHandlerOption {
	return func(h *CheckoutHandlers) {
		h.successURL = strings.TrimSpace(successURL)
		h.cancelURL = strings.TrimSpace(cancelURL)
	}
}

// WithCheckoutClock overrides the clock used for session expiry.
func WithCheckoutClock(clock func() time.Time) CheckoutHandlerOption {
	return func(h *CheckoutHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewCheckoutHandlers constructs CheckoutHandlers.
func NewCheckoutHandlers(authn *auth.Authenticator, bookings services.BookingCheckoutService, opts ...CheckoutHandlerOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:      authn,
		bookings:   bookings,
		sessionTTL: defaultCheckoutSession,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /me/checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/checkout", func(rt chi.Router) {
		if h.authn != nil {
			rt.Use(h.authn.RequireFirebaseAuth())
		}
		rt.Post("/params", h.buildParams)
	})
}

type checkoutParamsRequest struct {
	BookingID     string `json:"bookingId"`
	CustomerEmail string `json:"customerEmail"`
}

type checkoutSessionPayload struct {
	Mode                 string            `json:"mode"`
	Currency             string            `json:"currency"`
	UnitAmount           int64             `json:"unitAmount"`
	ApplicationFeeAmount int64             `json:"applicationFeeAmount"`
	Destination          string            `json:"destination"`
	ClientReferenceID    string            `json:"clientReferenceId"`
	ProductName          string            `json:"productName"`
	Description          string            `json:"description"`
	SuccessURL           string            `json:"successUrl"`
	CancelURL            string            `json:"cancelUrl"`
	CustomerEmail        string            `json:"customerEmail,omitempty"`
	Locale               string            `json:"locale,omitempty"`
	ExpiresAt            string            `json:"expiresAt"`
	IdempotencyKey       string            `json:"idempotencyKey"`
	Metadata             map[string]string `json:"metadata"`
}

type checkoutParamsResponse struct {
	Session checkoutSessionPayload `json:"session"`
}

func (h *CheckoutHandlers) buildParams(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req checkoutParamsRequest
	if !decodeJSONBody(w, r, maxCheckoutBodySize, &req) {
		return
	}

	bookingID := strings.TrimSpace(req.BookingID)
	if bookingID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "bookingId is required", http.StatusBadRequest))
		return
	}

	_, quote, err := h.bookings.QuoteBooking(ctx, bookingID, identity.UID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrBookingNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("booking_not_found", "booking not found", http.StatusNotFound))
		case errors.Is(err, services.ErrBookingForbidden):
			httpx.WriteError(ctx, w, httpx.NewError("booking_forbidden", "booking belongs to another user", http.StatusForbidden))
		case errors.Is(err, services.ErrBookingNotPayable):
			httpx.WriteError(ctx, w, httpx.NewError("booking_not_payable", "booking is not awaiting payment", http.StatusConflict))
		default:
			writeQuoteError(ctx, w, err)
		}
		return
	}

	expiresAt := h.clock().UTC().Add(h.sessionTTL)
	params, err := payments.BuildCheckoutSessionParams(ctx, payments.CheckoutRequest{
		Quote:          quote,
		BookingID:      bookingID,
		UserID:         identity.UID,
		CustomerEmail:  req.CustomerEmail,
		Locale:         displayLanguage(r).String(),
		SuccessURL:     h.successURL,
		CancelURL:      h.cancelURL,
		IdempotencyKey: "checkout_" + bookingID,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrHostNotConnected):
			httpx.WriteError(ctx, w, httpx.NewError("host_not_connected", "host cannot receive payments yet", http.StatusConflict))
		case errors.Is(err, payments.ErrInvalidCheckout):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			writeRepositoryError(ctx, w, err)
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, checkoutParamsResponse{Session: buildCheckoutSessionPayload(params)})
}

func buildCheckoutSessionPayload(params *stripe.CheckoutSessionParams) checkoutSessionPayload {
	payload := checkoutSessionPayload{
		Mode:              deref(params.Mode),
		ClientReferenceID: deref(params.ClientReferenceID),
		SuccessURL:        deref(params.SuccessURL),
		CancelURL:         deref(params.CancelURL),
		CustomerEmail:     deref(params.CustomerEmail),
		Locale:            deref(params.Locale),
		Metadata:          params.Metadata,
	}
	if params.IdempotencyKey != nil {
		payload.IdempotencyKey = *params.IdempotencyKey
	}
	if params.ExpiresAt != nil {
		payload.ExpiresAt = formatTime(time.Unix(*params.ExpiresAt, 0))
	}
	if len(params.LineItems) > 0 && params.LineItems[0].PriceData != nil {
		price := params.LineItems[0].PriceData
		payload.Currency = deref(price.Currency)
		if price.UnitAmount != nil {
			payload.UnitAmount = *price.UnitAmount
		}
		if price.ProductData != nil {
			payload.ProductName = deref(price.ProductData.Name)
			payload.Description = deref(price.ProductData.Description)
		}
	}
	if intent := params.PaymentIntentData; intent != nil {
		if intent.ApplicationFeeAmount != nil {
			payload.ApplicationFeeAmount = *intent.ApplicationFeeAmount
		}
		if intent.TransferData != nil {
			payload.Destination = deref(intent.TransferData.Destination)
		}
	}
	return payload
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
