// Package payments maps priced bookings onto Stripe Checkout parameters.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"

	domain "github.com/deskhub/api/internal/domain"
)

var (
	// ErrHostNotConnected is returned when the host has no connected Stripe account.
	ErrHostNotConnected = errors.New("payments: host stripe account not connected")
	// ErrInvalidCheckout signals a request that cannot produce a valid session.
	ErrInvalidCheckout = errors.New("payments: invalid checkout request")
)

// CheckoutRequest carries a priced booking and the redirect targets of the hosted page.
type CheckoutRequest struct {
	Quote          domain.Quote
	BookingID      string
	UserID         string
	HostID         string
	SpaceTitle     string
	CustomerEmail  string
	Locale         string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
	ExpiresAt      time.Time
}

// BuildCheckoutSessionParams builds destination-charge session parameters: one line item for the
// quote total, the platform application fee and a transfer of the remainder to the host account.
func BuildCheckoutSessionParams(ctx context.Context, req CheckoutRequest) (*stripe.CheckoutSessionParams, error) {
	amounts := req.Quote.Checkout
	destination := strings.TrimSpace(req.Quote.HostAccount)
	switch {
	case destination == "":
		return nil, ErrHostNotConnected
	case strings.TrimSpace(req.BookingID) == "":
		return nil, fmt.Errorf("%w: booking id is required", ErrInvalidCheckout)
	case strings.TrimSpace(req.SuccessURL) == "" || strings.TrimSpace(req.CancelURL) == "":
		return nil, fmt.Errorf("%w: success and cancel urls are required", ErrInvalidCheckout)
	case amounts.TotalCents <= 0:
		return nil, fmt.Errorf("%w: total must be positive", ErrInvalidCheckout)
	case amounts.ApplicationFeeCents < 0 || amounts.ApplicationFeeCents >= amounts.TotalCents:
		return nil, fmt.Errorf("%w: application fee %d not below total %d", ErrInvalidCheckout, amounts.ApplicationFeeCents, amounts.TotalCents)
	}

	currency := strings.ToLower(strings.TrimSpace(amounts.Currency))
	if currency == "" {
		currency = "eur"
	}
	title := strings.TrimSpace(req.SpaceTitle)
	if title == "" {
		title = req.Quote.SpaceID
	}

	metadata := map[string]string{
		"booking_id":  req.BookingID,
		"space_id":    req.Quote.SpaceID,
		"user_id":     req.UserID,
		"host_id":     req.HostID,
		"fee_profile": req.Quote.Profile,
		"base_amount": formatAmount(req.Quote.Pricing.Base),
		"service_fee": formatAmount(req.Quote.Pricing.ServiceFee),
		"vat_amount":  formatAmount(req.Quote.Pricing.VAT),
		"total":       formatAmount(req.Quote.Pricing.Total),
	}
	for k, v := range metadata {
		if v == "" {
			delete(metadata, k)
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		ClientReferenceID:  stripe.String(req.BookingID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(amounts.TotalCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String("Prenotazione: " + title),
					Description: stripe.String(lineDescription(req.Quote)),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(amounts.ApplicationFeeCents),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(destination),
			},
			Metadata: metadata,
		},
		Metadata: copyMetadata(metadata),
	}
	params.Context = ctx

	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	if req.Locale != "" {
		params.Locale = stripe.String(strings.ReplaceAll(strings.ToLower(req.Locale), "_", "-"))
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	return params, nil
}

func lineDescription(q domain.Quote) string {
	desc := "Prenotazione per " + q.Date
	if q.StartTime != "" && q.EndTime != "" {
		desc += " " + q.StartTime + "-" + q.EndTime
	}
	if label := q.Pricing.BreakdownLabel; label != "" {
		desc += " (" + label + ")"
	}
	return desc
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
