package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/platform/auth"
	"github.com/deskhub/api/internal/platform/config"
	"github.com/deskhub/api/internal/repositories/memory"
	"github.com/deskhub/api/internal/services"
	"github.com/deskhub/api/internal/validation"
)

var fixtureNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

type handlerFixture struct {
	now          time.Time
	registry     *memory.Registry
	validator    *validation.Validator
	quotes       services.QuoteService
	availability services.AvailabilityService
	locks        services.SlotLockService
	checkout     services.BookingCheckoutService
	authn        *auth.Authenticator
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := &handlerFixture{now: fixtureNow}
	clock := func() time.Time { return f.now }

	f.registry = memory.NewRegistry(clock)
	f.registry.Seed(
		[]domain.Space{
			{ID: "sp_1", Title: "Desk Navigli", PricePerHour: 15, PricePerDay: 100, Capacity: 4, Published: true, HostStripeAccountID: "acct_1"},
			{ID: "sp_big", Title: "Loft Isola", PricePerHour: 1000, PricePerDay: 5000, Capacity: 100, Published: true},
		},
		[]domain.Booking{
			{ID: "b1", SpaceID: "sp_1", Date: "2025-01-15", StartTime: "10:00", EndTime: "11:00", Status: domain.BookingStatusConfirmed},
			{ID: "bk_1", SpaceID: "sp_1", UserID: "alice", Date: "2025-01-20", StartTime: "09:00", EndTime: "12:30", Guests: 2, Status: domain.BookingStatusPendingPayment},
			{ID: "bk_2", SpaceID: "sp_big", UserID: "alice", Date: "2025-01-20", StartTime: "09:00", EndTime: "10:00", Guests: 1, Status: domain.BookingStatusPending},
			{ID: "bk_paid", SpaceID: "sp_1", UserID: "alice", Date: "2025-01-21", StartTime: "14:00", EndTime: "15:00", Guests: 1, Status: domain.BookingStatusConfirmed},
		},
	)
	f.validator = validation.New(validation.WithClock(clock))

	schedule := config.DefaultFeeSchedule(config.PricingConfig{
		VATPct: 0.22, DisplayFeePct: 0.12, CheckoutFeePct: 0.05, BuyerFeePct: 0.05, HostFeePct: 0.05,
	})
	quotes, err := services.NewPricingEngine(services.PricingEngineDeps{
		Spaces:      f.registry.Spaces(),
		Fees:        schedule,
		BuyerFeePct: schedule.BuyerFeePct,
		HostFeePct:  schedule.HostFeePct,
		Validator:   f.validator,
	})
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}
	f.quotes = quotes

	f.availability, err = services.NewAvailabilityService(services.AvailabilityServiceDeps{
		Spaces:   f.registry.Spaces(),
		Bookings: f.registry.Bookings(),
	})
	if err != nil {
		t.Fatalf("NewAvailabilityService: %v", err)
	}

	f.locks, err = services.NewSlotLockService(services.SlotLockServiceDeps{
		Locks:        f.registry.SlotLocks(),
		Availability: f.availability,
		Clock:        clock,
	})
	if err != nil {
		t.Fatalf("NewSlotLockService: %v", err)
	}

	f.checkout, err = services.NewBookingCheckout(services.BookingCheckoutDeps{
		Bookings: f.registry.Bookings(),
		Quotes:   f.quotes,
	})
	if err != nil {
		t.Fatalf("NewBookingCheckout: %v", err)
	}

	f.authn = auth.NewAuthenticator(tokenAsUID{})
	return f
}

// tokenAsUID accepts "token-<uid>" bearer tokens.
type tokenAsUID struct{}

func (tokenAsUID) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	uid, ok := strings.CutPrefix(idToken, "token-")
	if !ok || uid == "" {
		return nil, errors.New("invalid token")
	}
	return &firebaseauth.Token{UID: uid, Claims: map[string]any{}}, nil
}

func newJSONRequest(method, path, body string) *http.Request {
	var reader *bytes.Buffer
	if body == "" {
		reader = &bytes.Buffer{}
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

// fieldMessages extracts field -> message from a validation_failed payload.
func fieldMessages(t *testing.T, body map[string]any) map[string]string {
	t.Helper()
	if body["error"] != "validation_failed" {
		t.Fatalf("expected validation_failed, got %v", body["error"])
	}
	raw, ok := body["fields"].([]any)
	if !ok {
		t.Fatalf("expected fields array, got %T", body["fields"])
	}
	out := make(map[string]string, len(raw))
	for _, item := range raw {
		entry := item.(map[string]any)
		field, _ := entry["field"].(string)
		message, _ := entry["message"].(string)
		if _, seen := out[field]; !seen {
			out[field] = message
		}
	}
	return out
}
