package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/repositories"
	"github.com/deskhub/api/internal/validation"
)

type stubSpaceRepository struct {
	spaces map[string]domain.Space
	err    error
}

func (s *stubSpaceRepository) FindByID(_ context.Context, id string) (domain.Space, error) {
	if s.err != nil {
		return domain.Space{}, s.err
	}
	space, ok := s.spaces[id]
	if !ok {
		return domain.Space{}, repositories.NewNotFoundError("spaces.find", id)
	}
	return space, nil
}

type stubFeeSchedule map[string]FeeProfile

func (s stubFeeSchedule) Profile(name string) (FeeProfile, bool) {
	p, ok := s[name]
	return p, ok
}

func testFeeSchedule() stubFeeSchedule {
	checkoutRules := domain.CanonicalPricingRules()
	checkoutRules.VATBase = domain.VATOnServiceFee
	return stubFeeSchedule{
		domain.FeeProfileDisplay: {
			Name:          domain.FeeProfileDisplay,
			ServiceFeePct: 0.12,
			VATPct:        0.22,
			Rules:         domain.CanonicalPricingRules(),
		},
		domain.FeeProfileCheckout: {
			Name:          domain.FeeProfileCheckout,
			ServiceFeePct: 0.05,
			VATPct:        0.22,
			Rules:         checkoutRules,
		},
	}
}

func newTestPricingEngine(t *testing.T, spaces ...domain.Space) *PricingEngine {
	t.Helper()
	repo := &stubSpaceRepository{spaces: map[string]domain.Space{}}
	for _, s := range spaces {
		repo.spaces[s.ID] = s
	}
	engine, err := NewPricingEngine(PricingEngineDeps{
		Spaces:      repo,
		Fees:        testFeeSchedule(),
		BuyerFeePct: 0.05,
		HostFeePct:  0.05,
		Validator:   validation.New(validation.WithClock(func() time.Time { return time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC) })),
	})
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}
	return engine
}

func TestPricingEngineQuoteDisplayProfile(t *testing.T) {
	space := domain.Space{ID: "sp_1", PricePerHour: 15, PricePerDay: 100, Capacity: 4, Published: true, HostStripeAccountID: "acct_1"}
	engine := newTestPricingEngine(t, space)

	quote, err := engine.Quote(context.Background(), QuoteCommand{SpaceID: "sp_1", Date: "2025-02-03", StartTime: "09:00", EndTime: "12:30"})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.Profile != domain.FeeProfileDisplay {
		t.Fatalf("expected display profile, got %s", quote.Profile)
	}
	if quote.Guests != 1 {
		t.Fatalf("expected guests defaulted to 1, got %d", quote.Guests)
	}
	want := PricingResult{Base: 52.5, ServiceFee: 6.3, VAT: 12.93, Total: 71.73, BreakdownLabel: "3.5h × €15/h"}
	if quote.Pricing != want {
		t.Fatalf("unexpected pricing %+v", quote.Pricing)
	}
	if quote.Checkout.TotalCents != 7173 || quote.Checkout.ApplicationFeeCents != 1923 || quote.Checkout.HostAmountCents != 5250 {
		t.Fatalf("unexpected checkout amounts %+v", quote.Checkout)
	}
	if quote.Commission.BuyerFee != 2.63 || quote.Commission.ApplicationFeeCents != 263 {
		t.Fatalf("unexpected commission %+v", quote.Commission)
	}
	if quote.RateSource != RateSourceHourly || quote.HostAccount != "acct_1" {
		t.Fatalf("unexpected rate source %s or account %s", quote.RateSource, quote.HostAccount)
	}
}

func TestPricingEngineQuoteCheckoutProfile(t *testing.T) {
	space := domain.Space{ID: "sp_group", PricePerHour: 3.75, Capacity: 10, Published: true}
	engine := newTestPricingEngine(t, space)

	quote, err := engine.Quote(context.Background(), QuoteCommand{
		SpaceID: "sp_group", Date: "2025-02-03", StartTime: "09:00", EndTime: "16:00", Guests: 6, Profile: "Checkout",
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	want := PricingResult{Base: 157.5, ServiceFee: 7.88, VAT: 1.73, Total: 167.11, BreakdownLabel: "7h × €3.75/h × 6 persone"}
	if quote.Pricing != want {
		t.Fatalf("unexpected pricing %+v", quote.Pricing)
	}
	if quote.Checkout.ApplicationFeeCents != 961 {
		t.Fatalf("expected application fee 961, got %d", quote.Checkout.ApplicationFeeCents)
	}
}

func TestPricingEngineRateFallbacks(t *testing.T) {
	engine := newTestPricingEngine(t,
		domain.Space{ID: "hourly_only", PricePerHour: 12, Published: true},
		domain.Space{ID: "daily_only", PricePerDay: 80, Published: true},
	)

	dayQuote, err := engine.Quote(context.Background(), QuoteCommand{SpaceID: "hourly_only", Date: "2025-02-03", StartTime: "09:00", EndTime: "17:00"})
	if err != nil {
		t.Fatalf("Quote day: %v", err)
	}
	if !dayQuote.Pricing.IsDayRate || dayQuote.Pricing.Base != 96 || dayQuote.RateSource != RateSourceHourlyAsDay {
		t.Fatalf("expected hourly rate scaled to a day, got %+v (%s)", dayQuote.Pricing, dayQuote.RateSource)
	}

	hourQuote, err := engine.Quote(context.Background(), QuoteCommand{SpaceID: "daily_only", Date: "2025-02-03", StartTime: "10:00", EndTime: "14:00"})
	if err != nil {
		t.Fatalf("Quote hourly: %v", err)
	}
	if hourQuote.Pricing.IsDayRate || hourQuote.Pricing.Base != 40 || hourQuote.RateSource != RateSourceDailyAsHour {
		t.Fatalf("expected daily rate split into hours, got %+v (%s)", hourQuote.Pricing, hourQuote.RateSource)
	}
	if hourQuote.Pricing.BreakdownLabel != "4h × €10/h" {
		t.Fatalf("unexpected label %q", hourQuote.Pricing.BreakdownLabel)
	}
}

func TestPricingEngineQuoteErrors(t *testing.T) {
	engine := newTestPricingEngine(t,
		domain.Space{ID: "no_rate", Published: true},
		domain.Space{ID: "draft", PricePerHour: 10, Published: false},
		domain.Space{ID: "small", PricePerHour: 10, Capacity: 2, Published: true},
		domain.Space{ID: "tiny", PricePerHour: 0.004, Published: true},
	)

	tests := []struct {
		name string
		cmd  QuoteCommand
		want error
	}{
		{name: "missing space id", cmd: QuoteCommand{Date: "2025-02-03", StartTime: "09:00", EndTime: "10:00"}, want: ErrPricingInvalidInput},
		{name: "unknown space", cmd: QuoteCommand{SpaceID: "ghost", Date: "2025-02-03", StartTime: "09:00", EndTime: "10:00"}, want: ErrPricingSpaceNotFound},
		{name: "unpublished space", cmd: QuoteCommand{SpaceID: "draft", Date: "2025-02-03", StartTime: "09:00", EndTime: "10:00"}, want: ErrPricingSpaceNotFound},
		{name: "no rate", cmd: QuoteCommand{SpaceID: "no_rate", Date: "2025-02-03", StartTime: "09:00", EndTime: "10:00"}, want: ErrPricingNoRate},
		{name: "end before start", cmd: QuoteCommand{SpaceID: "small", Date: "2025-02-03", StartTime: "12:00", EndTime: "10:00"}, want: ErrPricingInvalidInput},
		{name: "past date", cmd: QuoteCommand{SpaceID: "small", Date: "2024-12-01", StartTime: "09:00", EndTime: "10:00"}, want: ErrPricingInvalidInput},
		{name: "unknown profile", cmd: QuoteCommand{SpaceID: "small", Date: "2025-02-03", StartTime: "09:00", EndTime: "10:00", Profile: "vip"}, want: ErrPricingInvalidInput},
		{name: "zero total", cmd: QuoteCommand{SpaceID: "tiny", Date: "2025-02-03", StartTime: "09:00", EndTime: "09:30"}, want: ErrPricingFeeExceedsTotal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Quote(context.Background(), tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPricingEngineCapacityError(t *testing.T) {
	engine := newTestPricingEngine(t, domain.Space{ID: "small", PricePerHour: 10, Capacity: 2, Published: true})

	_, err := engine.Quote(context.Background(), QuoteCommand{SpaceID: "small", Date: "2025-02-03", StartTime: "09:00", EndTime: "10:00", Guests: 3})
	if !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	var fields validation.Errors
	if !errors.As(err, &fields) || !fields.Has("guests") {
		t.Fatalf("expected guests field error, got %v", err)
	}
}

func TestNewPricingEngineRequiresDisplayProfile(t *testing.T) {
	_, err := NewPricingEngine(PricingEngineDeps{
		Spaces: &stubSpaceRepository{},
		Fees:   stubFeeSchedule{domain.FeeProfileCheckout: {Name: domain.FeeProfileCheckout}},
	})
	if err == nil {
		t.Fatal("expected error without display profile")
	}
}
