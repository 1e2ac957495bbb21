package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/repositories"
	"github.com/deskhub/api/internal/validation"
)

var (
	// ErrPricingInvalidInput signals malformed booking fields. It is joined with validation.Errors when
	// field messages are available.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingSpaceNotFound is returned when the space does not exist or is not published.
	ErrPricingSpaceNotFound = errors.New("pricing: space not found")
	// ErrPricingNoRate is returned when the space has neither an hourly nor a daily price.
	ErrPricingNoRate = errors.New("pricing: space has no rate")
	// ErrPricingFeeExceedsTotal guards against an application fee that would swallow the payment.
	ErrPricingFeeExceedsTotal = errors.New("pricing: application fee exceeds total")
)

// Rate sources reported on a Quote.
const (
	RateSourceHourly      = "hourly"
	RateSourceDaily       = "daily"
	RateSourceHourlyAsDay = "hourly_as_daily"
	RateSourceDailyAsHour = "daily_as_hourly"
)

// PricingEngine implements QuoteService.
type PricingEngine struct {
	spaces      repositories.SpaceRepository
	fees        FeeSchedule
	buyerFeePct float64
	hostFeePct  float64
	validator   *validation.Validator
	logger      func(context.Context, string, map[string]any)
}

// PricingEngineDeps bundles collaborators of the PricingEngine.
type PricingEngineDeps struct {
	Spaces      repositories.SpaceRepository
	Fees        FeeSchedule
	BuyerFeePct float64
	HostFeePct  float64
	Validator   *validation.Validator
	Logger      func(context.Context, string, map[string]any)
}

var _ QuoteService = (*PricingEngine)(nil)

// NewPricingEngine constructs the quote service.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.Spaces == nil {
		return nil, errors.New("pricing engine: space repository is required")
	}
	if deps.Fees == nil {
		return nil, errors.New("pricing engine: fee schedule is required")
	}
	if _, ok := deps.Fees.Profile(domain.FeeProfileDisplay); !ok {
		return nil, errors.New("pricing engine: display fee profile is required")
	}
	v := deps.Validator
	if v == nil {
		v = validation.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PricingEngine{
		spaces:      deps.Spaces,
		fees:        deps.Fees,
		buyerFeePct: deps.BuyerFeePct,
		hostFeePct:  deps.HostFeePct,
		validator:   v,
		logger:      logger,
	}, nil
}

// Quote prices cmd against the stored space.
func (e *PricingEngine) Quote(ctx context.Context, cmd QuoteCommand) (Quote, error) {
	cmd.SpaceID = strings.TrimSpace(cmd.SpaceID)
	if cmd.SpaceID == "" {
		return Quote{}, fmt.Errorf("%w: space id is required", ErrPricingInvalidInput)
	}
	if cmd.Guests == 0 {
		cmd.Guests = 1
	}

	hours, _ := BookingDuration(cmd.StartTime, cmd.EndTime)
	if err := e.validator.Struct(validation.BookingRequest{
		Guests:        float64(cmd.Guests),
		Date:          cmd.Date,
		StartTime:     cmd.StartTime,
		EndTime:       cmd.EndTime,
		DurationHours: hours,
	}); err != nil {
		return Quote{}, fmt.Errorf("%w: %w", ErrPricingInvalidInput, err)
	}

	profileName := strings.ToLower(strings.TrimSpace(cmd.Profile))
	if profileName == "" {
		profileName = domain.FeeProfileDisplay
	}
	profile, ok := e.fees.Profile(profileName)
	if !ok {
		return Quote{}, fmt.Errorf("%w: unknown fee profile %q", ErrPricingInvalidInput, cmd.Profile)
	}

	space, err := e.spaces.FindByID(ctx, cmd.SpaceID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Quote{}, fmt.Errorf("%w: %s", ErrPricingSpaceNotFound, cmd.SpaceID)
		}
		return Quote{}, err
	}
	if !space.Published {
		return Quote{}, fmt.Errorf("%w: %s", ErrPricingSpaceNotFound, cmd.SpaceID)
	}
	if space.Capacity > 0 && cmd.Guests > space.Capacity {
		return Quote{}, fmt.Errorf("%w: %w", ErrPricingInvalidInput, validation.Errors{{
			Field:   "guests",
			Tag:     "capacity",
			Message: fmt.Sprintf("Massimo %d ospiti per questo spazio", space.Capacity),
		}})
	}

	rules := profile.Rules.Normalize()
	hourly, daily, source, err := resolveRates(space, hours >= rules.DayRateThresholdHours, rules.DayRateThresholdHours)
	if err != nil {
		return Quote{}, err
	}

	input := PricingInput{
		DurationHours:    hours,
		PricePerHour:     hourly,
		PricePerDay:      daily,
		GuestsCount:      cmd.Guests,
		ServiceFeePct:    profile.ServiceFeePct,
		VATPct:           profile.VATPct,
		StripeTaxEnabled: space.StripeTaxEnabled,
	}
	result := ComputePricingWithRules(input, rules)
	checkout := CheckoutAmountsFor(result)
	if checkout.ApplicationFeeCents >= checkout.TotalCents {
		e.logger(ctx, "pricing.fee_exceeds_total", map[string]any{
			"spaceId":             space.ID,
			"totalCents":          checkout.TotalCents,
			"applicationFeeCents": checkout.ApplicationFeeCents,
		})
		return Quote{}, ErrPricingFeeExceedsTotal
	}

	return Quote{
		SpaceID:     space.ID,
		Date:        cmd.Date,
		StartTime:   cmd.StartTime,
		EndTime:     cmd.EndTime,
		Guests:      cmd.Guests,
		Profile:     profile.Name,
		Input:       input,
		Pricing:     result,
		Checkout:    checkout,
		Commission:  ComputeCommission(result.Base, e.buyerFeePct, e.hostFeePct),
		RateSource:  source,
		HostAccount: space.HostStripeAccountID,
	}, nil
}

// resolveRates substitutes a missing rate with the other one scaled by the day-rate threshold.
func resolveRates(space Space, dayRate bool, threshold float64) (hourly, daily float64, source string, err error) {
	hasHourly := space.PricePerHour > 0 && validAmount(space.PricePerHour)
	hasDaily := space.PricePerDay > 0 && validAmount(space.PricePerDay)
	switch {
	case !hasHourly && !hasDaily:
		return 0, 0, "", fmt.Errorf("%w: %s", ErrPricingNoRate, space.ID)
	case dayRate && hasDaily:
		return space.PricePerHour, space.PricePerDay, RateSourceDaily, nil
	case dayRate:
		return space.PricePerHour, space.PricePerHour * threshold, RateSourceHourlyAsDay, nil
	case hasHourly:
		return space.PricePerHour, space.PricePerDay, RateSourceHourly, nil
	default:
		return space.PricePerDay / threshold, space.PricePerDay, RateSourceDailyAsHour, nil
	}
}
