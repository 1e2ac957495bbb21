package domain

// PricingInput captures the raw parameters of a single booking price computation.
type PricingInput struct {
	DurationHours    float64
	PricePerHour     float64
	PricePerDay      float64
	GuestsCount      int
	ServiceFeePct    float64
	VATPct           float64
	StripeTaxEnabled bool
}

// PricingResult is the rounded breakdown returned by the pricing engine.
type PricingResult struct {
	IsDayRate      bool
	Base           float64
	ServiceFee     float64
	VAT            float64
	Total          float64
	BreakdownLabel string
}

// VATBase selects which amount VAT is levied on.
type VATBase string

const (
	// VATOnBaseAndFee applies VAT to base plus service fee.
	VATOnBaseAndFee VATBase = "base_and_fee"
	// VATOnServiceFee applies VAT to the platform service fee only.
	VATOnServiceFee VATBase = "service_fee"
)

// VATRounding selects how the VAT amount is rounded to cents.
type VATRounding string

const (
	// RoundHalfUp rounds half away from zero.
	RoundHalfUp VATRounding = "half_up"
	// RoundDown truncates toward zero.
	RoundDown VATRounding = "down"
)

// LabelStyle controls the guest suffix of the breakdown label.
type LabelStyle string

const (
	// LabelOmitSingleGuest drops the suffix when a single guest books.
	LabelOmitSingleGuest LabelStyle = "omit_single_guest"
	// LabelAlwaysShowGuests always appends the guest count.
	LabelAlwaysShowGuests LabelStyle = "always_show_guests"
)

// DefaultDayRateThresholdHours is the duration from which the daily price applies.
const DefaultDayRateThresholdHours = 8.0

// PricingRules holds the variation points of the pricing engine. The zero value
// resolves to the canonical rules.
type PricingRules struct {
	VATBase               VATBase
	VATRounding           VATRounding
	Label                 LabelStyle
	DayRateThresholdHours float64
}

// CanonicalPricingRules returns the default rule set: VAT on base plus fee, truncated to
// cents, with base and fee rounded half up.
func CanonicalPricingRules() PricingRules {
	return PricingRules{
		VATBase:               VATOnBaseAndFee,
		VATRounding:           RoundDown,
		Label:                 LabelOmitSingleGuest,
		DayRateThresholdHours: DefaultDayRateThresholdHours,
	}
}

// Normalize fills unset fields with canonical values.
func (r PricingRules) Normalize() PricingRules {
	canonical := CanonicalPricingRules()
	switch r.VATBase {
	case VATOnBaseAndFee, VATOnServiceFee:
	default:
		r.VATBase = canonical.VATBase
	}
	switch r.VATRounding {
	case RoundHalfUp, RoundDown:
	default:
		r.VATRounding = canonical.VATRounding
	}
	switch r.Label {
	case LabelOmitSingleGuest, LabelAlwaysShowGuests:
	default:
		r.Label = canonical.Label
	}
	if r.DayRateThresholdHours <= 0 {
		r.DayRateThresholdHours = canonical.DayRateThresholdHours
	}
	return r
}

// FeeProfile couples a service fee percentage with the rules used to price it.
type FeeProfile struct {
	Name          string
	ServiceFeePct float64
	VATPct        float64
	Rules         PricingRules
}

const (
	// FeeProfileDisplay is used for listing and detail page estimates.
	FeeProfileDisplay = "display"
	// FeeProfileCheckout is used when building the payment session.
	FeeProfileCheckout = "checkout"
)

// CheckoutAmounts expresses a pricing result in minor currency units.
type CheckoutAmounts struct {
	Currency            string
	TotalCents          int64
	ApplicationFeeCents int64
	HostAmountCents     int64
}

// CommissionSplit describes the dual commission model where buyer and host each pay a fee.
type CommissionSplit struct {
	Base                float64
	BuyerFee            float64
	HostFee             float64
	BuyerTotal          float64
	HostPayout          float64
	PlatformTotal       float64
	ApplicationFeeCents int64
}

// Quote bundles a priced booking request with its payment amounts.
type Quote struct {
	SpaceID     string
	Date        string
	StartTime   string
	EndTime     string
	Guests      int
	Profile     string
	Input       PricingInput
	Pricing     PricingResult
	Checkout    CheckoutAmounts
	Commission  CommissionSplit
	RateSource  string
	HostAccount string
}
