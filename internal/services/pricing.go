package services

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/deskhub/api/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ComputePricing prices a booking with the canonical rules. It is pure and never fails;
// callers validate input beforehand.
func ComputePricing(in PricingInput) PricingResult {
	return ComputePricingWithRules(in, domain.CanonicalPricingRules())
}

// ComputePricingWithRules prices a booking, rounding each stage to cents before the next.
func ComputePricingWithRules(in PricingInput, rules PricingRules) PricingResult {
	rules = rules.Normalize()
	guests := in.GuestsCount
	if guests <= 0 {
		guests = 1
	}

	duration := decimal.NewFromFloat(in.DurationHours)
	isDayRate := in.DurationHours >= rules.DayRateThresholdHours

	unit := duration.Mul(decimal.NewFromFloat(in.PricePerHour))
	if isDayRate {
		unit = decimal.NewFromFloat(in.PricePerDay)
	}
	base := unit.Mul(decimal.NewFromInt(int64(guests))).Round(2)
	fee := base.Mul(decimal.NewFromFloat(in.ServiceFeePct)).Round(2)

	vat := decimal.Zero
	if !in.StripeTaxEnabled {
		taxable := base.Add(fee)
		if rules.VATBase == domain.VATOnServiceFee {
			taxable = fee
		}
		vat = taxable.Mul(decimal.NewFromFloat(in.VATPct))
		if rules.VATRounding == domain.RoundDown {
			vat = vat.RoundDown(2)
		} else {
			vat = vat.Round(2)
		}
	}
	total := base.Add(fee).Add(vat)

	return PricingResult{
		IsDayRate:      isDayRate,
		Base:           base.InexactFloat64(),
		ServiceFee:     fee.InexactFloat64(),
		VAT:            vat.InexactFloat64(),
		Total:          total.InexactFloat64(),
		BreakdownLabel: breakdownLabel(in.DurationHours, in.PricePerHour, guests, isDayRate, rules.Label),
	}
}

func breakdownLabel(hours, hourly float64, guests int, isDayRate bool, style domain.LabelStyle) string {
	var b strings.Builder
	if isDayRate {
		b.WriteString("Tariffa giornaliera (")
		b.WriteString(formatNumber(hours))
		b.WriteString("h)")
	} else {
		b.WriteString(formatNumber(hours))
		b.WriteString("h × €")
		b.WriteString(formatNumber(hourly))
		b.WriteString("/h")
	}
	switch {
	case guests > 1:
		b.WriteString(" × ")
		b.WriteString(strconv.Itoa(guests))
		b.WriteString(" persone")
	case style == domain.LabelAlwaysShowGuests:
		b.WriteString(" × 1 persona")
	}
	return b.String()
}

// formatNumber prints the shortest representation, without trailing zeros.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ToCents converts an amount in euro to cents, rounding half away from zero.
func ToCents(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(hundred).Round(0).IntPart()
}

// CheckoutAmountsFor expresses a pricing result in cents. The application fee is the
// service fee plus its VAT; the remainder goes to the host.
func CheckoutAmountsFor(result PricingResult) CheckoutAmounts {
	total := ToCents(result.Total)
	fee := decimal.NewFromFloat(result.ServiceFee).Add(decimal.NewFromFloat(result.VAT)).Mul(hundred).Round(0).IntPart()
	return CheckoutAmounts{
		Currency:            "eur",
		TotalCents:          total,
		ApplicationFeeCents: fee,
		HostAmountCents:     total - fee,
	}
}

// ComputeCommission splits base between a buyer fee added on top and a host fee withheld from the payout.
func ComputeCommission(base, buyerFeePct, hostFeePct float64) CommissionSplit {
	b := decimal.NewFromFloat(base).Round(2)
	buyerFee := b.Mul(decimal.NewFromFloat(buyerFeePct)).Round(2)
	hostFee := b.Mul(decimal.NewFromFloat(hostFeePct)).Round(2)
	return CommissionSplit{
		Base:                b.InexactFloat64(),
		BuyerFee:            buyerFee.InexactFloat64(),
		HostFee:             hostFee.InexactFloat64(),
		BuyerTotal:          b.Add(buyerFee).InexactFloat64(),
		HostPayout:          b.Sub(hostFee).InexactFloat64(),
		PlatformTotal:       buyerFee.Add(hostFee).InexactFloat64(),
		ApplicationFeeCents: hostFee.Mul(hundred).Round(0).IntPart(),
	}
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
