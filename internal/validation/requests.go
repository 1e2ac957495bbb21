package validation

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// Entity types accepted by FiscalProfile.
const (
	EntityBusiness = "business"
	EntityPrivate  = "private"
)

// TaxDetails are the payout tax and banking details of a host.
type TaxDetails struct {
	CodiceFiscale string `json:"codiceFiscale" validate:"required,codice_fiscale,cf_checksum"`
	PartitaIVA    string `json:"partitaIva" validate:"omitempty,len=11,numeric,piva_checksum"`
	IBAN          string `json:"iban" validate:"required,iban_format,iban_checksum"`
	BIC           string `json:"bic" validate:"omitempty,swift_bic"`
	PECEmail      string `json:"pecEmail" validate:"omitempty,pec_tax"`
	SDICode       string `json:"sdiCode" validate:"omitempty,sdi"`
}

// Normalize uppercases codes and strips the spaces users type in IBANs.
func (t TaxDetails) Normalize() TaxDetails {
	t.CodiceFiscale = NormalizeCode(t.CodiceFiscale)
	t.PartitaIVA = strings.TrimSpace(t.PartitaIVA)
	t.IBAN = NormalizeCode(t.IBAN)
	t.BIC = NormalizeCode(t.BIC)
	t.PECEmail = strings.TrimSpace(t.PECEmail)
	t.SDICode = NormalizeCode(t.SDICode)
	return t
}

// FiscalProfile is the invoicing identity of a coworker or host.
type FiscalProfile struct {
	EntityType        string `json:"entityType" validate:"required,oneof=business private"`
	TaxID             string `json:"taxId" validate:"required"`
	PECEmail          string `json:"pecEmail" validate:"omitempty,email,pec_profile"`
	SDICode           string `json:"sdiCode" validate:"omitempty,len=7,alphanum"`
	BillingAddress    string `json:"billingAddress" validate:"required,min=5,max=200"`
	BillingCity       string `json:"billingCity" validate:"required,min=2,max=100"`
	BillingProvince   string `json:"billingProvince" validate:"required,province"`
	BillingPostalCode string `json:"billingPostalCode" validate:"required,cap"`
}

// Normalize trims fields and uppercases codes.
func (p FiscalProfile) Normalize() FiscalProfile {
	p.EntityType = strings.ToLower(strings.TrimSpace(p.EntityType))
	p.TaxID = NormalizeCode(p.TaxID)
	p.PECEmail = strings.TrimSpace(p.PECEmail)
	p.SDICode = NormalizeCode(p.SDICode)
	p.BillingAddress = SanitizeText(p.BillingAddress)
	p.BillingCity = SanitizeText(p.BillingCity)
	p.BillingProvince = NormalizeCode(p.BillingProvince)
	p.BillingPostalCode = strings.TrimSpace(p.BillingPostalCode)
	return p
}

func validateFiscalProfile(sl validator.StructLevel) {
	p := sl.Current().Interface().(FiscalProfile)
	if p.TaxID == "" {
		return
	}
	switch p.EntityType {
	case EntityBusiness:
		if !vatNumberITPattern.MatchString(p.TaxID) {
			sl.ReportError(p.TaxID, "taxId", "TaxID", "vat_number_it", "")
		}
		if p.PECEmail == "" && p.SDICode == "" {
			sl.ReportError(p.PECEmail, "pecEmail", "PECEmail", "pec_or_sdi", "")
		}
	case EntityPrivate:
		if !IsCodiceFiscaleFormat(p.TaxID) {
			sl.ReportError(p.TaxID, "taxId", "TaxID", "codice_fiscale", "")
		}
	}
}

// BookingRequest carries the user-entered booking fields. Guests is a float so that
// fractional input is reported rather than rejected by the decoder.
type BookingRequest struct {
	Guests        float64 `json:"guests" validate:"whole,min=1,max=100"`
	Date          string  `json:"date" validate:"required,iso_date,not_past"`
	StartTime     string  `json:"startTime" validate:"required,hhmm"`
	EndTime       string  `json:"endTime" validate:"required,hhmm_end"`
	DurationHours float64 `json:"durationHours" validate:"min=0.5,max=24"`
}

// SpaceListing carries the host-editable fields of a space.
type SpaceListing struct {
	Title        string  `json:"title" validate:"required,min=5,max=100,no_html,no_sql,no_script"`
	Description  string  `json:"description" validate:"required,min=50,max=2000,no_script"`
	PricePerHour float64 `json:"pricePerHour" validate:"omitempty,min=5,max=1000"`
	PricePerDay  float64 `json:"pricePerDay" validate:"omitempty,min=20,max=5000"`
	Capacity     float64 `json:"capacity" validate:"whole,min=1,max=1000"`
}

func validateSpaceListing(sl validator.StructLevel) {
	s := sl.Current().Interface().(SpaceListing)
	if s.PricePerHour == 0 && s.PricePerDay == 0 {
		sl.ReportError(s.PricePerHour, "pricePerHour", "PricePerHour", "price_required", "")
	}
}

// PaymentRequest carries amounts and Stripe identifiers received from clients.
type PaymentRequest struct {
	Amount          float64 `json:"amount" validate:"min=1,max=50000"`
	SessionID       string  `json:"sessionId" validate:"omitempty,startswith=cs_"`
	PaymentIntentID string  `json:"paymentIntentId" validate:"omitempty,startswith=pi_"`
}

// Normalize trims the Stripe identifiers.
func (p PaymentRequest) Normalize() PaymentRequest {
	p.SessionID = strings.TrimSpace(p.SessionID)
	p.PaymentIntentID = strings.TrimSpace(p.PaymentIntentID)
	return p
}

// SearchQuery is a free-text space search.
type SearchQuery struct {
	Query string `json:"query" validate:"max=100,no_sql,no_shell,no_path_traversal"`
	City  string `json:"city" validate:"omitempty,max=100,no_sql,no_script"`
}

// Normalize collapses whitespace and strips control characters from both fields.
func (q SearchQuery) Normalize() SearchQuery {
	q.Query = SanitizeText(q.Query)
	q.City = SanitizeText(q.City)
	return q
}

// Name is a person or business display name.
type Name struct {
	Name string `json:"name" validate:"required,max=100,no_sql,no_script"`
}

func (n Name) Normalize() Name {
	n.Name = SanitizeText(n.Name)
	return n
}

// PricingComputation carries a raw pricing input submitted to the compute endpoint.
type PricingComputation struct {
	DurationHours    float64 `json:"durationHours" validate:"gt=0,max=24"`
	PricePerHour     float64 `json:"pricePerHour" validate:"min=0,max=1000"`
	PricePerDay      float64 `json:"pricePerDay" validate:"min=0,max=5000"`
	GuestsCount      float64 `json:"guestsCount" validate:"whole,min=0,max=100"`
	ServiceFeePct    float64 `json:"serviceFeePct" validate:"min=0,lt=1"`
	VATPct           float64 `json:"vatPct" validate:"min=0,lt=1"`
	StripeTaxEnabled bool    `json:"stripeTaxEnabled"`

	Rules *PricingRuleSet `json:"rules" validate:"omitempty"`
}

// PricingRuleSet selects pricing rule variants by name. Empty fields keep the canonical rule.
type PricingRuleSet struct {
	VATBase               string  `json:"vatBase" validate:"omitempty,oneof=base_and_fee service_fee"`
	VATRounding           string  `json:"vatRounding" validate:"omitempty,oneof=half_up down"`
	Label                 string  `json:"label" validate:"omitempty,oneof=omit_single_guest always_show_guests"`
	DayRateThresholdHours float64 `json:"dayRateThresholdHours" validate:"min=0,max=24"`
}
