package validation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC) }

func fieldErrors(t *testing.T, err error) Errors {
	t.Helper()
	var errs Errors
	require.True(t, errors.As(err, &errs), "expected validation.Errors, got %T (%v)", err, err)
	return errs
}

func TestFiscalChecksums(t *testing.T) {
	require.True(t, IsCodiceFiscale("RSSMRA80A01H501U"))
	require.False(t, IsCodiceFiscale("RSSMRA80A01H501A"))
	require.False(t, IsCodiceFiscale("rssmra80a01h501u"))

	require.True(t, IsPartitaIVA("12345678903"))
	require.False(t, IsPartitaIVA("12345678901"))
	require.False(t, IsPartitaIVA("1234567890"))

	require.True(t, IsIBAN("GB82WEST12345698765432"))
	require.True(t, IsIBAN("DE89370400440532013000"))
	require.True(t, IsIBAN("IT60X0542811101000000123456"))
	require.False(t, IsIBAN("IT60X0542811101000000123457"))
}

func TestTaxDetailsValid(t *testing.T) {
	v := New(WithClock(fixedNow))
	details := TaxDetails{
		CodiceFiscale: "rssmra80a01h501u",
		PartitaIVA:    "12345678903",
		IBAN:          "IT60 X054 2811 1010 0000 0123 456",
		BIC:           "UNCRITMM",
		PECEmail:      "studio@legalmail.pec.it",
		SDICode:       "m5uxcr1",
	}.Normalize()
	require.NoError(t, v.Struct(details))
}

func TestTaxDetailsMessages(t *testing.T) {
	v := New(WithClock(fixedNow))
	errs := fieldErrors(t, v.Struct(TaxDetails{
		PartitaIVA: "1234",
		IBAN:       "IT60X0542811101000000123457",
		BIC:        "UNCR",
		PECEmail:   "studio@gmail.com",
		SDICode:    "ABC",
	}))
	msgs := errs.Messages()
	require.Equal(t, "Codice fiscale obbligatorio", msgs["codiceFiscale"])
	require.Equal(t, "P.IVA deve contenere esattamente 11 cifre", msgs["partitaIva"])
	require.Equal(t, "IBAN non valido (codice di controllo errato)", msgs["iban"])
	require.Equal(t, "BIC/SWIFT deve essere 8 o 11 caratteri alfanumerici", msgs["bic"])
	require.Equal(t, `Indirizzo PEC non valido (deve terminare con @pec.it o contenere "pec")`, msgs["pecEmail"])
	require.Equal(t, "Codice SDI deve essere esattamente 7 caratteri alfanumerici", msgs["sdiCode"])

	errs = fieldErrors(t, v.Struct(TaxDetails{CodiceFiscale: "RSSMRA80", IBAN: "12345"}))
	require.Equal(t, "Formato codice fiscale non valido (es: RSSMRA80A01H501U)", errs.Messages()["codiceFiscale"])
	require.Equal(t, "Formato IBAN non valido (es: IT60X0542811101000000123456)", errs.Messages()["iban"])
}

func TestFiscalProfileBusinessRules(t *testing.T) {
	v := New(WithClock(fixedNow))
	base := FiscalProfile{
		EntityType:        EntityBusiness,
		TaxID:             "IT12345678903",
		BillingAddress:    "Via Roma 1",
		BillingCity:       "Milano",
		BillingProvince:   "mi",
		BillingPostalCode: "20121",
	}

	errs := fieldErrors(t, v.Struct(base.Normalize()))
	require.Equal(t, "Richiesto almeno uno tra PEC o Codice SDI", errs.Messages()["pecEmail"])

	withSDI := base
	withSDI.SDICode = "M5UXCR1"
	require.NoError(t, v.Struct(withSDI.Normalize()))

	badPEC := base
	badPEC.PECEmail = "amministrazione@azienda.it"
	errs = fieldErrors(t, v.Struct(badPEC.Normalize()))
	require.Equal(t, "Deve essere un indirizzo PEC (es: nome@azienda.pec.it)", errs.Messages()["pecEmail"])

	badTaxID := withSDI
	badTaxID.TaxID = "12345678903"
	errs = fieldErrors(t, v.Struct(badTaxID.Normalize()))
	require.Equal(t, "Formato Partita IVA non valido (es: IT12345678901)", errs.Messages()["taxId"])
}

func TestFiscalProfilePrivateAndAddress(t *testing.T) {
	v := New(WithClock(fixedNow))
	profile := FiscalProfile{
		EntityType:        EntityPrivate,
		TaxID:             "IT12345678903",
		BillingAddress:    "Via",
		BillingCity:       "M",
		BillingProvince:   "Milano",
		BillingPostalCode: "2012",
	}
	msgs := fieldErrors(t, v.Struct(profile)).Messages()
	require.Equal(t, "Formato Codice Fiscale non valido (16 caratteri)", msgs["taxId"])
	require.Equal(t, "Indirizzo troppo corto (minimo 5 caratteri)", msgs["billingAddress"])
	require.Equal(t, "Città troppo corta (minimo 2 caratteri)", msgs["billingCity"])
	require.Equal(t, "Provincia deve essere di 2 lettere (es: MI, RM)", msgs["billingProvince"])
	require.Equal(t, "CAP deve essere di 5 cifre", msgs["billingPostalCode"])

	msgs = fieldErrors(t, v.Struct(FiscalProfile{EntityType: EntityPrivate})).Messages()
	require.Equal(t, "Campo obbligatorio", msgs["taxId"])
}

func TestBookingRequestRules(t *testing.T) {
	v := New(WithClock(fixedNow))
	valid := BookingRequest{Guests: 2, Date: "2026-10-19", StartTime: "09:00", EndTime: "12:30", DurationHours: 3.5}
	require.NoError(t, v.Struct(valid))
	require.NoError(t, v.Struct(BookingRequest{Guests: 1, Date: "2026-10-19", StartTime: "00:00", EndTime: "24:00", DurationHours: 24}))

	cases := []struct {
		name    string
		mutate  func(*BookingRequest)
		field   string
		message string
	}{
		{"fractional guests", func(b *BookingRequest) { b.Guests = 1.5 }, "guests", "Il numero di ospiti deve essere un numero intero"},
		{"no guests", func(b *BookingRequest) { b.Guests = 0 }, "guests", "Minimo 1 ospite"},
		{"too many guests", func(b *BookingRequest) { b.Guests = 101 }, "guests", "Massimo 100 ospiti"},
		{"past date", func(b *BookingRequest) { b.Date = "2026-10-18" }, "date", "La data di prenotazione non può essere nel passato"},
		{"bad time", func(b *BookingRequest) { b.StartTime = "24:00" }, "startTime", "Formato orario non valido (HH:MM)"},
		{"end past midnight", func(b *BookingRequest) { b.EndTime = "24:30" }, "endTime", "Formato orario non valido (HH:MM)"},
		{"too short", func(b *BookingRequest) { b.DurationHours = 0.25 }, "durationHours", "Durata minima: 30 minuti"},
		{"too long", func(b *BookingRequest) { b.DurationHours = 25 }, "durationHours", "Durata massima: 24 ore"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			msgs := fieldErrors(t, v.Struct(req)).Messages()
			require.Equal(t, tc.message, msgs[tc.field])
		})
	}
}

func TestSpaceListingRules(t *testing.T) {
	v := New()
	description := strings.Repeat("Open space luminoso con vista. ", 3)
	require.NoError(t, v.Struct(SpaceListing{Title: "Desk Navigli", Description: description, PricePerHour: 10, Capacity: 4}))

	msgs := fieldErrors(t, v.Struct(SpaceListing{
		Title:        "Desk",
		Description:  "corta",
		PricePerHour: 2000,
		PricePerDay:  10,
		Capacity:     2.5,
	})).Messages()
	require.Equal(t, "Il titolo deve contenere almeno 5 caratteri", msgs["title"])
	require.Equal(t, "La descrizione deve contenere almeno 50 caratteri", msgs["description"])
	require.Equal(t, "Prezzo massimo per ora: €1000", msgs["pricePerHour"])
	require.Equal(t, "Prezzo minimo per giorno: €20", msgs["pricePerDay"])
	require.Equal(t, "La capacità deve essere un numero intero", msgs["capacity"])

	msgs = fieldErrors(t, v.Struct(SpaceListing{
		Title:       "DROP TABLE spaces",
		Description: description + `<img src=x onerror=alert(1)>`,
		Capacity:    1001,
	})).Messages()
	require.Equal(t, "Caratteri non validi nel titolo", msgs["title"])
	require.Equal(t, "Contenuto non sicuro rilevato", msgs["description"])
	require.Equal(t, "Indicare almeno un prezzo orario o giornaliero", msgs["pricePerHour"])
	require.Equal(t, "Capacità massima: 1000 persone", msgs["capacity"])
}

func TestPaymentAndSearchRules(t *testing.T) {
	v := New()
	msgs := fieldErrors(t, v.Struct(PaymentRequest{Amount: 0.5, SessionID: "sess_1", PaymentIntentID: "ch_1"})).Messages()
	require.Equal(t, "Importo minimo: €1", msgs["amount"])
	require.Equal(t, "Session ID Stripe non valido", msgs["sessionId"])
	require.Equal(t, "Payment Intent ID Stripe non valido", msgs["paymentIntentId"])

	require.NoError(t, v.Struct(SearchQuery{Query: "coworking milano", City: "Milano"}))
	msgs = fieldErrors(t, v.Struct(SearchQuery{Query: "desk && rm"})).Messages()
	require.Equal(t, "Caratteri non sicuri rilevati", msgs["query"])
}

func TestPricingComputationRules(t *testing.T) {
	v := New()
	require.NoError(t, v.Struct(PricingComputation{DurationHours: 3.5, PricePerHour: 15, ServiceFeePct: 0.12, VATPct: 0.22}))

	msgs := fieldErrors(t, v.Struct(PricingComputation{DurationHours: 0, GuestsCount: 1.5, ServiceFeePct: 1, VATPct: 1.22})).Messages()
	require.Equal(t, "La durata deve essere maggiore di zero", msgs["durationHours"])
	require.Equal(t, "Il numero di ospiti deve essere un numero intero", msgs["guestsCount"])
	require.Equal(t, "La commissione deve essere inferiore al 100%", msgs["serviceFeePct"])
	require.Equal(t, "L'IVA deve essere inferiore al 100%", msgs["vatPct"])

	errs := fieldErrors(t, v.Struct(PricingComputation{DurationHours: 1, Rules: &PricingRuleSet{VATBase: "gross"}}))
	require.True(t, errs.Has("vatBase"))
	require.Equal(t, "Base IVA non valida", errs.Messages()["vatBase"])
}

func TestSecurityHelpers(t *testing.T) {
	require.True(t, ContainsSQLInjection("1; DROP TABLE bookings"))
	require.True(t, ContainsSQLInjection("x -- comment"))
	require.False(t, ContainsSQLInjection("Sala riunioni grande"))
	require.True(t, ContainsXSS("<script>alert(1)</script>"))
	require.True(t, ContainsXSS(`<a href="javascript:alert(1)">x</a>`))
	require.True(t, ContainsPathTraversal("../../etc/passwd"))
	require.True(t, ContainsCommandInjection("a|b"))
	require.True(t, ContainsHTML("<b>ciao</b>"))
	require.False(t, ContainsHTML("ciao"))
	require.False(t, ContainsHTML("Desk & Co"))

	require.Equal(t, "<p>Ciao <b>mondo</b></p>", SanitizeHTML(`<p onclick="x()">Ciao <b>mondo</b><script>alert(1)</script></p>`))
	require.Equal(t, "a b c", SanitizeText("  a\x00 \n b\t\tc  "))
	require.Len(t, SanitizeText(strings.Repeat("x", 12000)), maxSanitizedTextLength)
}
