package validation

// messages maps "<Struct>.<field>.<tag>" to the message shown to users.
var messages = map[string]string{
	"TaxDetails.codiceFiscale.required":       "Codice fiscale obbligatorio",
	"TaxDetails.codiceFiscale.codice_fiscale": "Formato codice fiscale non valido (es: RSSMRA80A01H501U)",
	"TaxDetails.codiceFiscale.cf_checksum":    "Codice fiscale non valido (carattere di controllo errato)",
	"TaxDetails.partitaIva.len":               "P.IVA deve contenere esattamente 11 cifre",
	"TaxDetails.partitaIva.numeric":           "P.IVA deve contenere esattamente 11 cifre",
	"TaxDetails.partitaIva.piva_checksum":     "P.IVA non valida (cifra di controllo errata)",
	"TaxDetails.iban.required":                "IBAN obbligatorio",
	"TaxDetails.iban.iban_format":             "Formato IBAN non valido (es: IT60X0542811101000000123456)",
	"TaxDetails.iban.iban_checksum":           "IBAN non valido (codice di controllo errato)",
	"TaxDetails.bic.swift_bic":                "BIC/SWIFT deve essere 8 o 11 caratteri alfanumerici",
	"TaxDetails.pecEmail.pec_tax":             `Indirizzo PEC non valido (deve terminare con @pec.it o contenere "pec")`,
	"TaxDetails.sdiCode.sdi":                  "Codice SDI deve essere esattamente 7 caratteri alfanumerici",

	"FiscalProfile.entityType.oneof":         "Tipo soggetto non valido",
	"FiscalProfile.taxId.vat_number_it":      "Formato Partita IVA non valido (es: IT12345678901)",
	"FiscalProfile.taxId.codice_fiscale":     "Formato Codice Fiscale non valido (16 caratteri)",
	"FiscalProfile.pecEmail.pec_or_sdi":      "Richiesto almeno uno tra PEC o Codice SDI",
	"FiscalProfile.pecEmail.email":           "Formato email non valido",
	"FiscalProfile.pecEmail.pec_profile":     "Deve essere un indirizzo PEC (es: nome@azienda.pec.it)",
	"FiscalProfile.sdiCode.len":              "Il Codice SDI deve essere di 7 caratteri",
	"FiscalProfile.sdiCode.alphanum":         "Il Codice SDI deve contenere solo lettere e numeri",
	"FiscalProfile.billingAddress.min":       "Indirizzo troppo corto (minimo 5 caratteri)",
	"FiscalProfile.billingAddress.max":       "Indirizzo troppo lungo (massimo 200 caratteri)",
	"FiscalProfile.billingCity.min":          "Città troppo corta (minimo 2 caratteri)",
	"FiscalProfile.billingCity.max":          "Nome città troppo lungo (massimo 100 caratteri)",
	"FiscalProfile.billingProvince.province": "Provincia deve essere di 2 lettere (es: MI, RM)",
	"FiscalProfile.billingPostalCode.cap":    "CAP deve essere di 5 cifre",

	"BookingRequest.guests.whole":      "Il numero di ospiti deve essere un numero intero",
	"BookingRequest.guests.min":        "Minimo 1 ospite",
	"BookingRequest.guests.max":        "Massimo 100 ospiti",
	"BookingRequest.date.iso_date":     "Formato data non valido (AAAA-MM-GG)",
	"BookingRequest.date.not_past":     "La data di prenotazione non può essere nel passato",
	"BookingRequest.startTime.hhmm":    "Formato orario non valido (HH:MM)",
	"BookingRequest.endTime.hhmm_end":  "Formato orario non valido (HH:MM)",
	"BookingRequest.durationHours.min": "Durata minima: 30 minuti",
	"BookingRequest.durationHours.max": "Durata massima: 24 ore",

	"SpaceListing.title.min":                   "Il titolo deve contenere almeno 5 caratteri",
	"SpaceListing.title.max":                   "Il titolo non può superare i 100 caratteri",
	"SpaceListing.title.no_html":               "Il titolo non può contenere codice HTML",
	"SpaceListing.title.no_sql":                "Caratteri non validi nel titolo",
	"SpaceListing.title.no_script":             "Contenuto non sicuro rilevato",
	"SpaceListing.description.min":             "La descrizione deve contenere almeno 50 caratteri",
	"SpaceListing.description.max":             "La descrizione non può superare i 2000 caratteri",
	"SpaceListing.description.no_script":       "Contenuto non sicuro rilevato",
	"SpaceListing.pricePerHour.min":            "Prezzo minimo per ora: €5",
	"SpaceListing.pricePerHour.max":            "Prezzo massimo per ora: €1000",
	"SpaceListing.pricePerHour.price_required": "Indicare almeno un prezzo orario o giornaliero",
	"SpaceListing.pricePerDay.min":             "Prezzo minimo per giorno: €20",
	"SpaceListing.pricePerDay.max":             "Prezzo massimo per giorno: €5000",
	"SpaceListing.capacity.whole":              "La capacità deve essere un numero intero",
	"SpaceListing.capacity.min":                "Capacità minima: 1 persona",
	"SpaceListing.capacity.max":                "Capacità massima: 1000 persone",

	"PaymentRequest.amount.min":                 "Importo minimo: €1",
	"PaymentRequest.amount.max":                 "Importo massimo: €50000",
	"PaymentRequest.sessionId.startswith":       "Session ID Stripe non valido",
	"PaymentRequest.paymentIntentId.startswith": "Payment Intent ID Stripe non valido",

	"SearchQuery.query.max":               "Ricerca troppo lunga",
	"SearchQuery.query.no_sql":            "Caratteri non validi nella ricerca",
	"SearchQuery.query.no_shell":          "Caratteri non sicuri rilevati",
	"SearchQuery.query.no_path_traversal": "Caratteri non sicuri rilevati",
	"SearchQuery.city.max":                "Nome città troppo lungo",
	"SearchQuery.city.no_sql":             "Nome città contiene caratteri non validi",
	"SearchQuery.city.no_script":          "Contenuto non sicuro rilevato",

	"PricingComputation.durationHours.gt":        "La durata deve essere maggiore di zero",
	"PricingComputation.durationHours.max":       "Durata massima: 24 ore",
	"PricingComputation.guestsCount.whole":       "Il numero di ospiti deve essere un numero intero",
	"PricingComputation.serviceFeePct.lt":        "La commissione deve essere inferiore al 100%",
	"PricingComputation.vatPct.lt":               "L'IVA deve essere inferiore al 100%",
	"PricingComputation.rules.vatBase.oneof":     "Base IVA non valida",
	"PricingComputation.rules.vatRounding.oneof": "Arrotondamento IVA non valido",
	"PricingComputation.rules.label.oneof":       "Formato etichetta non valido",

	"Name.name.max":       "Nome troppo lungo",
	"Name.name.no_sql":    "Caratteri non validi nel nome",
	"Name.name.no_script": "Contenuto non sicuro rilevato",
}

var tagFallbacks = map[string]string{
	"required": "Campo obbligatorio",
	"min":      "Valore troppo basso",
	"max":      "Valore troppo alto",
}

func messageFor(namespace, tag string) string {
	if msg, ok := messages[namespace+"."+tag]; ok {
		return msg
	}
	if msg, ok := tagFallbacks[tag]; ok {
		return msg
	}
	return "Valore non valido"
}
