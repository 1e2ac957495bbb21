package handlers

import (
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/deskhub/api/internal/services"
)

var displayLanguages = language.NewMatcher([]language.Tag{language.Italian, language.English})

// displayLanguage picks the amount formatting language from Accept-Language, defaulting to Italian.
func displayLanguage(r *http.Request) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return language.Italian
	}
	tag, _, _ := displayLanguages.Match(tags...)
	base, _ := tag.Base()
	if base.String() == "en" {
		return language.English
	}
	return language.Italian
}

// formatEuro renders an amount like "€ 1.234,50" for Italian.
func formatEuro(tag language.Tag, amount float64) string {
	p := message.NewPrinter(tag)
	return "€ " + p.Sprint(number.Decimal(amount, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

func buildDisplayAmounts(tag language.Tag, result services.PricingResult) displayAmountsPayload {
	return displayAmountsPayload{
		Base:       formatEuro(tag, result.Base),
		ServiceFee: formatEuro(tag, result.ServiceFee),
		VAT:        formatEuro(tag, result.VAT),
		Total:      formatEuro(tag, result.Total),
	}
}
