package validation

import (
	"errors"
	"math"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	timeOfDayPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)
	isoDatePattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Validator runs struct tag rules and renders failures as Italian messages.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
	location *time.Location
}

// Option customises a Validator.
type Option func(*Validator)

// WithClock overrides the clock used by date rules.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithLocation sets the time zone in which booking dates are interpreted.
func WithLocation(loc *time.Location) Option {
	return func(v *Validator) {
		if loc != nil {
			v.location = loc
		}
	}
}

// New constructs a Validator with every custom rule registered.
func New(opts ...Option) *Validator {
	loc, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		loc = time.UTC
	}
	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		location: loc,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	v.validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	stringRules := map[string]func(string) bool{
		"codice_fiscale":    IsCodiceFiscaleFormat,
		"cf_checksum":       IsCodiceFiscale,
		"piva_checksum":     IsPartitaIVA,
		"iban_format":       IsIBANFormat,
		"iban_checksum":     IsIBAN,
		"swift_bic":         bicPattern.MatchString,
		"pec_tax":           pecTaxPattern.MatchString,
		"pec_profile":       pecProfilePattern.MatchString,
		"sdi":               sdiPattern.MatchString,
		"province":          provincePattern.MatchString,
		"cap":               capPattern.MatchString,
		"hhmm":              timeOfDayPattern.MatchString,
		"hhmm_end":          func(s string) bool { return s == "24:00" || timeOfDayPattern.MatchString(s) },
		"iso_date":          isValidISODate,
		"no_sql":            func(s string) bool { return !ContainsSQLInjection(s) },
		"no_script":         func(s string) bool { return !ContainsXSS(s) },
		"no_shell":          func(s string) bool { return !ContainsCommandInjection(s) },
		"no_path_traversal": func(s string) bool { return !ContainsPathTraversal(s) },
		"no_html":           func(s string) bool { return !ContainsHTML(s) },
		"not_past":          v.notPast,
	}
	for tag, rule := range stringRules {
		rule := rule
		mustRegister(v.validate, tag, func(fl validator.FieldLevel) bool {
			return rule(fl.Field().String())
		})
	}
	mustRegister(v.validate, "whole", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		switch field.Kind() {
		case reflect.Float32, reflect.Float64:
			f := field.Float()
			return f == math.Trunc(f)
		default:
			return true
		}
	})

	v.validate.RegisterStructValidation(validateFiscalProfile, FiscalProfile{})
	v.validate.RegisterStructValidation(validateSpaceListing, SpaceListing{})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic("validation: register " + tag + ": " + err.Error())
	}
}

// Struct validates a request value and returns Errors, or nil when valid.
func (v *Validator) Struct(value any) error {
	err := v.validate.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(Errors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: messageFor(fe.Namespace(), fe.Tag()),
		})
	}
	return out
}

func (v *Validator) notPast(value string) bool {
	day, err := time.ParseInLocation(time.DateOnly, value, v.location)
	if err != nil {
		return false
	}
	now := v.now().In(v.location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, v.location)
	return !day.Before(today)
}

func isValidISODate(value string) bool {
	if !isoDatePattern.MatchString(value) {
		return false
	}
	_, err := time.Parse(time.DateOnly, value)
	return err == nil
}

var defaultValidator = New()

// Validate runs the default Validator, which uses the wall clock.
func Validate(value any) error {
	return defaultValidator.Struct(value)
}
