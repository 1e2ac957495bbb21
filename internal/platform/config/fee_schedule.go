package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	domain "github.com/deskhub/api/internal/domain"
)

// FeeSchedule lists the fee profiles available to the quote service and the dual commission rates.
type FeeSchedule struct {
	Profiles    map[string]domain.FeeProfile
	BuyerFeePct float64
	HostFeePct  float64
}

// Profile looks up a profile by case-insensitive name.
func (s FeeSchedule) Profile(name string) (domain.FeeProfile, bool) {
	profile, ok := s.Profiles[strings.ToLower(strings.TrimSpace(name))]
	return profile, ok
}

type feeScheduleFile struct {
	VATPct     *float64                   `yaml:"vat_pct"`
	Profiles   map[string]feeProfileEntry `yaml:"profiles"`
	Commission struct {
		BuyerFeePct *float64 `yaml:"buyer_fee_pct"`
		HostFeePct  *float64 `yaml:"host_fee_pct"`
	} `yaml:"commission"`
}

type feeProfileEntry struct {
	ServiceFeePct *float64 `yaml:"service_fee_pct"`
	VATPct        *float64 `yaml:"vat_pct"`
	VATBase       string   `yaml:"vat_base"`
	VATRounding   string   `yaml:"vat_rounding"`
	Label         string   `yaml:"label"`
	DayRateHours  float64  `yaml:"day_rate_hours"`
}

// DefaultFeeSchedule builds the schedule from environment percentages.
func DefaultFeeSchedule(p PricingConfig) FeeSchedule {
	display := domain.CanonicalPricingRules()
	checkout := domain.CanonicalPricingRules()
	checkout.VATBase = domain.VATOnServiceFee
	return FeeSchedule{
		Profiles: map[string]domain.FeeProfile{
			domain.FeeProfileDisplay: {
				Name:          domain.FeeProfileDisplay,
				ServiceFeePct: p.DisplayFeePct,
				VATPct:        p.VATPct,
				Rules:         display,
			},
			domain.FeeProfileCheckout: {
				Name:          domain.FeeProfileCheckout,
				ServiceFeePct: p.CheckoutFeePct,
				VATPct:        p.VATPct,
				Rules:         checkout,
			},
		},
		BuyerFeePct: p.BuyerFeePct,
		HostFeePct:  p.HostFeePct,
	}
}

// LoadFeeSchedule reads an optional YAML fee schedule layered over the environment defaults.
// An empty path returns the defaults.
func LoadFeeSchedule(path string, p PricingConfig) (FeeSchedule, error) {
	schedule := DefaultFeeSchedule(p)
	path = strings.TrimSpace(path)
	if path == "" {
		return schedule, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return FeeSchedule{}, fmt.Errorf("config: read fee schedule %s: %w", path, err)
	}
	var file feeScheduleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return FeeSchedule{}, fmt.Errorf("config: parse fee schedule %s: %w", path, err)
	}

	defaultVAT := p.VATPct
	if file.VATPct != nil {
		defaultVAT = *file.VATPct
		for name, profile := range schedule.Profiles {
			profile.VATPct = defaultVAT
			schedule.Profiles[name] = profile
		}
	}
	for rawName, entry := range file.Profiles {
		name := strings.ToLower(strings.TrimSpace(rawName))
		if name == "" {
			return FeeSchedule{}, errors.New("config: fee schedule profile name is empty")
		}
		profile, ok := schedule.Profiles[name]
		if !ok {
			profile = domain.FeeProfile{Name: name, VATPct: defaultVAT, Rules: domain.CanonicalPricingRules()}
		}
		if entry.ServiceFeePct != nil {
			profile.ServiceFeePct = *entry.ServiceFeePct
		}
		if entry.VATPct != nil {
			profile.VATPct = *entry.VATPct
		}
		if entry.VATBase != "" {
			profile.Rules.VATBase = domain.VATBase(entry.VATBase)
		}
		if entry.VATRounding != "" {
			profile.Rules.VATRounding = domain.VATRounding(entry.VATRounding)
		}
		if entry.Label != "" {
			profile.Rules.Label = domain.LabelStyle(entry.Label)
		}
		if entry.DayRateHours > 0 {
			profile.Rules.DayRateThresholdHours = entry.DayRateHours
		}
		if err := validateProfile(profile); err != nil {
			return FeeSchedule{}, err
		}
		schedule.Profiles[name] = profile
	}
	if file.Commission.BuyerFeePct != nil {
		schedule.BuyerFeePct = *file.Commission.BuyerFeePct
	}
	if file.Commission.HostFeePct != nil {
		schedule.HostFeePct = *file.Commission.HostFeePct
	}
	return schedule, nil
}

func validateProfile(profile domain.FeeProfile) error {
	if profile.ServiceFeePct < 0 || profile.ServiceFeePct >= 1 {
		return fmt.Errorf("config: fee profile %s: service_fee_pct must be within [0,1)", profile.Name)
	}
	if profile.VATPct < 0 || profile.VATPct >= 1 {
		return fmt.Errorf("config: fee profile %s: vat_pct must be within [0,1)", profile.Name)
	}
	if profile.Rules.Normalize() != profile.Rules {
		return fmt.Errorf("config: fee profile %s: unknown rule value", profile.Name)
	}
	return nil
}
