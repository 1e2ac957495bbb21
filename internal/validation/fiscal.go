package validation

import (
	"math/big"
	"regexp"
	"strings"
)

var (
	codiceFiscalePattern = regexp.MustCompile(`^[A-Z]{6}\d{2}[A-Z]\d{2}[A-Z]\d{3}[A-Z]$`)
	partitaIVAPattern    = regexp.MustCompile(`^\d{11}$`)
	vatNumberITPattern   = regexp.MustCompile(`^IT[0-9]{11}$`)
	ibanPattern          = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z0-9]{1,30}$`)
	bicPattern           = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)
	pecTaxPattern        = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]*pec\.[a-zA-Z]{2,}$`)
	pecProfilePattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.(pec|PEC)(\.[a-zA-Z]{2,})?$`)
	sdiPattern           = regexp.MustCompile(`^[A-Z0-9]{7}$`)
	provincePattern      = regexp.MustCompile(`^[A-Z]{2}$`)
	capPattern           = regexp.MustCompile(`^[0-9]{5}$`)
)

// odd positions (1st, 3rd, ...) of the codice fiscale use this conversion table.
var cfOddValues = map[rune]int{
	'0': 1, '1': 0, '2': 5, '3': 7, '4': 9, '5': 13, '6': 15, '7': 17, '8': 19, '9': 21,
	'A': 1, 'B': 0, 'C': 5, 'D': 7, 'E': 9, 'F': 13, 'G': 15, 'H': 17, 'I': 19, 'J': 21,
	'K': 2, 'L': 4, 'M': 18, 'N': 20, 'O': 11, 'P': 3, 'Q': 6, 'R': 8, 'S': 12, 'T': 14,
	'U': 16, 'V': 10, 'W': 22, 'X': 25, 'Y': 24, 'Z': 23,
}

// IsCodiceFiscaleFormat checks the 16-character personal tax code layout.
func IsCodiceFiscaleFormat(value string) bool {
	return codiceFiscalePattern.MatchString(value)
}

// IsCodiceFiscale checks layout and check character.
func IsCodiceFiscale(value string) bool {
	if !IsCodiceFiscaleFormat(value) {
		return false
	}
	sum := 0
	for i, r := range value[:15] {
		if i%2 == 0 {
			sum += cfOddValues[r]
			continue
		}
		if r >= '0' && r <= '9' {
			sum += int(r - '0')
		} else {
			sum += int(r - 'A')
		}
	}
	return rune(value[15]) == rune('A'+sum%26)
}

// IsPartitaIVA checks an 11-digit VAT number and its Luhn check digit.
func IsPartitaIVA(value string) bool {
	if !partitaIVAPattern.MatchString(value) {
		return false
	}
	sum := 0
	for i, r := range value {
		digit := int(r - '0')
		if i%2 == 1 {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
	}
	return sum%10 == 0
}

// IsIBANFormat checks the IBAN layout.
func IsIBANFormat(value string) bool {
	return ibanPattern.MatchString(value)
}

// IsIBAN checks layout and the ISO 13616 mod-97 checksum.
func IsIBAN(value string) bool {
	if !IsIBANFormat(value) {
		return false
	}
	rearranged := value[4:] + value[:4]
	var digits strings.Builder
	for _, r := range rearranged {
		if r >= 'A' && r <= 'Z' {
			digits.WriteString(big.NewInt(int64(r-'A') + 10).String())
			continue
		}
		digits.WriteRune(r)
	}
	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}

// NormalizeCode uppercases and strips whitespace from fiscal and banking codes.
func NormalizeCode(value string) string {
	return strings.ToUpper(strings.Join(strings.Fields(value), ""))
}
