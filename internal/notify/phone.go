package notify

import "strings"

const defaultCountryCode = "55"

// NormalizePhone reduces a free-form phone field to the digits-only format
// the messaging API expects, prepending the country code for local numbers.
// Returns "" when the number cannot be a valid mobile phone.
func NormalizePhone(raw, countryCode string) string {
	if countryCode == "" {
		countryCode = defaultCountryCode
	}

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	// 10 or 11 digits is a local number (area code + subscriber, with or
	// without the mobile ninth digit).
	switch {
	case len(digits) == 10 || len(digits) == 11:
		return countryCode + digits
	case len(digits) >= 12 && len(digits) <= 15:
		return digits
	}
	return ""
}
