// Package phone canonicalizes raw phone strings into a dialable
// international form. This is best-effort normalization, not validation:
// numbers of 10+ digits with no country code are assumed already
// qualified, which is country-ambiguous by nature.
package phone

import "strings"

// Normalize strips all non-digit characters and returns the number in
// +<digits> form. countryCode, when supplied, is prepended unless the
// number already starts with it or already looks fully qualified.
func Normalize(raw, countryCode string) string {
	digits := stripNonDigits(raw)

	// US/Canada style: leading 1 with at least 10 digits.
	if strings.HasPrefix(digits, "1") && len(digits) >= 10 {
		return "+" + digits
	}
	// Any 10+ digit number without an explicit country code is treated
	// as already qualified.
	if len(digits) >= 10 && countryCode == "" {
		return "+" + digits
	}

	if countryCode != "" {
		cc := stripNonDigits(countryCode)
		if cc != "" && !strings.HasPrefix(digits, cc) {
			digits = cc + digits
		}
	}

	return "+" + digits
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
