// Package contact turns raw email addresses and phone numbers into
// comparable keys. Nothing here returns an error: input that cannot be
// normalized becomes the empty string, which callers treat as "no channel".
package contact

import "strings"

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizePhone keeps only digits and a leading '+'. Numbers without a '+'
// lose their leading zeros and get defaultCountryPrefix prepended.
func NormalizePhone(raw, defaultCountryPrefix string) string {
	trimmed := strings.TrimSpace(raw)
	international := strings.HasPrefix(trimmed, "+")

	digits := onlyDigits(trimmed)
	if digits == "" {
		return ""
	}
	if international {
		return "+" + digits
	}

	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return ""
	}
	prefix := onlyDigits(defaultCountryPrefix)
	return "+" + prefix + digits
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
