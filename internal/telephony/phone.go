package telephony

import (
	"regexp"
	"strings"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// IsE164 reports whether the number is already in strict E.164 form.
func IsE164(number string) bool {
	return e164Pattern.MatchString(number)
}

// FormatE164 normalizes a raw phone number:
// exactly 10 digits gets a +1 prefix (US/Canada); anything else keeps its
// digits behind a single +. Normalization is idempotent for valid numbers.
func FormatE164(raw string) string {
	cleaned := digitsOnly(raw)

	if len(cleaned) == 10 {
		return "+1" + cleaned
	}
	return "+" + cleaned
}

// DigitCount counts the digits in a raw phone number, for minimum-length
// validation before normalization.
func DigitCount(raw string) int {
	return len(digitsOnly(raw))
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
