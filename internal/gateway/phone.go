package gateway

import (
	"regexp"
	"strings"
)

// CountryPrefix is the Kenyan mobile country code expected by the
// gateway, without a leading plus.
const CountryPrefix = "254"

var kenyanPhonePattern = regexp.MustCompile(`^254\d{9}$`)

// IsValidKenyanPhone reports whether value is the country prefix
// followed by exactly nine digits.
func IsValidKenyanPhone(value string) bool {
	return kenyanPhonePattern.MatchString(value)
}

// FormatPhoneNumber normalizes raw into the gateway format. Accepts
// "+2547XXXXXXXX", "2547XXXXXXXX", "07XXXXXXXX" and bare nine-digit
// subscriber numbers. Formatting an already-formatted number returns it
// unchanged.
func FormatPhoneNumber(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.TrimPrefix(s, "+")

	switch {
	case strings.HasPrefix(s, CountryPrefix):
		return s
	case strings.HasPrefix(s, "0") && len(s) == 10:
		return CountryPrefix + s[1:]
	case len(s) == 9:
		return CountryPrefix + s
	}
	return s
}
