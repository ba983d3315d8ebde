package gateway

import "testing"

func TestIsValidKenyanPhone(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"254712345678", true},
		{"254112345678", true},
		{"25471234567", false},   // eight digits after prefix
		{"2547123456789", false}, // ten digits after prefix
		{"+254712345678", false}, // plus not allowed post-format
		{"0712345678", false},    // national format, not formatted
		{"125471234567", false},
		{"254712345a78", false},
		{"", false},
	}

	for _, c := range cases {
		if got := IsValidKenyanPhone(c.value); got != c.want {
			t.Errorf("IsValidKenyanPhone(%q) = %v, want %v", c.value, got, c.want)
		}
	}
}

func TestFormatPhoneNumber(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"+254712345678", "254712345678"},
		{"254712345678", "254712345678"},
		{"0712345678", "254712345678"},
		{"712345678", "254712345678"},
		{"0112345678", "254112345678"},
		{"+254 712 345 678", "254712345678"},
		{"0712-345-678", "254712345678"},
	}

	for _, c := range cases {
		if got := FormatPhoneNumber(c.raw); got != c.want {
			t.Errorf("FormatPhoneNumber(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestFormatPhoneNumberIdempotent(t *testing.T) {
	inputs := []string{"+254712345678", "0712345678", "712345678"}
	for _, raw := range inputs {
		once := FormatPhoneNumber(raw)
		twice := FormatPhoneNumber(once)
		if once != twice {
			t.Errorf("FormatPhoneNumber not idempotent for %q: %q != %q", raw, once, twice)
		}
		if !IsValidKenyanPhone(once) {
			t.Errorf("FormatPhoneNumber(%q) = %q is not valid", raw, once)
		}
	}
}
