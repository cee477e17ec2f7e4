package identity

import (
	"strings"

	"github.com/sells-group/lead-miner/internal/model"
)

const countryCode = "55"

// NormalizePhone reduces a raw phone to its national digits (area code plus
// subscriber number). A leading trunk zero and the country code are removed.
// Returns "" unless 10 or 11 digits remain.
func NormalizePhone(raw string) string {
	digits := onlyDigits(raw)
	digits = strings.TrimLeft(digits, "0")
	if len(digits) >= 12 && strings.HasPrefix(digits, countryCode) {
		digits = digits[len(countryCode):]
	}
	if len(digits) != 10 && len(digits) != 11 {
		return ""
	}
	return digits
}

// ClassifyPhone infers the line type from a national phone number.
// Mobile numbers carry a leading 9 after the area code; landlines start
// their subscriber part with 2 through 5.
func ClassifyPhone(phone string) model.PhoneType {
	p := onlyDigits(phone)
	switch {
	case len(p) == 11 && p[2] == '9':
		return model.PhoneMobile
	case len(p) == 10 && p[2] >= '2' && p[2] <= '5':
		return model.PhoneLandline
	default:
		return model.PhoneUnknown
	}
}

// WhatsAppURL returns the click-to-chat link for a phone, or "" when the
// phone cannot be normalized.
func WhatsAppURL(phone string) string {
	p := NormalizePhone(phone)
	if p == "" {
		return ""
	}
	return "https://wa.me/" + countryCode + p
}

// FormatE164 prefixes a phone with +55 unless it already carries the
// country code.
func FormatE164(phone string) string {
	p := onlyDigits(phone)
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, countryCode) && len(p) >= 12 {
		return "+" + p
	}
	return "+" + countryCode + p
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
