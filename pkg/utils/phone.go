package utils

import (
	"strings"
	"unicode"
)

// SanitizePhone strips everything but digits so the number matches the
// wa_id format the Cloud API uses (international, no '+').
func SanitizePhone(phone *string) {
	if phone == nil {
		return
	}
	var b strings.Builder
	b.Grow(len(*phone))
	for _, r := range strings.TrimSpace(*phone) {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	*phone = strings.TrimLeft(b.String(), "0")
}
