package gateway

import (
	"fmt"
	"strings"
)

const minPhoneDigits = 10

const jidSuffix = "@s.whatsapp.net"

// NormalizePhone strips everything but digits and enforces a minimum length.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < minPhoneDigits {
		return "", fmt.Errorf("%w: %q has %d digits", ErrInvalidPhone, raw, len(digits))
	}
	return digits, nil
}

// JID builds the gateway recipient identifier for a phone number.
func JID(raw string) (string, error) {
	digits, err := NormalizePhone(raw)
	if err != nil {
		return "", err
	}
	return digits + jidSuffix, nil
}
