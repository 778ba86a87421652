// Package phone canonicalizes regional phone numbers into the
// +<country code><national number> form providers expect.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

const (
	minDigits = 9
	maxDigits = 15
)

var ErrInvalidNumber = errors.New("invalid phone number")

// Region describes the national numbering plan used to expand local input.
type Region struct {
	CountryCode    string
	TrunkPrefix    string
	NationalLength int
}

// UAE is the default region.
var UAE = Region{CountryCode: "971", TrunkPrefix: "0", NationalLength: 9}

// Normalize canonicalizes raw using the UAE numbering plan.
func Normalize(raw string) (string, error) {
	return UAE.Normalize(raw)
}

// Normalize returns raw as +<country code><national number>. The result is
// stable: normalizing an already-normalized number returns it unchanged.
func (r Region) Normalize(raw string) (string, error) {
	digits := onlyDigits(raw)
	if digits == "" {
		return "", fmt.Errorf("%w: %q has no digits", ErrInvalidNumber, raw)
	}
	if strings.HasPrefix(digits, "00") {
		digits = digits[2:]
	}

	switch {
	case strings.HasPrefix(raw, "+") || strings.HasPrefix(strings.TrimSpace(raw), "00"):
		// already international
	case strings.HasPrefix(digits, r.CountryCode) && len(digits) > r.NationalLength:
		// country code without the plus
	case r.TrunkPrefix != "" && strings.HasPrefix(digits, r.TrunkPrefix):
		digits = r.CountryCode + strings.TrimPrefix(digits, r.TrunkPrefix)
	case len(digits) == r.NationalLength:
		digits = r.CountryCode + digits
	}

	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", fmt.Errorf("%w: %q normalizes to %d digits", ErrInvalidNumber, raw, len(digits))
	}
	return "+" + digits, nil
}

// Digits strips the leading plus from a normalized number.
func Digits(e164 string) string {
	return strings.TrimPrefix(e164, "+")
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
