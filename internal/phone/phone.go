// Package phone normalizes user-supplied phone numbers before relay.
package phone

import (
	"errors"
	"regexp"
	"strings"
)

const (
	MinDigits = 8
	MaxDigits = 15

	// CountryCode replaces the trunk prefix of local numbers
	CountryCode = "62"

	// local numbers shorter than this keep their leading zero
	localMinDigits = 11
)

// ErrInvalidLength is returned when the normalized number is outside [MinDigits, MaxDigits]
var ErrInvalidLength = errors.New("phone number must have between 8 and 15 digits")

var nonDigit = regexp.MustCompile(`\D`)

// Normalize strips everything except digits and rewrites a local
// number of at least 11 digits starting with 0 into international form.
// A number already at MaxDigits is kept as is so the rewrite never pushes it out of range.
func Normalize(raw string) (string, error) {
	digits := nonDigit.ReplaceAllString(raw, "")

	if len(digits) >= localMinDigits && len(digits) < MaxDigits && strings.HasPrefix(digits, "0") {
		digits = CountryCode + digits[1:]
	}

	if len(digits) < MinDigits || len(digits) > MaxDigits {
		return "", ErrInvalidLength
	}
	return digits, nil
}
