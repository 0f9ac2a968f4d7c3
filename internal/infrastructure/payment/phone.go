package payment

import (
	"fmt"
	"strings"
)

const countryCode = "254"

// NormalizePhone converts local and international spellings of a subscriber number
// (0712345678, +254 712 345 678, 712345678) into 254712345678.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '(', r == ')', r == '.':
		case r == '+' && b.Len() == 0:
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, countryCode):
	case len(digits) == 10 && digits[0] == '0':
		digits = countryCode + digits[1:]
	case len(digits) == 9 && (digits[0] == '7' || digits[0] == '1'):
		digits = countryCode + digits
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}

	if c := digits[3]; c != '7' && c != '1' {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}
	return digits, nil
}
