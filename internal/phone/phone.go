// Package phone canonicalises phone numbers to E.164-style strings.
package phone

import "strings"

const nationalLength = 10

// Normalizer rewrites free-form phone strings into "+<cc><national>".
// It never fails: shapes it does not recognise come back cleaned but
// otherwise unchanged.
type Normalizer struct {
	countryCode string
}

// NewNormalizer creates a normalizer for a country calling code such as "91".
func NewNormalizer(countryCode string) *Normalizer {
	return &Normalizer{countryCode: strings.TrimPrefix(strings.TrimSpace(countryCode), "+")}
}

// Normalize applies the canonicalisation rules. It is idempotent.
func (n *Normalizer) Normalize(raw string) string {
	cleaned := clean(raw)
	cc := n.countryCode

	switch {
	case strings.HasPrefix(cleaned, "+"+cc):
		return cleaned
	case strings.HasPrefix(cleaned, cc) && len(cleaned) == len(cc)+nationalLength:
		return "+" + cleaned
	case len(cleaned) == nationalLength && isDigits(cleaned):
		return "+" + cc + cleaned
	case len(cleaned) == nationalLength+1 && strings.HasPrefix(cleaned, "0"):
		return "+" + cc + cleaned[1:]
	default:
		return cleaned
	}
}

// LastDigits returns the trailing n digits of s, ignoring every other
// character. Shorter inputs are returned whole.
func LastDigits(s string, n int) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) <= n {
		return digits
	}
	return digits[len(digits)-n:]
}

// SameSubscriber compares two numbers on their national part so that
// "+919876543210", "919876543210" and "09876543210" all match.
func SameSubscriber(a, b string) bool {
	la, lb := LastDigits(a, nationalLength), LastDigits(b, nationalLength)
	return len(la) == nationalLength && la == lb
}

func clean(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
