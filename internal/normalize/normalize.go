// Package normalize canonicalizes raw subject strings into SubjectIdentifiers.
package normalize

import (
	"strconv"
	"strings"

	"github.com/xkilldash9x/dialtone/api/schemas"
)

// Normalizer is a pure function of its configuration and validator.
type Normalizer struct {
	validator     schemas.PhoneValidator
	defaultRegion string
	countryCode   string
}

// New builds a Normalizer. When countryCode is zero it is derived from
// defaultRegion through the validator.
func New(validator schemas.PhoneValidator, defaultRegion string, countryCode int) *Normalizer {
	if countryCode <= 0 && defaultRegion != "" {
		countryCode = validator.CountryCodeForRegion(defaultRegion)
	}
	cc := ""
	if countryCode > 0 {
		cc = strconv.Itoa(countryCode)
	}
	return &Normalizer{
		validator:     validator,
		defaultRegion: strings.ToUpper(defaultRegion),
		countryCode:   cc,
	}
}

// Canonical applies the textual rules only: keep a leading '+', drop every
// other non-digit, and prefix the default country code when no '+' was given.
// It returns "" when no digits survive.
func (n *Normalizer) Canonical(raw string) string {
	trimmed := strings.TrimSpace(raw)
	international := strings.HasPrefix(trimmed, "+")

	var b strings.Builder
	b.Grow(len(trimmed) + 4)
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if international {
		return "+" + digits
	}
	return "+" + n.countryCode + digits
}

// Normalize canonicalizes raw and checks it with the validator.
func (n *Normalizer) Normalize(raw string) (schemas.SubjectIdentifier, error) {
	canonical := n.Canonical(raw)
	if canonical == "" {
		return "", schemas.NewValidationError(raw, "no digits", nil)
	}

	parsed, err := n.validator.Parse(canonical, n.defaultRegion)
	if err != nil {
		return "", schemas.NewValidationError(raw, "unparseable number", err)
	}
	if !n.validator.IsValid(parsed) {
		return "", schemas.NewValidationError(raw, "not a valid number", nil)
	}
	return schemas.SubjectIdentifier(canonical), nil
}

// IsCanonical reports whether s already has the identifier shape.
func IsCanonical(s string) bool {
	if len(s) < 2 || s[0] != '+' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
