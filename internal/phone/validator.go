// Package phone adapts the libphonenumber port to the engine's validation capability.
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/xkilldash9x/dialtone/api/schemas"
)

// Validator implements schemas.PhoneValidator on top of nyaruka/phonenumbers.
type Validator struct {
	language string
	strict   bool
}

var _ schemas.PhoneValidator = (*Validator)(nil)

// Option configures a Validator.
type Option func(*Validator)

// WithStrictValidation makes IsValid require a number assigned in the
// numbering plan instead of one with a possible length.
func WithStrictValidation(strict bool) Option {
	return func(v *Validator) { v.strict = strict }
}

// NewValidator returns a validator producing carrier and location names in
// language (ISO 639-1, "en" when empty).
func NewValidator(language string, opts ...Option) *Validator {
	if language == "" {
		language = "en"
	}
	v := &Validator{language: language}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Parse interprets raw relative to defaultRegion.
func (v *Validator) Parse(raw, defaultRegion string) (schemas.ParsedNumber, error) {
	num, err := phonenumbers.Parse(raw, strings.ToUpper(defaultRegion))
	if err != nil {
		return schemas.ParsedNumber{}, fmt.Errorf("failed to parse %q: %w", raw, err)
	}
	return schemas.ParsedNumber{
		CountryCode:    num.GetCountryCode(),
		NationalNumber: num.GetNationalNumber(),
		Raw:            num,
	}, nil
}

// IsValid checks the number's length against its region. In strict mode the
// number must also fall in an assigned range; fictional 555-01xx numbers fail.
func (v *Validator) IsValid(n schemas.ParsedNumber) bool {
	num, ok := unwrap(n)
	if !ok {
		return false
	}
	if v.strict {
		return phonenumbers.IsValidNumber(num)
	}
	return phonenumbers.IsPossibleNumber(num)
}

func (v *Validator) CarrierName(n schemas.ParsedNumber) string {
	num, ok := unwrap(n)
	if !ok {
		return ""
	}
	name, err := phonenumbers.GetCarrierForNumber(num, v.language)
	if err != nil {
		return ""
	}
	return name
}

func (v *Validator) RegionDescription(n schemas.ParsedNumber) string {
	num, ok := unwrap(n)
	if !ok {
		return ""
	}
	desc, err := phonenumbers.GetGeocodingForNumber(num, v.language)
	if err != nil {
		return ""
	}
	return desc
}

// LineType collapses the library's number types into the engine's four
// buckets. Ambiguous fixed-or-mobile numbers count as mobile.
func (v *Validator) LineType(n schemas.ParsedNumber) schemas.LineType {
	num, ok := unwrap(n)
	if !ok {
		return schemas.LineUnknown
	}
	switch phonenumbers.GetNumberType(num) {
	case phonenumbers.MOBILE, phonenumbers.FIXED_LINE_OR_MOBILE, phonenumbers.PAGER:
		return schemas.LineMobile
	case phonenumbers.FIXED_LINE:
		return schemas.LineLandline
	case phonenumbers.VOIP:
		return schemas.LineVoip
	default:
		return schemas.LineUnknown
	}
}

func (v *Validator) CountryCodeForRegion(region string) int {
	return phonenumbers.GetCountryCodeForRegion(strings.ToUpper(region))
}

// RegionCode returns the ISO region the number belongs to.
func (v *Validator) RegionCode(n schemas.ParsedNumber) string {
	num, ok := unwrap(n)
	if !ok {
		return ""
	}
	return phonenumbers.GetRegionCodeForNumber(num)
}

// NationalFormat renders the number without its country code.
func (v *Validator) NationalFormat(n schemas.ParsedNumber) string {
	num, ok := unwrap(n)
	if !ok {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.NATIONAL)
}

func unwrap(n schemas.ParsedNumber) (*phonenumbers.PhoneNumber, bool) {
	num, ok := n.Raw.(*phonenumbers.PhoneNumber)
	return num, ok && num != nil
}
