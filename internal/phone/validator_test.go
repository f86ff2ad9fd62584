package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/dialtone/api/schemas"
)

func TestValidatorParse(t *testing.T) {
	v := NewValidator("")

	// Google's Mountain View switchboard is a stable, valid fixed line.
	n, err := v.Parse("+1 650-253-0000", "US")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n.CountryCode)
	assert.EqualValues(t, 6502530000, n.NationalNumber)
	assert.True(t, v.IsValid(n))
	assert.Equal(t, "US", v.RegionCode(n))
	assert.NotEmpty(t, v.RegionDescription(n))
	assert.Contains(t, v.NationalFormat(n), "253-0000")
}

func TestValidatorParseWithoutCountryCode(t *testing.T) {
	v := NewValidator("en")
	n, err := v.Parse("020 7031 3000", "gb")
	require.NoError(t, err)
	assert.EqualValues(t, 44, n.CountryCode)
	assert.True(t, v.IsValid(n))
	assert.Equal(t, schemas.LineLandline, v.LineType(n))
}

func TestValidatorRejectsGarbage(t *testing.T) {
	v := NewValidator("en")
	_, err := v.Parse("not a number", "US")
	assert.Error(t, err)
}

func TestValidatorStrictness(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		strict bool
		want   bool
	}{
		// 555 exchange numbers have a possible length but are not assigned.
		{"unassigned accepted by default", "+15555550123", false, true},
		{"unassigned rejected when strict", "+15555550123", true, false},
		{"assigned accepted when strict", "+16502530000", true, true},
		{"too short", "+1555", false, false},
		{"too long", "+1555555012345678", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator("en", WithStrictValidation(tt.strict))
			n, err := v.Parse(tt.raw, "US")
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.IsValid(n))
		})
	}
}

func TestValidatorForeignParsedNumber(t *testing.T) {
	v := NewValidator("en")
	foreign := schemas.ParsedNumber{CountryCode: 1, NationalNumber: 5555550123, Raw: "not-a-phonenumber"}

	assert.False(t, v.IsValid(foreign))
	assert.Empty(t, v.CarrierName(foreign))
	assert.Empty(t, v.RegionDescription(foreign))
	assert.Equal(t, schemas.LineUnknown, v.LineType(foreign))
	assert.Empty(t, v.RegionCode(foreign))
}

func TestCountryCodeForRegion(t *testing.T) {
	v := NewValidator("en")
	assert.Equal(t, 1, v.CountryCodeForRegion("US"))
	assert.Equal(t, 44, v.CountryCodeForRegion("gb"))
	assert.Equal(t, 0, v.CountryCodeForRegion("ZZ"))
}
