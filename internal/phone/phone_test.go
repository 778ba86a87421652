package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_EquivalentForms(t *testing.T) {
	const want = "+971501234567"
	inputs := []string{
		"0501234567",
		"050 123 4567",
		"501234567",
		"971501234567",
		"+971501234567",
		"+971 (50) 123-4567",
		"00971501234567",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			got, err := Normalize(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, in := range []string{"0501234567", "+447911123456", "971561112233"} {
		first, err := Normalize(in)
		require.NoError(t, err)
		second, err := Normalize(first)
		require.NoError(t, err)
		assert.Equal(t, first, second, "normalizing %q twice", in)
	}
}

func TestNormalize_ForeignNumbersKeepTheirCountryCode(t *testing.T) {
	got, err := Normalize("+44 7911 123456")
	require.NoError(t, err)
	assert.Equal(t, "+447911123456", got)
}

func TestNormalize_RejectsOutOfBounds(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"letters only", "call me"},
		{"too short", "05012"},
		{"too long", "+1234567890123456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.in)
			assert.ErrorIs(t, err, ErrInvalidNumber)
		})
	}
}

func TestRegion_Normalize(t *testing.T) {
	saudi := Region{CountryCode: "966", TrunkPrefix: "0", NationalLength: 9}
	got, err := saudi.Normalize("0551234567")
	require.NoError(t, err)
	assert.Equal(t, "+966551234567", got)
}

func TestDigits(t *testing.T) {
	assert.Equal(t, "971501234567", Digits("+971501234567"))
}
