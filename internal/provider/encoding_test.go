package provider

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectEncoding(t *testing.T) {
	assert.Equal(t, EncodingGSM7, DetectEncoding("en", "Happy Birthday Ahmed!"))
	assert.Equal(t, EncodingUCS2, DetectEncoding("ar", "Happy Birthday"))
	assert.Equal(t, EncodingUCS2, DetectEncoding("en", "عيد ميلاد سعيد"))
	assert.Equal(t, EncodingUCS2, DetectEncoding("en", "Gift 🎁 inside"))
}

func TestCountSegments(t *testing.T) {
	tests := []struct {
		name string
		body string
		enc  Encoding
		want int
	}{
		{"gsm single", strings.Repeat("a", 160), EncodingGSM7, 1},
		{"gsm two parts", strings.Repeat("a", 161), EncodingGSM7, 2},
		{"gsm three parts", strings.Repeat("a", 307), EncodingGSM7, 3},
		{"gsm extension counts double", strings.Repeat("€", 80), EncodingGSM7, 1},
		{"gsm extension overflow", strings.Repeat("€", 81), EncodingGSM7, 2},
		{"ucs2 single", strings.Repeat("ع", 70), EncodingUCS2, 1},
		{"ucs2 two parts", strings.Repeat("ع", 71), EncodingUCS2, 2},
		{"ucs2 three parts", strings.Repeat("ع", 135), EncodingUCS2, 3},
		{"auto picks ucs2", strings.Repeat("ع", 71), EncodingAuto, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountSegments(tt.body, tt.enc))
		})
	}
}

func TestEncodeUCS2(t *testing.T) {
	got, err := EncodeUCS2("Hi")
	require.NoError(t, err)
	assert.Equal(t, "00480069", got)

	got, err = EncodeUCS2("مرحبا")
	require.NoError(t, err)
	assert.Equal(t, "06450631062D06280627", got)
}

func TestIsE164(t *testing.T) {
	assert.True(t, IsE164("+971501234567"))
	assert.True(t, IsE164("+14155552671"))
	assert.False(t, IsE164("971501234567"))
	assert.False(t, IsE164("+0501234567"))
	assert.False(t, IsE164("+1234567"))
}
