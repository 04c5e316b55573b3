package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already international", "6281234567890", "6281234567890"},
		{"local trunk prefix", "081234567890", "6281234567890"},
		{"formatting stripped", "+62 812-3456-7890", "6281234567890"},
		{"minimum length", "12345678", "12345678"},
		{"maximum length", "123456789012345", "123456789012345"},
		{"11 digit local", "08123456789", "628123456789"},
		{"short local keeps zero", "0812345678", "0812345678"},
		{"14 digit local", "08123456789012", "628123456789012"},
		{"15 digit with leading zero kept", "081234567890123", "081234567890123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	first, err := Normalize("0812 3456 7890")
	require.NoError(t, err)

	second, err := Normalize(first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNormalizeRejectsLength(t *testing.T) {
	for _, in := range []string{"", "abc", "1234567", "1234567890123456", "+1 (234) 56"} {
		_, err := Normalize(in)
		assert.ErrorIs(t, err, ErrInvalidLength, "input %q", in)
	}
}
