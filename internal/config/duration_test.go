package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
	}{
		{"30s", 30 * time.Second},
		{"5m", 5 * time.Minute},
		{"720h", 720 * time.Hour},
		{"1d", 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
		{"1w2d12h", 9*24*time.Hour + 12*time.Hour},
		{"100ms", 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := ParseDuration(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Duration())
		})
	}
}

func TestParseDuration_Invalid(t *testing.T) {
	invalid := []string{"", "abc", "5x", "d5"}
	for _, input := range invalid {
		t.Run(input, func(t *testing.T) {
			_, err := ParseDuration(input)
			assert.Error(t, err)
		})
	}
}

func TestDuration_String(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0s"},
		{30 * time.Second, "30s"},
		{24 * time.Hour, "1d"},
		{7 * 24 * time.Hour, "1w"},
		{9*24*time.Hour + 12*time.Hour, "1w2d12h0m0s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, Duration(tt.duration).String())
		})
	}
}

func TestDuration_RoundTrip(t *testing.T) {
	original := Duration(36 * time.Hour)
	parsed, err := ParseDuration(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}
