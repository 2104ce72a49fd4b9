package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"1024", 1024},
		{"1KB", 1024},
		{"1kb", 1024},
		{"1KiB", 1024},
		{"5MB", 5 * 1024 * 1024},
		{"1.5 GB", int64(1.5 * 1024 * 1024 * 1024)},
		{"500 KB", 500 * 1024},
		{"2TB", 2 * 1024 * 1024 * 1024 * 1024},
		{"0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			size, err := ParseByteSize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, size.Bytes())
		})
	}
}

func TestParseByteSize_Invalid(t *testing.T) {
	invalid := []string{"", "abc", "5XB", "MB5", "-5MB"}
	for _, input := range invalid {
		t.Run(input, func(t *testing.T) {
			_, err := ParseByteSize(input)
			assert.Error(t, err)
		})
	}
}

func TestByteSize_String(t *testing.T) {
	tests := []struct {
		size     ByteSize
		expected string
	}{
		{0, "0B"},
		{512, "512B"},
		{1024, "1KB"},
		{5 * Mebibyte, "5MB"},
		{ByteSize(1.5 * float64(Gibibyte)), "1.5GB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.size.String())
		})
	}
}

func TestByteSize_UnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("50MB")))
	assert.Equal(t, int64(50*1024*1024), b.Bytes())
}

func TestByteSize_RoundTrip(t *testing.T) {
	original := ByteSize(50 * Mebibyte)
	parsed, err := ParseByteSize(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}
