package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a size value that supports human-readable parsing.
// It extends standard integer sizes with support for units like KB, MB, GB
// (binary base, case-insensitive; KiB/MiB/GiB also accepted).
//
// Examples:
//   - "5MB" = 5 * 1024 * 1024 bytes
//   - "1.5 GB" = 1.5 * 1024^3 bytes
//   - "500KB" = 500 * 1024 bytes
//   - "5242880" = 5242880 bytes (raw number still works)
//
// This type implements encoding.TextUnmarshaler for Viper/YAML support
// and json.Unmarshaler for JSON configuration files.
type ByteSize int64

// Common size constants using binary (1024) base.
const (
	Byte     ByteSize = 1
	Kibibyte ByteSize = 1024
	Mebibyte ByteSize = 1024 * Kibibyte
	Gibibyte ByteSize = 1024 * Mebibyte
	Tebibyte ByteSize = 1024 * Gibibyte
)

// byteSizeUnits maps unit names to their byte multiplier.
var byteSizeUnits = map[string]ByteSize{
	"b": Byte, "byte": Byte, "bytes": Byte,
	"k": Kibibyte, "kb": Kibibyte, "kib": Kibibyte,
	"m": Mebibyte, "mb": Mebibyte, "mib": Mebibyte,
	"g": Gibibyte, "gb": Gibibyte, "gib": Gibibyte,
	"t": Tebibyte, "tb": Tebibyte, "tib": Tebibyte,
}

// byteSizePattern matches a number (int or float) followed by optional unit.
var byteSizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)\s*$`)

// ParseByteSize parses a human-readable byte size string.
// If no unit is specified, bytes are assumed.
func ParseByteSize(s string) (ByteSize, error) {
	if s == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	matches := byteSizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("bytesize: invalid format %q", s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", matches[1], err)
	}

	multiplier := Byte
	if unit := strings.ToLower(matches[2]); unit != "" {
		var ok bool
		multiplier, ok = byteSizeUnits[unit]
		if !ok {
			return 0, fmt.Errorf("bytesize: unknown unit %q", unit)
		}
	}

	return ByteSize(value * float64(multiplier)), nil
}

// MustParseByteSize is like ParseByteSize but panics on error.
// Use only for compile-time constants.
func MustParseByteSize(s string) ByteSize {
	size, err := ParseByteSize(s)
	if err != nil {
		panic(err)
	}
	return size
}

// UnmarshalText implements encoding.TextUnmarshaler for YAML/Viper support.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Try as a number (bytes) for backwards compatibility
		var raw int64
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*b = ByteSize(raw)
		return nil
	}
	return b.UnmarshalText([]byte(s))
}

// MarshalJSON implements json.Marshaler.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Bytes returns the size in bytes as int64.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

// String returns a human-readable string representation.
// Uses the largest unit that results in a value >= 1.
func (b ByteSize) String() string {
	if b == 0 {
		return "0B"
	}

	negative := b < 0
	if negative {
		b = -b
	}

	var result string
	switch {
	case b >= Tebibyte:
		result = formatByteFloat(float64(b)/float64(Tebibyte), "TB")
	case b >= Gibibyte:
		result = formatByteFloat(float64(b)/float64(Gibibyte), "GB")
	case b >= Mebibyte:
		result = formatByteFloat(float64(b)/float64(Mebibyte), "MB")
	case b >= Kibibyte:
		result = formatByteFloat(float64(b)/float64(Kibibyte), "KB")
	default:
		result = fmt.Sprintf("%dB", b)
	}

	if negative {
		return "-" + result
	}
	return result
}

// formatByteFloat formats a float with appropriate precision.
func formatByteFloat(value float64, unit string) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d%s", int64(value), unit)
	}
	formatted := fmt.Sprintf("%.2f", value)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")
	return formatted + unit
}
