package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Duration is a time.Duration that supports human-readable parsing.
// It extends Go's standard duration format with support for:
//   - d: days (24 hours)
//   - w: weeks (7 days)
//
// Examples:
//   - "30d" = 30 days
//   - "2w" = 2 weeks
//   - "1w2d12h" = 1 week, 2 days, 12 hours
//   - "720h" = 720 hours (standard Go format still works)
//
// This type implements encoding.TextUnmarshaler for Viper/YAML support
// and json.Unmarshaler for JSON configuration files.
type Duration time.Duration

// durationExtPattern matches leading week/day components of a duration string.
var durationExtPattern = regexp.MustCompile(`^(-)?((?:[0-9]+(?:\.[0-9]+)?w)?(?:[0-9]+(?:\.[0-9]+)?d)?)(.*)$`)

// durationUnitPattern extracts individual week/day components.
var durationUnitPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)([wd])`)

// ParseDuration parses a human-readable duration string.
// Supports standard Go duration format plus 'd' (days) and 'w' (weeks).
func ParseDuration(s string) (Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	matches := durationExtPattern.FindStringSubmatch(s)
	if matches == nil {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("duration: invalid format %q", s)
		}
		return Duration(d), nil
	}

	negative := matches[1] == "-"
	extended := matches[2]
	remainder := matches[3]

	var total time.Duration
	for _, unit := range durationUnitPattern.FindAllStringSubmatch(extended, -1) {
		value, err := strconv.ParseFloat(unit[1], 64)
		if err != nil {
			return 0, fmt.Errorf("duration: invalid number %q: %w", unit[1], err)
		}
		switch unit[2] {
		case "w":
			total += time.Duration(value * float64(7*24*time.Hour))
		case "d":
			total += time.Duration(value * float64(24*time.Hour))
		}
	}

	if remainder != "" {
		d, err := time.ParseDuration(remainder)
		if err != nil {
			return 0, fmt.Errorf("duration: invalid format %q", s)
		}
		total += d
	}

	if extended == "" && remainder == "" {
		return 0, fmt.Errorf("duration: invalid format %q", s)
	}

	if negative {
		total = -total
	}
	return Duration(total), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YAML/Viper support.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Try as a number (nanoseconds) for backwards compatibility
		var ns int64
		if err := json.Unmarshal(data, &ns); err != nil {
			return err
		}
		*d = Duration(ns)
		return nil
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns a human-readable string representation.
// Uses the most appropriate unit (weeks, days, hours, etc.).
func (d Duration) String() string {
	dur := time.Duration(d)

	if dur == 0 {
		return "0s"
	}

	var result string
	negative := dur < 0
	if negative {
		dur = -dur
	}

	weeks := dur / (7 * 24 * time.Hour)
	dur -= weeks * 7 * 24 * time.Hour

	days := dur / (24 * time.Hour)
	dur -= days * 24 * time.Hour

	if weeks > 0 {
		result += fmt.Sprintf("%dw", weeks)
	}
	if days > 0 {
		result += fmt.Sprintf("%dd", days)
	}
	if dur > 0 {
		result += dur.String()
	}

	if negative {
		result = "-" + result
	}

	if result == "" {
		return time.Duration(d).String()
	}

	return result
}
