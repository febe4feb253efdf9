package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses an optional duration setting. Empty means zero;
// negative values are rejected. path names the key in errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: %q is negative", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for unset or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// ParseSwitchableDuration is ParseDurationField that also accepts "off",
// returned as -1.
func ParseSwitchableDuration(path, raw string) (time.Duration, error) {
	if strings.EqualFold(strings.TrimSpace(raw), "off") {
		return -1, nil
	}
	return ParseDurationField(path, raw)
}
