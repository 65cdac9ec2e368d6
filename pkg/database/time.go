package database

import (
	"fmt"
	"time"
)

// Timestamps are stored as ISO-8601 strings, seconds precision, always UTC.
// These helpers are the single formatting site for the whole storage layer.

// NowUTC returns the current time in UTC truncated to whole seconds.
func NowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// FormatTime serializes a timestamp for storage. The zero value is rejected
// so uninitialized times never reach a row.
func FormatTime(t time.Time) (string, error) {
	if t.IsZero() {
		return "", fmt.Errorf("refusing to store zero timestamp")
	}
	return t.UTC().Truncate(time.Second).Format(time.RFC3339), nil
}

// ParseTime is the inverse of FormatTime.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// FormatTimePtr serializes an optional timestamp; nil maps to SQL NULL.
func FormatTimePtr(t *time.Time) (any, error) {
	if t == nil {
		return nil, nil
	}
	return FormatTime(*t)
}

// ParseTimePtr deserializes an optional timestamp column.
func ParseTimePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := ParseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
