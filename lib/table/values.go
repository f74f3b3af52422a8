package table

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the stable text form of times (RFC 3339, millisecond precision, UTC).
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ParseBool normalizes "TRUE"/"FALSE" (any case) and native booleans. Blank is false.
func ParseBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToUpper(strings.TrimSpace(x)) {
		case "TRUE":
			return true, nil
		case "FALSE", "":
			return false, nil
		}
	}
	return false, fmt.Errorf("not a boolean: %v", v)
}

// FormatBool returns "TRUE" or "FALSE".
func FormatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// FormatTime returns the stable text form of t, or "" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a value written by FormatTime (or any RFC 3339 time). Blank is the zero time.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// FormatDate returns the date part of t (YYYY-MM-DD).
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

// ParseDate parses a YYYY-MM-DD date. Blank is the zero time.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}
