package occ

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Layout is the stable text form of timestamps (RFC 3339, millisecond precision).
const Layout = "2006-01-02T15:04:05.000Z07:00"

var layouts = []string{
	time.RFC3339Nano,
	Layout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Timestamp is an epoch millisecond value that may be absent.
type Timestamp struct {
	Ms    int64
	Valid bool
}

// FromMillis returns a present timestamp.
func FromMillis(ms int64) Timestamp {
	return Timestamp{Ms: ms, Valid: true}
}

// FromTime returns a present timestamp, or an absent one for the zero time.
func FromTime(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return FromMillis(t.UnixMilli())
}

// Time converts ts back to a time in UTC.
func (ts Timestamp) Time() time.Time {
	if !ts.Valid {
		return time.Time{}
	}
	return time.UnixMilli(ts.Ms).UTC()
}

// String returns the stable text form, or "" if absent.
func (ts Timestamp) String() string {
	if !ts.Valid {
		return ""
	}
	return ts.Time().Format(Layout)
}

// Parse normalizes v into a Timestamp.
// Accepted are time.Time, *time.Time, integers and floats (epoch milliseconds), numeric
// strings and the usual RFC 3339 forms. nil and blank strings yield an absent timestamp.
func Parse(v any) (Timestamp, error) {
	switch x := v.(type) {
	case nil:
		return Timestamp{}, nil
	case Timestamp:
		return x, nil
	case time.Time:
		return FromTime(x), nil
	case *time.Time:
		if x == nil {
			return Timestamp{}, nil
		}
		return FromTime(*x), nil
	case int64:
		return FromMillis(x), nil
	case int:
		return FromMillis(int64(x)), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Timestamp{}, fmt.Errorf("invalid timestamp %v", x)
		}
		return FromMillis(int64(math.Round(x))), nil
	case string:
		return parseString(x)
	default:
		return Timestamp{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func parseString(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return FromMillis(ms), nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return FromTime(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("unparseable timestamp %q", s)
}
