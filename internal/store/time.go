package store

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// TimeLayout is how timestamps are stored: UTC text that SQLite's DATE()
// and comparison operators understand.
const TimeLayout = "2006-01-02 15:04:05"

// Time is a timestamp column. NULL scans to the zero value and the zero value
// is written as NULL.
type Time struct {
	time.Time
}

// NewTime truncates t to whole seconds in UTC, matching what is stored.
func NewTime(t time.Time) Time {
	return Time{Time: t.UTC().Truncate(time.Second)}
}

// FormatTime renders t the way it is stored.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Scan implements sql.Scanner.
func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("scan time: unsupported type %T", src)
	}
}

func (t *Time) parse(s string) error {
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	// Rows written by older builds may carry RFC 3339 or a bare date.
	for _, layout := range []string{TimeLayout, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("scan time: unrecognized timestamp %q", s)
}

// Value implements driver.Valuer.
func (t Time) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return FormatTime(t.Time), nil
}

// String renders t in storage layout, or "" for the zero value.
func (t Time) String() string {
	if t.IsZero() {
		return ""
	}
	return FormatTime(t.Time)
}

// MarshalJSON renders t in storage layout; the zero value is null.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + FormatTime(t.Time) + `"`), nil
}

// UnmarshalJSON accepts any layout Scan accepts.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		t.Time = time.Time{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("unmarshal time: %s is not a string", s)
	}
	return t.parse(s[1 : len(s)-1])
}

// ParseTime reads a timestamp in any layout Scan accepts.
func ParseTime(s string) (time.Time, error) {
	var t Time
	if err := t.parse(s); err != nil {
		return time.Time{}, err
	}
	return t.Time, nil
}
