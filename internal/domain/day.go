package domain

import (
	"fmt"
	"time"
)

// Day is a civil calendar date. It carries no time of day and no zone, so
// two Days compare equal exactly when they name the same date.
type Day struct {
	t time.Time // midnight UTC, or zero
}

// NewDay returns the civil date y-m-d.
func NewDay(y int, m time.Month, d int) Day {
	return Day{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DayOf returns the calendar date of instant t as observed in loc.
// A nil loc means UTC.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return NewDay(t.Year(), t.Month(), t.Day())
}

// ParseDay parses a "2006-01-02" date. The empty string yields the zero Day.
func ParseDay(s string) (Day, error) {
	if s == "" {
		return Day{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Day{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return Day{t: t}, nil
}

// IsZero reports whether d is unset.
func (d Day) IsZero() bool { return d.t.IsZero() }

// AddDays returns d shifted by n calendar days.
func (d Day) AddDays(n int) Day { return Day{t: d.t.AddDate(0, 0, n)} }

// Before reports whether d is strictly earlier than o.
func (d Day) Before(o Day) bool { return d.t.Before(o.t) }

// After reports whether d is strictly later than o.
func (d Day) After(o Day) bool { return d.t.After(o.t) }

// Equal reports whether d and o name the same date.
func (d Day) Equal(o Day) bool { return d.t.Equal(o.t) }

// String formats d as "2006-01-02", or "" when unset.
func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(time.DateOnly)
}

// MarshalText implements encoding.TextMarshaler.
func (d Day) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Day) UnmarshalText(b []byte) error {
	v, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
