package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day abstraction (no time component)
// =============================================================================

// DateLayout is the wire and storage format of every Date.
const DateLayout = "2006-01-02"

// Date is a calendar day pinned to midnight UTC.
//
// All weekday and holiday checks run on Date, never on a raw time.Time, so the
// server's local timezone can never shift a day across a boundary.
type Date struct {
	t time.Time
}

// NewDate builds a Date from its calendar parts.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf takes the calendar day of t as seen in t's own location.
// 2026-01-01T00:30:00+05:00 is 2026-01-01, not 2025-12-31.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return Date{t: t}, nil
}

// MustParseDate is ParseDate for literals in tests and fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Today returns the current UTC calendar day of the given clock reading.
func Today(now time.Time) Date {
	return DateOf(now.UTC())
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.t.After(other.t) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.t.Before(other.t) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Time() time.Time       { return d.t }
func (d Date) String() string        { return d.t.Format(DateLayout) }

// MarshalText renders the date as YYYY-MM-DD for JSON and YAML.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses YYYY-MM-DD.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DaysBetween is the number of days from one date to another (negative when to < from).
func DaysBetween(from, to Date) int { return int(to.t.Sub(from.t).Hours() / 24) }
func StartOfYear(year int) Date     { return NewDate(year, time.January, 1) }
func EndOfYear(year int) Date       { return NewDate(year, time.December, 31) }
