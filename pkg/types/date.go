package types

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day without time-of-day. The portal speaks
// "YYYY-MM-DD" on the wire; filenames use the compact "YYYYMMDD" form.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate creates a date from its components
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// ParseDate parses a "YYYY-MM-DD" string
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate parses a "YYYY-MM-DD" string and panics on error.
// Intended for constants and tests.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf truncates a time to its UTC calendar day
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current UTC calendar day
func Today() Date {
	return DateOf(time.Now())
}

// IsZero reports whether the date is the zero value
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Time returns midnight UTC of the day
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// String formats the date as "YYYY-MM-DD"
func (d Date) String() string {
	return d.Time().Format(dateLayout)
}

// Compact formats the date as "YYYYMMDD" for filenames
func (d Date) Compact() string {
	return d.Time().Format("20060102")
}

// AddDays returns the date n days later (n may be negative)
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// DaysSince returns the number of whole days from other to d
func (d Date) DaysSince(other Date) int {
	return int(d.Time().Sub(other.Time()).Hours() / 24)
}

// Before reports whether d is strictly earlier than other
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// After reports whether d is strictly later than other
func (d Date) After(other Date) bool {
	return d.Time().After(other.Time())
}

// Equal reports whether two dates are the same day
func (d Date) Equal(other Date) bool {
	return d == other
}

// MarshalJSON encodes the date as "YYYY-MM-DD"
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts "YYYY-MM-DD" and full RFC 3339 timestamps,
// keeping only the calendar day.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	if len(s) > len(dateLayout) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("failed to parse date %q: %w", s, err)
		}
		*d = DateOf(t)
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
