// Package civil produces the calendar dates every streak comparison uses.
//
// All dates are civil dates in one fixed UTC+05:30 zone, formatted
// YYYY-MM-DD. Nothing outside this package reads the local timezone:
// "today" comes from a Normalizer, and stored strings pass through
// Normalize before they are compared.
package civil

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the canonical civil date format.
const Layout = "2006-01-02"

// Zone is the fixed UTC+05:30 offset used for every civil date.
// It is a FixedZone so daylight-saving rules never apply.
var Zone = time.FixedZone("IST", 5*60*60+30*60)

// Date is a civil date string in Layout form, e.g. "2025-03-14".
type Date string

// Of returns the civil date of t in Zone.
func Of(t time.Time) Date {
	return Date(t.In(Zone).Format(Layout))
}

// Parse validates s as a YYYY-MM-DD date.
func Parse(s string) (Date, error) {
	t, err := time.ParseInLocation(Layout, s, Zone)
	if err != nil {
		return "", fmt.Errorf("civil: parsing date %q: %w", s, err)
	}
	return Of(t), nil
}

// Normalize strips any time-of-day component and returns the civil date.
//
// Accepted inputs:
//   - "2025-03-14"                 returned as-is after validation
//   - "2025-03-14T22:10:00Z"       converted into Zone, then truncated
//   - "2025-03-14T22:10:00+02:00"  converted into Zone, then truncated
//   - "2025-03-14T22:10:00"        no zone given, truncated at the T
func Normalize(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("civil: empty date")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Of(t), nil
	}
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[:i]
	}
	return Parse(s)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Valid reports whether d is a well-formed civil date.
func (d Date) Valid() bool {
	_, err := time.ParseInLocation(Layout, string(d), Zone)
	return err == nil
}

// Time returns midnight of d in Zone. Invalid dates yield the zero time.
func (d Date) Time() time.Time {
	t, err := time.ParseInLocation(Layout, string(d), Zone)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	t := d.Time()
	if t.IsZero() {
		return d
	}
	return Of(t.AddDate(0, 0, n))
}

// In reports whether d falls in the given year and month.
func (d Date) In(year int, month time.Month) bool {
	t := d.Time()
	return !t.IsZero() && t.Year() == year && t.Month() == month
}

// Day returns the day of the month, or 0 for an invalid date.
func (d Date) Day() int {
	t := d.Time()
	if t.IsZero() {
		return 0
	}
	return t.Day()
}

func (d Date) String() string { return string(d) }
