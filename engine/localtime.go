package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// LOCAL DATE - Civil date in a user's timezone
// =============================================================================

// LocalDate is a civil (year, month, day) with no time-of-day or zone.
// The zero value means "unset".
type LocalDate struct {
	Year  int
	Month time.Month
	Day   int
}

func NewLocalDate(year int, month time.Month, day int) LocalDate {
	return LocalDate{Year: year, Month: month, Day: day}
}

// LocalDateOf converts an instant to the civil date observed in loc.
func LocalDateOf(t time.Time, loc *time.Location) LocalDate {
	y, m, d := t.In(loc).Date()
	return LocalDate{Year: y, Month: m, Day: d}
}

func (d LocalDate) IsZero() bool {
	return d == LocalDate{}
}

func (d LocalDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// ParseLocalDate parses a YYYY-MM-DD string.
func ParseLocalDate(s string) (LocalDate, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return LocalDate{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return LocalDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d LocalDate) AddDays(n int) LocalDate {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return LocalDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Bounds returns the instants spanning the date in loc: [start, end),
// where end is the start of the following local day. DST transitions
// make this span something other than 24 hours twice a year.
func (d LocalDate) Bounds(loc *time.Location) (start, end time.Time) {
	start = time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
	end = start.AddDate(0, 0, 1)
	return start, end
}

// =============================================================================
// TIMEZONE VALIDATION
// =============================================================================

// LoadTimezone resolves an IANA timezone name, rejecting empty and
// unknown names. The empty string is rejected explicitly because
// time.LoadLocation treats it as UTC.
func LoadTimezone(name string) (*time.Location, error) {
	if name == "" {
		return nil, &TimezoneError{Name: name}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &TimezoneError{Name: name}
	}
	return loc, nil
}
