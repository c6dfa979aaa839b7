// Package timeutil resolves calendar days and Monday-anchored weeks for progression windows.
// Daily quests, weekly challenges and streaks are all keyed by the values produced here.
// No external dependencies - uses only standard library.
package timeutil

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrInvalidTime is returned for a zero timestamp.
	ErrInvalidTime = errors.New("timeutil: invalid time")

	// ErrInvalidTimezone is returned when a timezone name cannot be loaded.
	ErrInvalidTimezone = errors.New("timeutil: invalid timezone")

	// ErrInvalidDayKey is returned when a day key cannot be parsed.
	ErrInvalidDayKey = errors.New("timeutil: invalid day key")
)

// FormatDate is the canonical day key layout (YYYY-MM-DD).
const FormatDate = "2006-01-02"

// ══════════════════════════════════════════════════════════════════════════════
// DAY KEY
// ══════════════════════════════════════════════════════════════════════════════

// DayKey is a civil date with no time-of-day and no location.
type DayKey struct {
	Year  int
	Month time.Month
	Day   int
}

// DayKeyOf returns the civil date of t in t's own location.
func DayKeyOf(t time.Time) DayKey {
	return DayKey{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ParseDayKey parses a YYYY-MM-DD string.
func ParseDayKey(s string) (DayKey, error) {
	t, err := time.Parse(FormatDate, s)
	if err != nil {
		return DayKey{}, fmt.Errorf("%w: %q", ErrInvalidDayKey, s)
	}
	return DayKeyOf(t), nil
}

// IsZero reports whether the key is unset.
func (d DayKey) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// String returns the YYYY-MM-DD form.
func (d DayKey) String() string {
	if d.IsZero() {
		return ""
	}
	return d.utc().Format(FormatDate)
}

// utc anchors the date at UTC midnight, which has no DST gaps.
func (d DayKey) utc() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// DaysSince returns the number of whole calendar days from other to d.
// Negative when d is before other.
func (d DayKey) DaysSince(other DayKey) int {
	return int(d.utc().Sub(other.utc()).Hours() / 24)
}

// AddDays returns the key n days later (n may be negative).
func (d DayKey) AddDays(n int) DayKey {
	return DayKeyOf(d.utc().AddDate(0, 0, n))
}

// Before reports whether d is strictly earlier than other.
func (d DayKey) Before(other DayKey) bool {
	return d.DaysSince(other) < 0
}

// Weekday returns the day of week.
func (d DayKey) Weekday() time.Weekday {
	return d.utc().Weekday()
}

// In returns midnight of the day in loc.
func (d DayKey) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// MarshalText implements encoding.TextMarshaler.
func (d DayKey) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DayKey) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = DayKey{}
		return nil
	}
	parsed, err := ParseDayKey(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR
// ══════════════════════════════════════════════════════════════════════════════

// Calendar resolves "today" and "this week" in a reference timezone.
// A per-call timezone name overrides the default location.
type Calendar struct {
	loc       *time.Location
	locations sync.Map // tz name -> *time.Location
}

// NewCalendar creates a calendar anchored to loc (UTC when nil).
func NewCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{loc: loc}
}

// Location returns the default reference location.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Resolve returns the location for a timezone name, or the default when tz is empty.
func (c *Calendar) Resolve(tz string) (*time.Location, error) {
	if tz == "" {
		return c.loc, nil
	}
	if cached, ok := c.locations.Load(tz); ok {
		return cached.(*time.Location), nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	c.locations.Store(tz, loc)
	return loc, nil
}

// Today truncates now to its calendar day in the reference timezone.
func (c *Calendar) Today(now time.Time, tz string) (DayKey, error) {
	if now.IsZero() {
		return DayKey{}, ErrInvalidTime
	}
	loc, err := c.Resolve(tz)
	if err != nil {
		return DayKey{}, err
	}
	return DayKeyOf(now.In(loc)), nil
}

// WeekStart returns the Monday at or before now in the reference timezone.
func (c *Calendar) WeekStart(now time.Time, tz string) (DayKey, error) {
	today, err := c.Today(now, tz)
	if err != nil {
		return DayKey{}, err
	}
	return StartOfWeek(today), nil
}

// StartOfWeek returns the Monday at or before d.
func StartOfWeek(d DayKey) DayKey {
	weekday := int(d.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return d.AddDays(-(weekday - 1))
}
