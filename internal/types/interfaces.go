package types

import "time"

// Clock abstracts time for testability. Every computation of "today" in the
// decision engine goes through a Clock.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// ZonedClock returns the current time in a fixed location, so calendar-day
// boundaries (midnight, the 12:00 and 15:30 reminder windows) follow the
// gardeners' local time rather than UTC.
type ZonedClock struct {
	Location *time.Location
}

// Now returns the current time in the configured location (UTC if unset).
func (c ZonedClock) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}

// StartOfDay returns local midnight of t's calendar day, in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of calendar days from "from" to "to",
// evaluating both dates in to's location. The result is negative when from is
// after to. Daylight-saving shifts do not affect the count.
func DaysBetween(from, to time.Time) int {
	loc := to.Location()
	fy, fm, fd := from.In(loc).Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 12, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 12, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// SameDay reports whether a and b fall on the same calendar day in b's location.
func SameDay(a, b time.Time) bool {
	return DaysBetween(a, b) == 0
}

// AddDays returns local midnight of the day n days after t's calendar day.
func AddDays(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, t.Location())
}

// FixedClock always returns T. It backs reference-time overrides (manual
// backfills) and deterministic tests.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.T }
