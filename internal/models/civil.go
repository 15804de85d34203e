package models

import "time"

// CivilDate returns the calendar date of t in loc as midnight UTC, so dates
// from different sources compare and subtract cleanly.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartOfDay is the first instant of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DaysBetween whole calendar days from a to b (both civil dates).
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Round(time.Hour).Hours() / 24)
}

// DateKey formats a civil date for DATE columns.
func DateKey(d time.Time) string {
	return d.Format("2006-01-02")
}
