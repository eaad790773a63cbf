package core

import "time"

// Calendar-day helpers for the logging trackers. Day boundaries are computed
// in UTC so streak evaluation is deterministic regardless of server locale.

// CalendarDay truncates t to midnight of its UTC calendar day.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameCalendarDay reports whether a and b fall on the same UTC calendar day.
func SameCalendarDay(a, b time.Time) bool {
	return CalendarDay(a).Equal(CalendarDay(b))
}

// NextCalendarDay reports whether b falls exactly one calendar day after a.
func NextCalendarDay(a, b time.Time) bool {
	return CalendarDay(a).AddDate(0, 0, 1).Equal(CalendarDay(b))
}
