package utils

import (
	"time"
)

// DateLayout is the calendar date format used in widget payloads
const DateLayout = "2006-01-02"

// Clock returns the current time. Tests swap it for a fixed instant.
type Clock func() time.Time

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// FormatDate renders t as a UTC calendar date
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// MonthsBefore returns the same day n months earlier, clamped to the end of
// shorter months (Mar 31 -> Feb 29)
func MonthsBefore(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	lastDay := time.Date(y, m-time.Month(n)+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(y, m-time.Month(n), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// LastMonthWindow returns the [start, end] dates covering the month before now
func LastMonthWindow(now time.Time) (start, end string) {
	now = now.UTC()
	return FormatDate(MonthsBefore(now, 1)), FormatDate(now)
}
