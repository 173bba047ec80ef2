// Package timeutil provides the clock abstraction and calendar helpers used
// by the registration workflow. All persisted timestamps are UTC.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// Clock returns the current time. Services take a Clock so tests can pin "now".
type Clock func() time.Time

// SystemClock is the real wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// FixedClock returns a Clock frozen at t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// Common date/time formats.
const (
	// FormatDate is the calendar date format accepted from clients (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTimeSeconds is the format used when echoing last-visited times.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// Date creates a UTC midnight time for the given calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// StartOfDay truncates t to UTC midnight.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfMonth returns the first instant of t's month in UTC.
func StartOfMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a strict YYYY-MM-DD calendar date.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	t, err := time.ParseInLocation(FormatDate, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

// FormatDateStr formats t as YYYY-MM-DD.
func FormatDateStr(t time.Time) string {
	return t.UTC().Format(FormatDate)
}

// FormatDateTimeStr formats t as "YYYY-MM-DD HH:MM:SS" in UTC.
func FormatDateTimeStr(t time.Time) string {
	return t.UTC().Format(FormatDateTimeSeconds)
}

// DaysBetween returns the number of whole calendar days from t1 to t2.
// The result is negative when t2 is before t1.
func DaysBetween(t1, t2 time.Time) int {
	a1 := StartOfDay(t1)
	a2 := StartOfDay(t2)
	return int(a2.Sub(a1).Hours() / 24)
}

// ApproxYears returns floor(days/365) between from and to. It ignores leap
// days, so it can disagree with a calendar age near a birthday.
func ApproxYears(from, to time.Time) int {
	days := DaysBetween(from, to)
	if days < 0 {
		return -((-days + 364) / 365)
	}
	return days / 365
}

// CurrentYear returns the calendar year of clock's now.
func CurrentYear(clock Clock) int {
	return clock().UTC().Year()
}
