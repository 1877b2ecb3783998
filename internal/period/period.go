// Package period maps calendar dates to habit periods: the inclusive
// date range containing a reference date, a stable string key for grouping
// checkins, and backward navigation between consecutive periods.
package period

import (
	"time"

	"stride/internal/models"
)

// DateKeyLayout is the canonical day-key format used for checkin dates and
// period keys throughout the system.
const DateKeyLayout = "2006-01-02"

// Truncate strips the time-of-day component, keeping the location.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParseDateKey parses a YYYY-MM-DD day key.
func ParseDateKey(key string) (time.Time, error) {
	return time.Parse(DateKeyLayout, key)
}

// FormatDateKey renders t as a YYYY-MM-DD day key.
func FormatDateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// weekStartDay translates the stored convention to a time.Weekday,
// defaulting to Monday.
func weekStartDay(weekStart string) time.Weekday {
	if weekStart == models.WeekStartSunday {
		return time.Sunday
	}
	return time.Monday
}

// Range returns the inclusive calendar boundaries of the period containing
// date. Weekly boundaries respect the configured week start day.
func Range(date time.Time, kind string, weekStart string) (start, end time.Time) {
	d := Truncate(date)
	switch kind {
	case models.PeriodWeekly:
		offset := (int(d.Weekday()) - int(weekStartDay(weekStart)) + 7) % 7
		start = d.AddDate(0, 0, -offset)
		end = start.AddDate(0, 0, 6)
	case models.PeriodMonthly:
		start = time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
		end = start.AddDate(0, 1, -1)
	default: // daily
		start, end = d, d
	}
	return start, end
}

// Key returns a deterministic grouping key for the period containing date:
// the period's start date as YYYY-MM-DD.
func Key(date time.Time, kind string, weekStart string) string {
	start, _ := Range(date, kind, weekStart)
	return FormatDateKey(start)
}

// Previous shifts date so that it falls in the immediately preceding
// period. Monthly navigation normalizes to the first of the month before
// stepping back: subtracting a fixed number of days from a month-end date
// can land in the same month (e.g. Mar 31 − 30d = Mar 1) or skip February
// entirely, and normalization rules both out.
func Previous(date time.Time, kind string) time.Time {
	d := Truncate(date)
	switch kind {
	case models.PeriodWeekly:
		return d.AddDate(0, 0, -7)
	case models.PeriodMonthly:
		firstOfMonth := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
		return firstOfMonth.AddDate(0, -1, 0)
	default:
		return d.AddDate(0, 0, -1)
	}
}
