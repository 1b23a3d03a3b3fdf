// internal/domain/subscription/billing.go
package subscription

import "time"

// DateOnly returns the calendar date of t as midnight UTC.
// The calendar day is taken in t's own location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths moves d forward by n calendar months. When the target month is
// shorter than d's day, the result is clamped to the target month's last day
// (Jan 31 + 1 month = Feb 28, or Feb 29 in a leap year).
func AddMonths(d time.Time, n int) time.Time {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// NextDueDate is the due date that follows current after one billing cycle.
func NextDueDate(current time.Time, cycle Cycle) time.Time {
	return AddMonths(current, int(cycle))
}

// OnSchedule reports whether due is a date a subscription starting on start
// can reach: start itself, start plus whole cycles, or the date reached by
// advancing one cycle at a time (which drifts after an end-of-month clamp).
func OnSchedule(start, due time.Time, cycle Cycle) bool {
	start, due = DateOnly(start), DateOnly(due)
	if !cycle.Valid() || due.Before(start) {
		return false
	}
	chained := start
	for k := 0; ; k++ {
		anchored := AddMonths(start, k*int(cycle))
		if anchored.Equal(due) || chained.Equal(due) {
			return true
		}
		if anchored.After(due) && chained.After(due) {
			return false
		}
		chained = NextDueDate(chained, cycle)
	}
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the following month normalizes to the last day of month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
