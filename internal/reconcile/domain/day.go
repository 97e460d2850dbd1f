package reconcile

import "time"

// DayLayout is the canonical textual form of a billing or period date.
const DayLayout = "2006-01-02"

const day = 24 * time.Hour

// TruncateDay normalizes t to midnight UTC of its UTC calendar day.
func TruncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays shifts a UTC day by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return TruncateDay(t).AddDate(0, 0, n)
}

// DaysBetween returns the number of whole days from a to b (negative when b is before a).
func DaysBetween(a, b time.Time) int {
	return int(TruncateDay(b).Sub(TruncateDay(a)) / day)
}

// FormatDay renders the UTC day of t.
func FormatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return TruncateDay(t).Format(DayLayout)
}
