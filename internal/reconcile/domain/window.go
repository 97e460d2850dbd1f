package reconcile

import (
	"fmt"
	"strings"
	"time"
)

// Window is the inclusive regularization range, at UTC-day precision.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow validates and normalizes the bounds.
func NewWindow(start, end time.Time) (Window, error) {
	if start.IsZero() || end.IsZero() {
		return Window{}, fmt.Errorf("%w: zero bound", ErrInvalidWindow)
	}
	w := Window{Start: TruncateDay(start), End: TruncateDay(end)}
	if w.End.Before(w.Start) {
		return Window{}, fmt.Errorf("%w: start %s after end %s", ErrInvalidWindow, FormatDay(w.Start), FormatDay(w.End))
	}
	return w, nil
}

// Contains reports whether the day of t is within the window.
func (w Window) Contains(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	d := TruncateDay(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w Window) String() string {
	return "[" + FormatDay(w.Start) + ", " + FormatDay(w.End) + "]"
}

// FilterWindow returns the records whose timestamp lies in the window and that
// satisfy every keep predicate. The input slice is left untouched.
func FilterWindow[T any](records []T, w Window, at func(T) time.Time, keep ...func(T) bool) []T {
	out := make([]T, 0, len(records))
next:
	for _, record := range records {
		if !w.Contains(at(record)) {
			continue
		}
		for _, pred := range keep {
			if pred != nil && !pred(record) {
				continue next
			}
		}
		out = append(out, record)
	}
	return out
}

// FilterBilling clips billing records on their billing date.
func FilterBilling(records []BillingRecord, w Window, keep ...func(BillingRecord) bool) []BillingRecord {
	return FilterWindow(records, w, func(r BillingRecord) time.Time { return r.BillingDate }, keep...)
}

// FilterMeasurements clips measurement records on their reading date.
func FilterMeasurements(records []MeasurementRecord, w Window, keep ...func(MeasurementRecord) bool) []MeasurementRecord {
	return FilterWindow(records, w, func(r MeasurementRecord) time.Time { return r.ReadingDate }, keep...)
}

// ArticlePrefixes keeps billing records whose article code starts with one of prefixes.
// No prefix keeps everything.
func ArticlePrefixes(prefixes ...string) func(BillingRecord) bool {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return func(r BillingRecord) bool {
		if len(cleaned) == 0 {
			return true
		}
		for _, p := range cleaned {
			if strings.HasPrefix(r.ArticleCode, p) {
				return true
			}
		}
		return false
	}
}

// StartMarker returns the earliest reading date among measurements flagged with marker.
func StartMarker(measurements []MeasurementRecord, marker string) (time.Time, error) {
	var start time.Time
	for _, m := range measurements {
		if m.CollectiveFlag != marker || m.ReadingDate.IsZero() {
			continue
		}
		if start.IsZero() || m.ReadingDate.Before(start) {
			start = m.ReadingDate
		}
	}
	if start.IsZero() {
		return time.Time{}, fmt.Errorf("%w: marker %q", ErrNoStartMarker, marker)
	}
	return start.UTC(), nil
}
