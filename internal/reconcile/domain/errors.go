package reconcile

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedInput is returned when a required column is missing or a value cannot be used.
	ErrMalformedInput = errors.New("reconcile: malformed input")
	// ErrDegenerateInterval is returned when a period would span less than one day.
	ErrDegenerateInterval = errors.New("reconcile: degenerate interval")
	// ErrNoStartMarker is returned when no measurement carries the start marker.
	ErrNoStartMarker = errors.New("reconcile: start marker not found")
	// ErrInvalidWindow is returned when window bounds are zero or reversed.
	ErrInvalidWindow = errors.New("reconcile: invalid window")
)

// MalformedInputError identifies the offending source, row and column.
// Row is 1-based and refers to the data row (header excluded); 0 means unknown.
type MalformedInputError struct {
	Source string
	Row    int
	Column string
	Value  string
	Reason string
}

func (e *MalformedInputError) Error() string {
	msg := "reconcile: malformed input"
	if e.Source != "" {
		msg += " in " + e.Source
	}
	if e.Row > 0 {
		msg += fmt.Sprintf(" row %d", e.Row)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" column %q", e.Column)
	}
	if e.Value != "" {
		msg += fmt.Sprintf(" value %q", e.Value)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap lets errors.Is match ErrMalformedInput.
func (e *MalformedInputError) Unwrap() error { return ErrMalformedInput }

// DegenerateIntervalError reports two different prices billed on the same day for one group.
type DegenerateIntervalError struct {
	Key    GroupKey
	Date   time.Time
	First  decimal.Decimal
	Second decimal.Decimal
}

func (e *DegenerateIntervalError) Error() string {
	return fmt.Sprintf("reconcile: degenerate interval for %s on %s: price %s then %s",
		e.Key, FormatDay(e.Date), e.First.String(), e.Second.String())
}

// Unwrap lets errors.Is match ErrDegenerateInterval.
func (e *DegenerateIntervalError) Unwrap() error { return ErrDegenerateInterval }
