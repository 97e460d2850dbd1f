package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Aggregate joins every period with the measurements read on one of its days and
// sums the declared fields. Periods without measurements are kept with a zero count
// and zero sums. Output order follows the input period order.
func Aggregate(periods []PricePeriod, measurements []MeasurementRecord, fields []string) ([]AggregatedPeriod, error) {
	if err := validateFields(fields, nil); err != nil {
		return nil, err
	}

	out := make([]AggregatedPeriod, 0, len(periods))
	if len(periods) == 0 {
		return out, nil
	}

	idx := newMeasurementIndex(measurements, fields)
	for _, period := range periods {
		if period.End.Before(period.Start) || period.DurationDays < 1 {
			return nil, fmt.Errorf("%w: period %s %s..%s", ErrDegenerateInterval,
				period.Key(), FormatDay(period.Start), FormatDay(period.End))
		}
		lo, hi := idx.span(period.Start, period.End)
		sums := make(Measures, len(fields))
		for _, field := range fields {
			sums[field] = idx.sum(field, lo, hi)
		}
		out = append(out, AggregatedPeriod{
			PricePeriod: period,
			RecordCount: hi - lo,
			Sums:        sums,
		})
	}
	return out, nil
}

// measurementIndex holds reading days in ascending order and one prefix-sum
// column per field: prefix[f][i] is the sum of the first i readings.
type measurementIndex struct {
	days   []time.Time
	prefix map[string][]decimal.Decimal
}

func newMeasurementIndex(measurements []MeasurementRecord, fields []string) measurementIndex {
	sorted := make([]MeasurementRecord, len(measurements))
	copy(sorted, measurements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ReadingDate.Before(sorted[j].ReadingDate)
	})

	idx := measurementIndex{
		days:   make([]time.Time, len(sorted)),
		prefix: make(map[string][]decimal.Decimal, len(fields)),
	}
	for _, field := range fields {
		column := make([]decimal.Decimal, len(sorted)+1)
		column[0] = decimal.Zero
		for i, m := range sorted {
			column[i+1] = column[i].Add(m.Energies.Get(field))
		}
		idx.prefix[field] = column
	}
	for i, m := range sorted {
		idx.days[i] = TruncateDay(m.ReadingDate)
	}
	return idx
}

// span returns the half-open index range of readings whose day is in [start, end].
func (idx measurementIndex) span(start, end time.Time) (int, int) {
	start, end = TruncateDay(start), TruncateDay(end)
	lo := sort.Search(len(idx.days), func(i int) bool { return !idx.days[i].Before(start) })
	hi := sort.Search(len(idx.days), func(i int) bool { return idx.days[i].After(end) })
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func (idx measurementIndex) sum(field string, lo, hi int) decimal.Decimal {
	column := idx.prefix[field]
	return column[hi].Sub(column[lo])
}
