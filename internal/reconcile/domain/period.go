package reconcile

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PricePeriod is a maximal run of days billed at one unit price for a group.
// Start and End are inclusive UTC days.
type PricePeriod struct {
	ContractID   string
	ArticleCode  string
	UnitPrice    decimal.Decimal
	Start        time.Time
	End          time.Time
	DurationDays int
}

// Key returns the group of the period.
func (p PricePeriod) Key() GroupKey {
	return GroupKey{ContractID: p.ContractID, ArticleCode: p.ArticleCode}
}

// Contains reports whether t falls on a day within [Start, End].
func (p PricePeriod) Contains(t time.Time) bool {
	d := TruncateDay(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

func newPricePeriod(key GroupKey, price decimal.Decimal, start, end time.Time) PricePeriod {
	return PricePeriod{
		ContractID:   key.ContractID,
		ArticleCode:  key.ArticleCode,
		UnitPrice:    price,
		Start:        start,
		End:          end,
		DurationDays: DaysBetween(start, end) + 1,
	}
}

// AggregatedPeriod is a price period joined with the measurements it contains.
type AggregatedPeriod struct {
	PricePeriod
	RecordCount int
	Sums        Measures
}

// SortPeriods orders periods by contract, article and start.
func SortPeriods(periods []PricePeriod) {
	sort.SliceStable(periods, func(i, j int) bool {
		return periodLess(periods[i], periods[j])
	})
}

func periodLess(a, b PricePeriod) bool {
	ka, kb := a.Key(), b.Key()
	if ka != kb {
		return ka.Less(kb)
	}
	return a.Start.Before(b.Start)
}
