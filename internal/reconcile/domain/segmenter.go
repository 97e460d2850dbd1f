package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DegeneratePolicy decides what happens when one group bills two prices on the same day.
type DegeneratePolicy string

const (
	// DegenerateReject fails segmentation with a DegenerateIntervalError.
	DegenerateReject DegeneratePolicy = "reject"
	// DegenerateLastWins keeps the price of the last record of the day in input order.
	DegenerateLastWins DegeneratePolicy = "last_wins"
)

// ParseDegeneratePolicy maps a configuration value to a policy; empty means reject.
func ParseDegeneratePolicy(value string) (DegeneratePolicy, error) {
	switch DegeneratePolicy(value) {
	case "", DegenerateReject:
		return DegenerateReject, nil
	case DegenerateLastWins:
		return DegenerateLastWins, nil
	default:
		return "", fmt.Errorf("reconcile: unknown degenerate policy %q", value)
	}
}

type segmentOptions struct {
	policy DegeneratePolicy
}

// SegmentOption configures Segment.
type SegmentOption func(*segmentOptions)

// WithDegeneratePolicy overrides the same-day conflict policy.
func WithDegeneratePolicy(policy DegeneratePolicy) SegmentOption {
	return func(o *segmentOptions) {
		if policy != "" {
			o.policy = policy
		}
	}
}

type pricePoint struct {
	date  time.Time
	price decimal.Decimal
}

// Segment splits billing records into price periods per (contract, article).
// Records need not be sorted; ties on billing date keep input order.
// The result is ordered by contract, article and period start.
func Segment(records []BillingRecord, opts ...SegmentOption) ([]PricePeriod, error) {
	o := segmentOptions{policy: DegenerateReject}
	for _, opt := range opts {
		opt(&o)
	}

	periods := make([]PricePeriod, 0)
	if len(records) == 0 {
		return periods, nil
	}

	groups := make(map[GroupKey][]pricePoint)
	for i, record := range records {
		if err := validateBillingRecord(i+1, record); err != nil {
			return nil, err
		}
		key := record.Key()
		groups[key] = append(groups[key], pricePoint{
			date:  TruncateDay(record.BillingDate),
			price: record.UnitPrice,
		})
	}

	keys := make([]GroupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	for _, key := range keys {
		points := groups[key]
		sort.SliceStable(points, func(i, j int) bool { return points[i].date.Before(points[j].date) })

		changes, err := changePoints(key, points, o.policy)
		if err != nil {
			return nil, err
		}
		last := points[len(points)-1].date
		for i, change := range changes {
			end := last
			if i+1 < len(changes) {
				end = AddDays(changes[i+1].date, -1)
			}
			period := newPricePeriod(key, change.price, change.date, end)
			if period.DurationDays < 1 {
				return nil, &DegenerateIntervalError{Key: key, Date: change.date, First: change.price, Second: changes[i+1].price}
			}
			periods = append(periods, period)
		}
	}
	return periods, nil
}

// changePoints collapses each day to a single price, then keeps the days whose
// price differs from the previous day's.
func changePoints(key GroupKey, points []pricePoint, policy DegeneratePolicy) ([]pricePoint, error) {
	days := make([]pricePoint, 0, len(points))
	for _, point := range points {
		n := len(days)
		if n > 0 && days[n-1].date.Equal(point.date) {
			if !days[n-1].price.Equal(point.price) {
				if policy != DegenerateLastWins {
					return nil, &DegenerateIntervalError{Key: key, Date: point.date, First: days[n-1].price, Second: point.price}
				}
				days[n-1].price = point.price
			}
			continue
		}
		days = append(days, point)
	}

	changes := make([]pricePoint, 0, len(days))
	for i, d := range days {
		if i == 0 || !d.price.Equal(days[i-1].price) {
			changes = append(changes, d)
		}
	}
	return changes, nil
}

func validateBillingRecord(row int, record BillingRecord) error {
	switch {
	case record.ContractID == "":
		return &MalformedInputError{Source: "billing", Row: row, Column: "contract_id", Reason: "empty contract"}
	case record.ArticleCode == "":
		return &MalformedInputError{Source: "billing", Row: row, Column: "article_code", Reason: "empty article"}
	case record.BillingDate.IsZero():
		return &MalformedInputError{Source: "billing", Row: row, Column: "billing_date", Reason: "missing date"}
	}
	return nil
}
