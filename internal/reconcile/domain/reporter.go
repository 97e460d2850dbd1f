package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"
)

const variationPercentPlaces = 4

var hundred = decimal.NewFromInt(100)

// Variation summarizes the price history of one group.
type Variation struct {
	ContractID       string
	ArticleCode      string
	PeriodCount      int
	Changed          bool
	MinPrice         decimal.Decimal
	MaxPrice         decimal.Decimal
	Variation        decimal.Decimal
	VariationPercent decimal.Decimal
	// PercentDefined is false when MinPrice is zero.
	PercentDefined bool
}

// Key returns the group of the row.
func (v Variation) Key() GroupKey {
	return GroupKey{ContractID: v.ContractID, ArticleCode: v.ArticleCode}
}

// VariationReport is the derived table plus its totals.
type VariationReport struct {
	Rows          []Variation
	TotalPeriods  int
	TotalGroups   int
	ChangedGroups int
}

// Changed returns the rows of groups with more than one period.
func (r VariationReport) Changed() []Variation {
	out := make([]Variation, 0, r.ChangedGroups)
	for _, row := range r.Rows {
		if row.Changed {
			out = append(out, row)
		}
	}
	return out
}

// ReportVariations groups periods by (contract, article) and computes price spread.
func ReportVariations(periods []PricePeriod) VariationReport {
	byKey := make(map[GroupKey]*Variation)
	for _, p := range periods {
		row, ok := byKey[p.Key()]
		if !ok {
			row = &Variation{
				ContractID:  p.ContractID,
				ArticleCode: p.ArticleCode,
				MinPrice:    p.UnitPrice,
				MaxPrice:    p.UnitPrice,
			}
			byKey[p.Key()] = row
		}
		row.PeriodCount++
		if p.UnitPrice.LessThan(row.MinPrice) {
			row.MinPrice = p.UnitPrice
		}
		if p.UnitPrice.GreaterThan(row.MaxPrice) {
			row.MaxPrice = p.UnitPrice
		}
	}

	report := VariationReport{
		Rows:         make([]Variation, 0, len(byKey)),
		TotalPeriods: len(periods),
		TotalGroups:  len(byKey),
	}
	for _, row := range byKey {
		row.Changed = row.PeriodCount > 1
		row.Variation = row.MaxPrice.Sub(row.MinPrice)
		row.VariationPercent = decimal.Zero
		if !row.MinPrice.IsZero() {
			row.PercentDefined = true
			row.VariationPercent = row.Variation.Div(row.MinPrice).Mul(hundred).Round(variationPercentPlaces)
		}
		if row.Changed {
			report.ChangedGroups++
		}
		report.Rows = append(report.Rows, *row)
	}
	sort.Slice(report.Rows, func(i, j int) bool {
		return report.Rows[i].Key().Less(report.Rows[j].Key())
	})
	return report
}
