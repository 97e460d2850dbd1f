package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Measures maps a declared measure field to its value.
type Measures map[string]decimal.Decimal

// Get returns the value of field, or zero when absent.
func (m Measures) Get(field string) decimal.Decimal {
	if m == nil {
		return decimal.Zero
	}
	value, ok := m[field]
	if !ok {
		return decimal.Zero
	}
	return value
}

// Clone returns a detached copy.
func (m Measures) Clone() Measures {
	out := make(Measures, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ZeroMeasures returns a map holding zero for every field.
func ZeroMeasures(fields []string) Measures {
	out := make(Measures, len(fields))
	for _, field := range fields {
		out[field] = decimal.Zero
	}
	return out
}

// GroupKey identifies one billing stream.
type GroupKey struct {
	ContractID  string
	ArticleCode string
}

func (k GroupKey) String() string {
	return k.ContractID + "/" + k.ArticleCode
}

// Less orders keys by contract then article.
func (k GroupKey) Less(other GroupKey) bool {
	if k.ContractID != other.ContractID {
		return k.ContractID < other.ContractID
	}
	return k.ArticleCode < other.ArticleCode
}

// BillingRecord is one line of the sales journal.
type BillingRecord struct {
	ContractID  string
	ArticleCode string
	UnitPrice   decimal.Decimal
	BillingDate time.Time
	Amounts     Measures

	// Journal attributes, only read by ConsolidateJournal.
	PeriodLabel   string
	ArticleName   string
	DeliveryPoint string
}

// Key returns the segmentation group of the record.
func (r BillingRecord) Key() GroupKey {
	return GroupKey{ContractID: r.ContractID, ArticleCode: r.ArticleCode}
}

// MeasurementRecord is one metered energy-flow reading.
type MeasurementRecord struct {
	ReadingDate    time.Time
	CollectiveFlag string
	Energies       Measures
}

// Schema declares which columns identify a row and which are summed.
type Schema struct {
	KeyFields     []string
	MeasureFields []string
}

// Validate checks measure fields are named, unique and disjoint from key fields.
func (s Schema) Validate() error {
	keys := make(map[string]struct{}, len(s.KeyFields))
	for _, field := range s.KeyFields {
		keys[field] = struct{}{}
	}
	return validateFields(s.MeasureFields, keys)
}

func validateFields(fields []string, reserved map[string]struct{}) error {
	seen := make(map[string]struct{}, len(fields))
	for i, field := range fields {
		if field == "" {
			return &MalformedInputError{Source: "schema", Reason: fmt.Sprintf("measure field %d has no name", i+1)}
		}
		if _, ok := reserved[field]; ok {
			return &MalformedInputError{Source: "schema", Column: field, Reason: "declared both as key and measure"}
		}
		if _, ok := seen[field]; ok {
			return &MalformedInputError{Source: "schema", Column: field, Reason: "duplicate measure field"}
		}
		seen[field] = struct{}{}
	}
	return nil
}

// SortedFields returns the union of the measure names present in records, sorted.
// Loaders use it when the schema is declared by prefix rather than by exact name.
func SortedFields(sets ...Measures) []string {
	seen := make(map[string]struct{})
	for _, set := range sets {
		for k := range set {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
