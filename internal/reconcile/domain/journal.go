package reconcile

import "sort"

// JournalKey identifies one consolidated sales journal line.
type JournalKey struct {
	ContractID  string
	PeriodLabel string
	ArticleName string
}

// JournalLine is the sum of every journal line sharing a JournalKey.
type JournalLine struct {
	JournalKey
	// DeliveryPoint is the first one seen for the key.
	DeliveryPoint string
	LineCount     int
	Sums          Measures
}

// ConsolidateJournal groups billing lines by contract, billing period label and
// article name, summing the declared amount fields.
func ConsolidateJournal(records []BillingRecord, fields []string) ([]JournalLine, error) {
	if err := validateFields(fields, nil); err != nil {
		return nil, err
	}

	byKey := make(map[JournalKey]*JournalLine)
	order := make([]JournalKey, 0)
	for _, r := range records {
		key := JournalKey{ContractID: r.ContractID, PeriodLabel: r.PeriodLabel, ArticleName: r.ArticleName}
		line, ok := byKey[key]
		if !ok {
			line = &JournalLine{JournalKey: key, DeliveryPoint: r.DeliveryPoint, Sums: ZeroMeasures(fields)}
			byKey[key] = line
			order = append(order, key)
		}
		if line.DeliveryPoint == "" {
			line.DeliveryPoint = r.DeliveryPoint
		}
		line.LineCount++
		for _, field := range fields {
			line.Sums[field] = line.Sums[field].Add(r.Amounts.Get(field))
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.ContractID != b.ContractID {
			return a.ContractID < b.ContractID
		}
		if a.PeriodLabel != b.PeriodLabel {
			return a.PeriodLabel < b.PeriodLabel
		}
		return a.ArticleName < b.ArticleName
	})
	out := make([]JournalLine, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out, nil
}
