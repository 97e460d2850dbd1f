// Package cells converts raw spreadsheet and CSV cells into typed values.
package cells

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ErrEmpty is returned for blank cells.
var ErrEmpty = errors.New("cells: empty value")

// maxExcelSerial is 9999-12-31 as an Excel serial date.
const maxExcelSerial = 2958465

var dayLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2006/01/02",
	"20060102",
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05-07",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

// Decimal parses a number, accepting a decimal comma and space thousands separators.
func Decimal(raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return decimal.Zero, ErrEmpty
	}
	value = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "").Replace(value)
	comma, dot := strings.LastIndex(value, ","), strings.LastIndex(value, ".")
	switch {
	case comma >= 0 && dot > comma:
		value = strings.ReplaceAll(value, ",", "")
	case comma >= 0:
		value = strings.ReplaceAll(value, ".", "")
		value = strings.ReplaceAll(value, ",", ".")
	}
	return decimal.NewFromString(value)
}

// Day parses a date-only cell. Excel serial numbers are accepted.
func Day(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, ErrEmpty
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil && serial > 0 && serial <= maxExcelSerial {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		return truncate(t), nil
	}
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	t, err := Timestamp(value)
	if err != nil {
		return time.Time{}, err
	}
	return truncate(t), nil
}

// Timestamp parses a reading timestamp and normalizes it to UTC.
// Values without an offset are taken as UTC.
func Timestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, ErrEmpty
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("cells: unrecognized date " + strconv.Quote(value))
}

func truncate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Header indexes column names, trimming blanks and a UTF-8 byte order mark.
func Header(row []string) map[string]int {
	index := make(map[string]int, len(row))
	for i, name := range row {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name == "" {
			continue
		}
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}
	return index
}

// At returns the trimmed cell i of row, or "" when the row is short.
func At(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Blank reports whether every cell of row is empty.
func Blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// BillingColumns names the journal columns holding billing record fields.
// Period, ArticleName and DeliveryPoint are optional.
type BillingColumns struct {
	Contract      string
	Article       string
	UnitPrice     string
	BillingDate   string
	Period        string
	ArticleName   string
	DeliveryPoint string
}

// DefaultBillingColumns matches the detailed sales journal export.
func DefaultBillingColumns() BillingColumns {
	return BillingColumns{
		Contract:      "CONTRAT",
		Article:       "CODE_ARTICLE",
		UnitPrice:     "PUHT",
		BillingDate:   "DATEFACT",
		Period:        "PÉRIODE",
		ArticleName:   "NOM_ARTICLE",
		DeliveryPoint: "PDS_CONTRAT",
	}
}
