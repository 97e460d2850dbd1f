package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	reconcile "acc-reconcile/internal/reconcile/domain"
	"acc-reconcile/internal/reconcile/infrastructure/cells"
)

// BillingLoader reads billing records from an xlsx workbook.
type BillingLoader struct {
	sheet         string
	columns       cells.BillingColumns
	measureFields []string
}

// Option configures the loader.
type Option func(*BillingLoader)

// WithSheet selects the sheet; the first sheet is used otherwise.
func WithSheet(sheet string) Option {
	return func(l *BillingLoader) {
		if sheet != "" {
			l.sheet = sheet
		}
	}
}

// WithColumns overrides the column names.
func WithColumns(columns cells.BillingColumns) Option {
	return func(l *BillingLoader) {
		l.columns = columns
	}
}

// WithMeasureFields declares the amount columns copied into BillingRecord.Amounts.
func WithMeasureFields(fields ...string) Option {
	return func(l *BillingLoader) {
		l.measureFields = append([]string(nil), fields...)
	}
}

// NewBillingLoader constructs a loader.
func NewBillingLoader(opts ...Option) *BillingLoader {
	l := &BillingLoader{columns: cells.DefaultBillingColumns()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadFile opens path and reads its billing rows.
func (l *BillingLoader) LoadFile(path string) ([]reconcile.BillingRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: open %s: %w", path, err)
	}
	defer f.Close()
	return l.read(f, filepath.Base(path))
}

// Load reads billing rows from an xlsx stream.
func (l *BillingLoader) Load(r io.Reader, source string) ([]reconcile.BillingRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: open %s: %w", source, err)
	}
	defer f.Close()
	return l.read(f, source)
}

func (l *BillingLoader) read(f *excelize.File, source string) ([]reconcile.BillingRecord, error) {
	sheet := l.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, &reconcile.MalformedInputError{Source: source, Reason: "workbook has no sheet"}
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: read sheet %q: %w", sheet, err)
	}

	records := make([]reconcile.BillingRecord, 0)
	if len(rows) == 0 {
		return records, nil
	}

	header := cells.Header(rows[0])
	required := []string{l.columns.Contract, l.columns.Article, l.columns.UnitPrice, l.columns.BillingDate}
	required = append(required, l.measureFields...)
	for _, column := range required {
		if _, ok := header[column]; !ok {
			return nil, &reconcile.MalformedInputError{Source: source, Column: column, Reason: "missing column"}
		}
	}
	optional := func(column string) int {
		if idx, ok := header[column]; ok && column != "" {
			return idx
		}
		return -1
	}
	periodIdx := optional(l.columns.Period)
	nameIdx := optional(l.columns.ArticleName)
	pdsIdx := optional(l.columns.DeliveryPoint)

	for i, row := range rows[1:] {
		if cells.Blank(row) {
			continue
		}
		line := i + 1
		malformed := func(column, value string, err error) error {
			return &reconcile.MalformedInputError{Source: source, Row: line, Column: column, Value: value, Reason: err.Error()}
		}

		record := reconcile.BillingRecord{
			ContractID:    cells.At(row, header[l.columns.Contract]),
			ArticleCode:   cells.At(row, header[l.columns.Article]),
			PeriodLabel:   cells.At(row, periodIdx),
			ArticleName:   cells.At(row, nameIdx),
			DeliveryPoint: cells.At(row, pdsIdx),
			Amounts:       make(reconcile.Measures, len(l.measureFields)),
		}
		if record.ContractID == "" {
			return nil, malformed(l.columns.Contract, "", cells.ErrEmpty)
		}
		if record.ArticleCode == "" {
			return nil, malformed(l.columns.Article, "", cells.ErrEmpty)
		}

		raw := cells.At(row, header[l.columns.UnitPrice])
		if record.UnitPrice, err = cells.Decimal(raw); err != nil {
			return nil, malformed(l.columns.UnitPrice, raw, err)
		}
		raw = cells.At(row, header[l.columns.BillingDate])
		if record.BillingDate, err = cells.Day(raw); err != nil {
			return nil, malformed(l.columns.BillingDate, raw, err)
		}
		for _, field := range l.measureFields {
			raw = cells.At(row, header[field])
			value, err := cells.Decimal(raw)
			if err != nil && !errors.Is(err, cells.ErrEmpty) {
				return nil, malformed(field, raw, err)
			}
			record.Amounts[field] = value
		}
		records = append(records, record)
	}
	return records, nil
}
