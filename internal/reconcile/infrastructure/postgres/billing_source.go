package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	reconcile "acc-reconcile/internal/reconcile/domain"
	"acc-reconcile/internal/reconcile/infrastructure/cells"
)

const defaultBillingTable = "journal_ventes"

// BillingSource reads billing records from a sales journal table.
type BillingSource struct {
	db            *sql.DB
	table         string
	columns       cells.BillingColumns
	measureFields []string
}

// Option configures the source.
type Option func(*BillingSource)

// WithTable overrides the table name; "schema.table" is accepted.
func WithTable(table string) Option {
	return func(s *BillingSource) {
		if table != "" {
			s.table = table
		}
	}
}

// WithColumns overrides the column names.
func WithColumns(columns cells.BillingColumns) Option {
	return func(s *BillingSource) {
		s.columns = columns
	}
}

// WithMeasureFields declares the amount columns copied into BillingRecord.Amounts.
func WithMeasureFields(fields ...string) Option {
	return func(s *BillingSource) {
		s.measureFields = append([]string(nil), fields...)
	}
}

// NewBillingSource constructs a source.
func NewBillingSource(db *sql.DB, opts ...Option) (*BillingSource, error) {
	if db == nil {
		return nil, errors.New("billing source: nil db")
	}
	s := &BillingSource{
		db:      db,
		table:   defaultBillingTable,
		columns: cells.DefaultBillingColumns(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.columns.Contract == "" || s.columns.Article == "" || s.columns.UnitPrice == "" || s.columns.BillingDate == "" {
		return nil, errors.New("billing source: contract, article, unit price and billing date columns required")
	}
	return s, nil
}

// selected lists the columns in select order. Unset optional columns select an empty string.
func (s *BillingSource) selected() []string {
	cols := []string{
		s.columns.Contract,
		s.columns.Article,
		s.columns.UnitPrice,
		s.columns.BillingDate,
		s.columns.Period,
		s.columns.ArticleName,
		s.columns.DeliveryPoint,
	}
	return append(cols, s.measureFields...)
}

// Query returns the SELECT statement issued by Load.
func (s *BillingSource) Query() string {
	exprs := make([]string, 0, len(s.selected()))
	for _, col := range s.selected() {
		if col == "" {
			exprs = append(exprs, "''")
			continue
		}
		exprs = append(exprs, fmt.Sprintf("COALESCE(CAST(%s AS TEXT), '')", pgx.Identifier{col}.Sanitize()))
	}
	table := pgx.Identifier(strings.Split(s.table, ".")).Sanitize()
	dateCol := pgx.Identifier{s.columns.BillingDate}.Sanitize()
	return fmt.Sprintf("SELECT %s\nFROM %s\nORDER BY %s ASC", strings.Join(exprs, ", "), table, dateCol)
}

// Load reads every row of the table. Values are read as text and parsed like
// spreadsheet cells so both sources share one coercion path.
func (s *BillingSource) Load(ctx context.Context) ([]reconcile.BillingRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.Query())
	if err != nil {
		return nil, fmt.Errorf("billing source: query %s: %w", s.table, err)
	}
	defer rows.Close()

	source := s.table
	records := make([]reconcile.BillingRecord, 0)
	values := make([]string, len(s.selected()))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}

	line := 0
	for rows.Next() {
		line++
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("billing source: scan row %d: %w", line, err)
		}
		record, err := s.record(source, line, values)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("billing source: %w", err)
	}
	return records, nil
}

func (s *BillingSource) record(source string, line int, values []string) (reconcile.BillingRecord, error) {
	malformed := func(column, value string, err error) error {
		return &reconcile.MalformedInputError{Source: source, Row: line, Column: column, Value: value, Reason: err.Error()}
	}
	record := reconcile.BillingRecord{
		ContractID:    strings.TrimSpace(values[0]),
		ArticleCode:   strings.TrimSpace(values[1]),
		PeriodLabel:   strings.TrimSpace(values[4]),
		ArticleName:   strings.TrimSpace(values[5]),
		DeliveryPoint: strings.TrimSpace(values[6]),
		Amounts:       make(reconcile.Measures, len(s.measureFields)),
	}
	if record.ContractID == "" {
		return record, malformed(s.columns.Contract, "", cells.ErrEmpty)
	}
	if record.ArticleCode == "" {
		return record, malformed(s.columns.Article, "", cells.ErrEmpty)
	}
	var err error
	if record.UnitPrice, err = cells.Decimal(values[2]); err != nil {
		return record, malformed(s.columns.UnitPrice, values[2], err)
	}
	if record.BillingDate, err = cells.Day(values[3]); err != nil {
		return record, malformed(s.columns.BillingDate, values[3], err)
	}
	for i, field := range s.measureFields {
		raw := values[7+i]
		value, err := cells.Decimal(raw)
		if err != nil && !errors.Is(err, cells.ErrEmpty) {
			return record, malformed(field, raw, err)
		}
		record.Amounts[field] = value
	}
	return record, nil
}
