package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"acc-reconcile/internal/reconcile/application"
	reconcile "acc-reconcile/internal/reconcile/domain"
)

// Table names, used as sheet names and csv file stems.
const (
	TablePeriods    = "periodes"
	TablePeriodsR15 = "periodes_r15"
	TableVariations = "variations"
	TableJournal    = "journal_groupe"
)

// Table is one tabular output. Cells hold string, int, bool, time.Time or decimal.Decimal.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

var periodHeader = []string{"CONTRAT", "CODE_ARTICLE", "PUHT", "date_debut", "date_fin", "duree_jours"}

func periodCells(p reconcile.PricePeriod) []any {
	return []any{p.ContractID, p.ArticleCode, p.UnitPrice, p.Start, p.End, p.DurationDays}
}

// PeriodsTable lists the price periods.
func PeriodsTable(periods []reconcile.PricePeriod) Table {
	t := Table{Name: TablePeriods, Header: periodHeader, Rows: make([][]any, 0, len(periods))}
	for _, p := range periods {
		t.Rows = append(t.Rows, periodCells(p))
	}
	return t
}

// AggregatedTable lists the periods with their summed measures.
func AggregatedTable(aggregated []reconcile.AggregatedPeriod, fields []string) Table {
	header := append(append([]string(nil), periodHeader...), "nb_lignes_r15")
	header = append(header, fields...)
	t := Table{Name: TablePeriodsR15, Header: header, Rows: make([][]any, 0, len(aggregated))}
	for _, a := range aggregated {
		row := append(periodCells(a.PricePeriod), a.RecordCount)
		for _, field := range fields {
			row = append(row, a.Sums.Get(field))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// VariationsTable lists one row per contract/article group.
func VariationsTable(report reconcile.VariationReport) Table {
	t := Table{
		Name:   TableVariations,
		Header: []string{"CONTRAT", "CODE_ARTICLE", "nb_periodes", "a_change", "PUHT_min", "PUHT_max", "variation", "variation_pct"},
		Rows:   make([][]any, 0, len(report.Rows)),
	}
	for _, v := range report.Rows {
		var pct any = ""
		if v.PercentDefined {
			pct = v.VariationPercent
		}
		t.Rows = append(t.Rows, []any{v.ContractID, v.ArticleCode, v.PeriodCount, v.Changed, v.MinPrice, v.MaxPrice, v.Variation, pct})
	}
	return t
}

// JournalTable lists the consolidated journal lines.
func JournalTable(lines []reconcile.JournalLine, fields []string) Table {
	header := append([]string{"CONTRAT", "PÉRIODE", "NOM_ARTICLE", "PDS_CONTRAT", "nb_lignes"}, fields...)
	t := Table{Name: TableJournal, Header: header, Rows: make([][]any, 0, len(lines))}
	for _, l := range lines {
		row := []any{l.ContractID, l.PeriodLabel, l.ArticleName, l.DeliveryPoint, l.LineCount}
		for _, field := range fields {
			row = append(row, l.Sums.Get(field))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Tables returns the four outputs of a run in workbook order.
func Tables(result *application.Result, journalFields []string) []Table {
	return []Table{
		PeriodsTable(result.Periods),
		AggregatedTable(result.Aggregated, result.Fields),
		VariationsTable(result.Report),
		JournalTable(result.Journal, journalFields),
	}
}

func textCell(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case int:
		return strconv.Itoa(c)
	case bool:
		if c {
			return "1"
		}
		return "0"
	case time.Time:
		return reconcile.FormatDay(c)
	case decimal.Decimal:
		return c.String()
	default:
		return fmt.Sprint(c)
	}
}

func sheetCell(v any) any {
	switch c := v.(type) {
	case time.Time:
		return reconcile.FormatDay(c)
	case decimal.Decimal:
		return c.InexactFloat64()
	default:
		return c
	}
}

// BuildWorkbookXLSX renders every table on its own sheet.
func BuildWorkbookXLSX(tables []Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, table := range tables {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", table.Name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(table.Name); err != nil {
			return nil, err
		}

		header := make([]any, len(table.Header))
		for j, h := range table.Header {
			header[j] = h
		}
		if err := f.SetSheetRow(table.Name, "A1", &header); err != nil {
			return nil, err
		}
		for j, row := range table.Rows {
			values := make([]any, len(row))
			for k, v := range row {
				values[k] = sheetCell(v)
			}
			cell, err := excelize.CoordinatesToCellName(1, j+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(table.Name, cell, &values); err != nil {
				return nil, err
			}
		}
		if len(table.Header) > 0 {
			last, _ := excelize.ColumnNumberToName(len(table.Header))
			_ = f.AutoFilter(table.Name, "A1:"+last+"1", nil)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV writes table with a header line, using sep as field separator.
func WriteCSV(w io.Writer, table Table, sep rune) error {
	cw := csv.NewWriter(w)
	if sep != 0 {
		cw.Comma = sep
	}
	if err := cw.Write(table.Header); err != nil {
		return err
	}
	record := make([]string, 0, len(table.Header))
	for _, row := range table.Rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, textCell(v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// BuildVariationPDF renders the price variation report.
func BuildVariationPDF(report reconcile.VariationReport, window reconcile.Window, generated time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, tr("Variations de prix ACC"))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Window: %s", window))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generated.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Groups: %d  Changed: %d  Periods: %d", report.TotalGroups, report.ChangedGroups, report.TotalPeriods))
	pdf.Ln(8)

	widths := []float64{45, 45, 25, 20, 30, 30, 30, 30}
	header := []string{"CONTRAT", "CODE_ARTICLE", "nb_periodes", "a_change", "PUHT_min", "PUHT_max", "variation", "variation_pct"}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range header {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, v := range report.Rows {
		changed := "non"
		if v.Changed {
			changed = "oui"
		}
		pct := "-"
		if v.PercentDefined {
			pct = v.VariationPercent.StringFixed(2) + " %"
		}
		cells := []string{tr(v.ContractID), tr(v.ArticleCode), strconv.Itoa(v.PeriodCount), changed,
			v.MinPrice.String(), v.MaxPrice.String(), v.Variation.String(), pct}
		for i, c := range cells {
			align := "R"
			if i < 2 || i == 3 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 6, c, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
