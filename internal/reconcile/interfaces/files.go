package interfaces

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"acc-reconcile/internal/reconcile/application"
)

// File names written by Outputs.
const (
	WorkbookFile     = "reconciliation_acc.xlsx"
	VariationPDFFile = "variations.pdf"
)

// Outputs writes run results into Dir in the enabled formats.
type Outputs struct {
	Dir       string
	XLSX      bool
	CSV       bool
	PDF       bool
	Separator rune
	Generated time.Time
}

// Write renders result and returns the written paths.
func (o Outputs) Write(result *application.Result, journalFields []string) ([]string, error) {
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	tables := Tables(result, journalFields)
	written := make([]string, 0, len(tables)+2)

	write := func(name string, data []byte) error {
		path := filepath.Join(o.Dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("outputs: %w", err)
		}
		written = append(written, path)
		return nil
	}

	if o.XLSX {
		data, err := BuildWorkbookXLSX(tables)
		if err != nil {
			return written, fmt.Errorf("outputs: workbook: %w", err)
		}
		if err := write(WorkbookFile, data); err != nil {
			return written, err
		}
	}
	if o.CSV {
		for _, table := range tables {
			var buf bytes.Buffer
			if err := WriteCSV(&buf, table, o.Separator); err != nil {
				return written, fmt.Errorf("outputs: %s: %w", table.Name, err)
			}
			if err := write(table.Name+".csv", buf.Bytes()); err != nil {
				return written, err
			}
		}
	}
	if o.PDF {
		generated := o.Generated
		if generated.IsZero() {
			generated = time.Now()
		}
		data, err := BuildVariationPDF(result.Report, result.Window, generated)
		if err != nil {
			return written, fmt.Errorf("outputs: pdf: %w", err)
		}
		if err := write(VariationPDFFile, data); err != nil {
			return written, err
		}
	}
	return written, nil
}
