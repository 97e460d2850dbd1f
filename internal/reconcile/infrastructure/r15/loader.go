// Package r15 reads R15 ACC metering exports into measurement records.
package r15

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	reconcile "acc-reconcile/internal/reconcile/domain"
	"acc-reconcile/internal/reconcile/infrastructure/cells"
)

// Batch is the loaded records plus the measure fields found in their headers.
type Batch struct {
	Records []reconcile.MeasurementRecord
	Fields  []string
}

func (b *Batch) merge(other Batch) {
	b.Records = append(b.Records, other.Records...)
	seen := make(map[string]struct{}, len(b.Fields))
	for _, f := range b.Fields {
		seen[f] = struct{}{}
	}
	for _, f := range other.Fields {
		if _, ok := seen[f]; !ok {
			b.Fields = append(b.Fields, f)
			seen[f] = struct{}{}
		}
	}
	sort.Strings(b.Fields)
}

// Loader reads csv files, zip archives of csv files, or folders of both.
type Loader struct {
	separator       rune
	timestampColumn string
	markerColumn    string
	measureFields   []string
	measurePrefixes []string
}

// Option configures the loader.
type Option func(*Loader)

// WithSeparator sets the csv field separator.
func WithSeparator(sep rune) Option {
	return func(l *Loader) {
		if sep != 0 {
			l.separator = sep
		}
	}
}

// WithTimestampColumn sets the reading date column.
func WithTimestampColumn(column string) Option {
	return func(l *Loader) {
		if column != "" {
			l.timestampColumn = column
		}
	}
}

// WithMarkerColumn sets the column holding the collective flag.
// An empty name disables the column.
func WithMarkerColumn(column string) Option {
	return func(l *Loader) {
		l.markerColumn = column
	}
}

// WithMeasureFields declares measure columns that must be present.
func WithMeasureFields(fields ...string) Option {
	return func(l *Loader) {
		l.measureFields = append([]string(nil), fields...)
	}
}

// WithMeasurePrefixes declares measure columns by name prefix.
func WithMeasurePrefixes(prefixes ...string) Option {
	return func(l *Loader) {
		l.measurePrefixes = append([]string(nil), prefixes...)
	}
}

// NewLoader constructs a loader with the R15 defaults.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		separator:       ';',
		timestampColumn: "Date_Releve",
		markerColumn:    "Motif_Releve",
		measurePrefixes: []string{"EA"},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadPath reads a csv file, a zip archive or every csv/zip below a folder.
func (l *Loader) LoadPath(path string) (Batch, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Batch{}, fmt.Errorf("r15: %w", err)
	}
	if !info.IsDir() {
		return l.loadFile(path)
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".csv", ".zip":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return Batch{}, fmt.Errorf("r15: walk %s: %w", path, err)
	}
	sort.Strings(files)

	batch := Batch{Records: make([]reconcile.MeasurementRecord, 0)}
	for _, file := range files {
		loaded, err := l.loadFile(file)
		if err != nil {
			return Batch{}, err
		}
		batch.merge(loaded)
	}
	return batch, nil
}

func (l *Loader) loadFile(path string) (Batch, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return l.LoadZip(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return Batch{}, fmt.Errorf("r15: %w", err)
	}
	defer f.Close()
	return l.LoadCSV(f, filepath.Base(path))
}

// LoadZip reads every csv entry of a zip archive, in name order.
func (l *Loader) LoadZip(path string) (Batch, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return Batch{}, fmt.Errorf("r15: open %s: %w", path, err)
	}
	defer archive.Close()

	entries := make([]*zip.File, 0, len(archive.File))
	for _, entry := range archive.File {
		if entry.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(entry.Name), ".csv") {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	batch := Batch{Records: make([]reconcile.MeasurementRecord, 0)}
	for _, entry := range entries {
		rc, err := entry.Open()
		if err != nil {
			return Batch{}, fmt.Errorf("r15: open %s in %s: %w", entry.Name, path, err)
		}
		loaded, err := l.LoadCSV(rc, filepath.Base(path)+":"+entry.Name)
		rc.Close()
		if err != nil {
			return Batch{}, err
		}
		batch.merge(loaded)
	}
	return batch, nil
}

// LoadCSV reads one csv stream. Empty measure cells count as zero.
func (l *Loader) LoadCSV(r io.Reader, source string) (Batch, error) {
	reader := csv.NewReader(r)
	reader.Comma = l.separator
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	batch := Batch{Records: make([]reconcile.MeasurementRecord, 0), Fields: []string{}}
	head, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return batch, nil
	}
	if err != nil {
		return Batch{}, fmt.Errorf("r15: read %s header: %w", source, err)
	}
	header := cells.Header(head)

	tsIdx, ok := header[l.timestampColumn]
	if !ok {
		return Batch{}, &reconcile.MalformedInputError{Source: source, Column: l.timestampColumn, Reason: "missing column"}
	}
	markerIdx := -1
	if l.markerColumn != "" {
		if markerIdx, ok = header[l.markerColumn]; !ok {
			return Batch{}, &reconcile.MalformedInputError{Source: source, Column: l.markerColumn, Reason: "missing column"}
		}
	}
	fields, err := l.resolveFields(header, source)
	if err != nil {
		return Batch{}, err
	}
	batch.Fields = fields

	line := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return Batch{}, &reconcile.MalformedInputError{Source: source, Row: line, Reason: err.Error()}
		}
		if cells.Blank(row) {
			continue
		}

		raw := cells.At(row, tsIdx)
		readAt, err := cells.Timestamp(raw)
		if err != nil {
			return Batch{}, &reconcile.MalformedInputError{Source: source, Row: line, Column: l.timestampColumn, Value: raw, Reason: err.Error()}
		}
		record := reconcile.MeasurementRecord{
			ReadingDate:    readAt,
			CollectiveFlag: cells.At(row, markerIdx),
			Energies:       make(reconcile.Measures, len(fields)),
		}
		for _, field := range fields {
			raw = cells.At(row, header[field])
			value, err := cells.Decimal(raw)
			if err != nil && !errors.Is(err, cells.ErrEmpty) {
				return Batch{}, &reconcile.MalformedInputError{Source: source, Row: line, Column: field, Value: raw, Reason: err.Error()}
			}
			record.Energies[field] = value
		}
		batch.Records = append(batch.Records, record)
	}
	return batch, nil
}

func (l *Loader) resolveFields(header map[string]int, source string) ([]string, error) {
	set := make(map[string]struct{})
	for _, field := range l.measureFields {
		if _, ok := header[field]; !ok {
			return nil, &reconcile.MalformedInputError{Source: source, Column: field, Reason: "missing column"}
		}
		set[field] = struct{}{}
	}
	for name := range header {
		if name == l.timestampColumn || name == l.markerColumn {
			continue
		}
		for _, prefix := range l.measurePrefixes {
			if prefix != "" && strings.HasPrefix(name, prefix) {
				set[name] = struct{}{}
				break
			}
		}
	}
	fields := make([]string, 0, len(set))
	for field := range set {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields, nil
}
