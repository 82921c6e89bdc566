package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/IshaanNene/AutoHarvest/internal/types"
)

// Row is one existing ledger row keyed by column.
type Row map[string]string

// Get returns the value of column, or NotFound when the row lacks it.
func (r Row) Get(column string) string {
	if v, ok := r[column]; ok {
		return v
	}
	return string(types.NotFound)
}

func (r Row) values(columns Schema) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = r.Get(c)
	}
	return out
}

// Ledger owns the corpus file (newest first) and the per-cycle delta file.
// It is the only writer of either; callers run one cycle at a time.
type Ledger struct {
	Path      string
	DeltaPath string

	cycle  int
	logger *slog.Logger
}

// NewLedger creates a Ledger for the given corpus and delta paths.
func NewLedger(path, deltaPath string, logger *slog.Logger) *Ledger {
	return &Ledger{
		Path:      path,
		DeltaPath: deltaPath,
		logger:    logger.With("component", "ledger"),
	}
}

// SetCycle records the cycle sequence stamped into the schema sidecar.
func (l *Ledger) SetCycle(seq int) {
	l.cycle = seq
}

// Exists reports whether the corpus file is present.
func (l *Ledger) Exists() bool {
	_, err := os.Stat(l.Path)
	return err == nil
}

// Header returns the corpus header.
func (l *Ledger) Header() (Schema, error) {
	f, r, err := l.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := readHeader(r)
	if err != nil {
		return nil, l.readErr(err)
	}
	return Schema(header), nil
}

// ReadAll reads the full corpus in file order.
func (l *Ledger) ReadAll() (Schema, []Row, error) {
	return l.read(-1)
}

// ReadHead reads at most n rows from the top of the corpus, i.e. the n most
// recent listings.
func (l *Ledger) ReadHead(n int) ([]Row, error) {
	_, rows, err := l.read(n)
	return rows, err
}

func (l *Ledger) read(limit int) (Schema, []Row, error) {
	f, r, err := l.open()
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	header, err := readHeader(r)
	if err != nil {
		return nil, nil, l.readErr(err)
	}

	var rows []Row
	for limit < 0 || len(rows) < limit {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, l.readErr(err)
		}
		row := make(Row, len(header))
		for i, c := range header {
			row[c] = rec[i]
		}
		rows = append(rows, row)
	}
	return Schema(header), rows, nil
}

func (l *Ledger) open() (*os.File, *csv.Reader, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &types.LedgerError{Path: l.Path, Op: "open", Err: types.ErrLedgerNotExists}
		}
		return nil, nil, &types.LedgerError{Path: l.Path, Op: "open", Err: err}
	}
	return f, csv.NewReader(f), nil
}

func (l *Ledger) readErr(err error) error {
	return &types.LedgerError{Path: l.Path, Op: "read", Err: err}
}

func readHeader(r *csv.Reader) ([]string, error) {
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("missing header")
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	// Every following row must match the header width.
	r.FieldsPerRecord = len(header)
	return header, nil
}

// WriteDelta recreates the delta file with records, header only when there
// are none. The header is the union of schema and the records' fields.
func (l *Ledger) WriteDelta(schema Schema, records []*types.Record) error {
	cols := schema
	for _, rec := range records {
		cols = cols.Union(rec.Keys())
	}

	err := writeCSV(l.DeltaPath, cols, func(w *csv.Writer) error {
		for _, rec := range records {
			if err := w.Write(rec.Row(cols)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &types.LedgerError{Path: l.DeltaPath, Op: "write delta", Err: err}
	}

	l.logger.Info("delta written", "path", l.DeltaPath, "records", len(records), "columns", len(cols))
	return nil
}

// Merge prepends records to the corpus: the new records first in the order
// given, then every existing row in its original order. The header becomes
// the sorted union of schema, the records' fields, the existing header and
// the persisted sidecar. With no records the corpus is left untouched. A
// corpus that cannot be read aborts the merge before anything is written.
func (l *Ledger) Merge(records []*types.Record, schema Schema) (Schema, error) {
	if len(records) == 0 {
		return schema, nil
	}

	header, existing, err := l.ReadAll()
	if err != nil && !errors.Is(err, types.ErrLedgerNotExists) {
		return nil, err
	}

	sidecar, err := LoadSchema(SchemaPath(l.Path))
	if err != nil {
		l.logger.Warn("schema sidecar unreadable, using ledger header", "error", err)
	}

	cols := header.Union(schema, sidecar)
	for _, rec := range records {
		cols = cols.Union(rec.Keys())
	}

	err = writeCSV(l.Path, cols, func(w *csv.Writer) error {
		for _, rec := range records {
			if err := w.Write(rec.Row(cols)); err != nil {
				return err
			}
		}
		for _, row := range existing {
			if err := w.Write(row.values(cols)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, &types.LedgerError{Path: l.Path, Op: "write", Err: err}
	}

	if err := SaveSchema(SchemaPath(l.Path), cols, l.cycle); err != nil {
		l.logger.Warn("schema sidecar not saved", "error", err)
	}

	l.logger.Info("ledger merged",
		"path", l.Path,
		"new", len(records),
		"existing", len(existing),
		"columns", len(cols),
	)
	return cols, nil
}

// writeCSV writes header and rows to a temp file beside path and renames it
// into place, so readers never observe a half-written file.
func writeCSV(path string, header Schema, rows func(*csv.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()
	defer os.Remove(tmpPath)

	w := newWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := rows(w); err != nil {
		f.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

func newWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true // RFC 4180
	return cw
}

// BootstrapWriter streams the first full crawl into a new corpus. The header
// is fixed by the first non-empty Append and reused for every later page.
type BootstrapWriter struct {
	ledger *Ledger
	file   *os.File
	w      *csv.Writer
	schema Schema
	rows   int
}

// Bootstrap starts a streaming write of a new corpus.
func (l *Ledger) Bootstrap() *BootstrapWriter {
	return &BootstrapWriter{ledger: l}
}

// Append writes one page of records. Columns outside the fixed header are
// dropped; header columns a record lacks are written as NotFound.
func (b *BootstrapWriter) Append(records []*types.Record) error {
	if len(records) == 0 {
		return nil
	}

	if b.file == nil {
		var cols Schema
		for _, rec := range records {
			cols = cols.Union(rec.Keys())
		}

		if err := os.MkdirAll(filepath.Dir(b.ledger.Path), 0o755); err != nil {
			return &types.LedgerError{Path: b.ledger.Path, Op: "create", Err: err}
		}
		f, err := os.Create(b.ledger.Path)
		if err != nil {
			return &types.LedgerError{Path: b.ledger.Path, Op: "create", Err: err}
		}
		b.file = f
		b.w = newWriter(f)
		b.schema = cols

		if err := b.w.Write(cols); err != nil {
			return &types.LedgerError{Path: b.ledger.Path, Op: "write", Err: err}
		}
	}

	for _, rec := range records {
		if err := b.w.Write(rec.Row(b.schema)); err != nil {
			return &types.LedgerError{Path: b.ledger.Path, Op: "write", Err: err}
		}
	}
	b.w.Flush()
	if err := b.w.Error(); err != nil {
		return &types.LedgerError{Path: b.ledger.Path, Op: "write", Err: err}
	}

	b.rows += len(records)
	return nil
}

// Schema returns the header in use, nil before the first write.
func (b *BootstrapWriter) Schema() Schema {
	return b.schema
}

// Rows returns the number of rows written so far.
func (b *BootstrapWriter) Rows() int {
	return b.rows
}

// Close finishes the corpus and persists its schema.
func (b *BootstrapWriter) Close() error {
	if b.file == nil {
		return nil
	}
	b.w.Flush()
	werr := b.w.Error()
	cerr := b.file.Close()
	b.file = nil
	if err := errors.Join(werr, cerr); err != nil {
		return &types.LedgerError{Path: b.ledger.Path, Op: "close", Err: err}
	}

	if err := SaveSchema(SchemaPath(b.ledger.Path), b.schema, b.ledger.cycle); err != nil {
		b.ledger.logger.Warn("schema sidecar not saved", "error", err)
	}
	b.ledger.logger.Info("bootstrap ledger written", "path", b.ledger.Path, "records", b.rows, "columns", len(b.schema))
	return nil
}
