package sinks

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/review-scraper/internal/dataset"
)

// CSV writes snapshots to a local file. Each flush writes a temporary file in
// the same directory and renames it over the target, so readers never see a
// partial table.
type CSV struct {
	path string
}

var _ dataset.Destination = (*CSV)(nil)

// NewCSV creates the parent directory of path if needed.
func NewCSV(path string) (*CSV, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("csv path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create output dir for %s: %w", path, err)
	}
	return &CSV{path: path}, nil
}

// Name implements dataset.Destination.
func (c *CSV) Name() string { return "csv:" + c.path }

// Open implements dataset.Destination.
func (c *CSV) Open(_ context.Context, columns []string) (dataset.Writer, error) {
	dir, base := filepath.Split(c.path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	w := &fileWriter{file: f, target: c.path, rows: newRowEncoder(f)}
	if err := w.rows.header(columns); err != nil {
		_ = w.Abort(context.Background())
		return nil, err
	}
	return w, nil
}

type fileWriter struct {
	file   *os.File
	target string
	rows   *rowEncoder
	closed bool
}

func (w *fileWriter) WriteRow(_ context.Context, row []string) error {
	return w.rows.row(row)
}

func (w *fileWriter) Commit(context.Context) error {
	if err := w.rows.flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", w.file.Name(), err)
	}
	w.closed = true
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", w.file.Name(), err)
	}
	if err := os.Rename(w.file.Name(), w.target); err != nil {
		return fmt.Errorf("rename into %s: %w", w.target, err)
	}
	return nil
}

func (w *fileWriter) Abort(context.Context) error {
	if !w.closed {
		w.closed = true
		_ = w.file.Close()
	}
	if err := os.Remove(w.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove temp file: %w", err)
	}
	return nil
}

// rowEncoder writes RFC 4180 rows and tracks the column count.
type rowEncoder struct {
	w     *csv.Writer
	width int
}

func newRowEncoder(out io.Writer) *rowEncoder {
	return &rowEncoder{w: csv.NewWriter(out)}
}

func (e *rowEncoder) header(columns []string) error {
	e.width = len(columns)
	if err := e.w.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func (e *rowEncoder) row(row []string) error {
	if len(row) != e.width {
		return fmt.Errorf("row has %d cells, header has %d", len(row), e.width)
	}
	if err := e.w.Write(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	return nil
}

func (e *rowEncoder) flush() error {
	e.w.Flush()
	if err := e.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
