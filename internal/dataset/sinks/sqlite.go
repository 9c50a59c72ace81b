package sinks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/review-scraper/internal/dataset"
)

// SQLite replaces a table in a SQLite database file on every flush. The drop,
// create and inserts share one transaction.
type SQLite struct {
	db    *sql.DB
	path  string
	table string
}

var _ dataset.Destination = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path, table string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if table == "" {
		table = "records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a single connection serializes writers on the file
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return &SQLite{db: db, path: path, table: table}, nil
}

// Name implements dataset.Destination.
func (s *SQLite) Name() string { return "sqlite:" + s.path + "#" + s.table }

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Open implements dataset.Destination.
func (s *SQLite) Open(ctx context.Context, columns []string) (dataset.Writer, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	table := quoteIdent(s.table)
	cols := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = quoteIdent(c)
		marks[i] = "?"
	}
	stmts := []string{
		"DROP TABLE IF EXISTS " + table,
		fmt.Sprintf("CREATE TABLE %s (%s TEXT)", table, strings.Join(cols, " TEXT, ")),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("prepare table: %w", err)
		}
	}
	insert, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return &sqlWriter{tx: tx, insert: insert, width: len(columns)}, nil
}

type sqlWriter struct {
	tx     *sql.Tx
	insert *sql.Stmt
	width  int
}

func (w *sqlWriter) WriteRow(ctx context.Context, row []string) error {
	if len(row) != w.width {
		return fmt.Errorf("row has %d cells, header has %d", len(row), w.width)
	}
	args := make([]any, len(row))
	for i, v := range row {
		args[i] = v
	}
	if _, err := w.insert.ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	return nil
}

func (w *sqlWriter) Commit(context.Context) error {
	_ = w.insert.Close()
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (w *sqlWriter) Abort(context.Context) error {
	_ = w.insert.Close()
	if err := w.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
