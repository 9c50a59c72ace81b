package sinks

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/review-scraper/internal/dataset"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type txBeginner interface {
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Postgres replaces a table on every flush: drop, create and a COPY of the
// snapshot rows run in one transaction.
type Postgres struct {
	pool  txBeginner
	table string
}

var _ dataset.Destination = (*Postgres)(nil)

// NewPostgres connects to dsn.
func NewPostgres(ctx context.Context, dsn, table string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	p, err := NewPostgresWithPool(pool, table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgresWithPool constructs a destination from an existing pool (primarily for testing).
func NewPostgresWithPool(pool txBeginner, table string) (*Postgres, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = "records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Postgres{pool: pool, table: table}, nil
}

// Name implements dataset.Destination.
func (p *Postgres) Name() string { return "postgres:" + p.table }

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Open implements dataset.Destination.
func (p *Postgres) Open(ctx context.Context, columns []string) (dataset.Writer, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	table := pgx.Identifier{p.table}.Sanitize()
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pgx.Identifier{c}.Sanitize() + " text"
	}
	stmts := []string{
		"DROP TABLE IF EXISTS " + table,
		fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", ")),
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("prepare table: %w", err)
		}
	}
	return &pgWriter{tx: tx, table: p.table, columns: columns}, nil
}

type pgWriter struct {
	tx      pgx.Tx
	table   string
	columns []string
	rows    [][]any
}

func (w *pgWriter) WriteRow(_ context.Context, row []string) error {
	if len(row) != len(w.columns) {
		return fmt.Errorf("row has %d cells, header has %d", len(row), len(w.columns))
	}
	vals := make([]any, len(row))
	for i, v := range row {
		vals[i] = v
	}
	w.rows = append(w.rows, vals)
	return nil
}

func (w *pgWriter) Commit(ctx context.Context) error {
	if len(w.rows) > 0 {
		n, err := w.tx.CopyFrom(ctx, pgx.Identifier{w.table}, w.columns, pgx.CopyFromRows(w.rows))
		if err != nil {
			return fmt.Errorf("copy rows: %w", err)
		}
		if n != int64(len(w.rows)) {
			return fmt.Errorf("copied %d of %d rows", n, len(w.rows))
		}
	}
	if err := w.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (w *pgWriter) Abort(ctx context.Context) error {
	if err := w.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
