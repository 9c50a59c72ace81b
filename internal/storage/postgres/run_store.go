// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/review-scraper/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RunStoreConfig controls the Postgres connection pool used for run progress.
type RunStoreConfig struct {
	DSN             string
	RunsTable       string
	HostsTable      string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RunStore implements store.RunRepository on two tables: one row per run and
// one row per (run, host).
type RunStore struct {
	pool  execCloser
	runs  string
	hosts string
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore connects to Postgres and creates the tables when missing.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("progress.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewRunStoreWithPool(pool, cfg.RunsTable, cfg.HostsTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool execCloser, runsTable, hostsTable string) (*RunStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if runsTable == "" {
		runsTable = "scrape_runs"
	}
	if hostsTable == "" {
		hostsTable = "scrape_host_stats"
	}
	for _, name := range []string{runsTable, hostsTable} {
		if !validTableName.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}
	return &RunStore{pool: pool, runs: runsTable, hosts: hostsTable}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the run and host tables if they do not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	runs := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id uuid PRIMARY KEY,
	started_at timestamptz NOT NULL,
	finished_at timestamptz,
	status text NOT NULL,
	reason text
)`, s.runs)
	hosts := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id uuid NOT NULL,
	host text NOT NULL,
	last_update timestamptz NOT NULL,
	fetched bigint NOT NULL DEFAULT 0,
	failed bigint NOT NULL DEFAULT 0,
	skipped bigint NOT NULL DEFAULT 0,
	records bigint NOT NULL DEFAULT 0,
	bytes_total bigint NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, host)
)`, s.hosts)
	for _, stmt := range []string{runs, hosts} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure progress schema: %w", err)
		}
	}
	return nil
}

// StartRun inserts the run row; a second start for the same run is ignored.
func (s *RunStore) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, started_at, status)
VALUES ($1, $2, $3)
ON CONFLICT (run_id) DO NOTHING`, s.runs)
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("insert run start: %w", err)
	}
	return nil
}

// FinishRun marks the run finished.
func (s *RunStore) FinishRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	reason *string,
) error {
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = $1, status = $2, reason = $3
WHERE run_id = $4`, s.runs)
	if _, err := s.pool.Exec(ctx, query, finishedAt, string(status), reason, runID); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// AddHostStats upserts the host row, adding delta to the stored counters.
func (s *RunStore) AddHostStats(
	ctx context.Context,
	runID uuid.UUID,
	host string,
	delta store.HostDelta,
	at time.Time,
) error {
	if host == "" {
		return errors.New("host is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (run_id, host, last_update, fetched, failed, skipped, records, bytes_total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (run_id, host) DO UPDATE SET
	last_update = GREATEST(%[1]s.last_update, EXCLUDED.last_update),
	fetched = %[1]s.fetched + EXCLUDED.fetched,
	failed = %[1]s.failed + EXCLUDED.failed,
	skipped = %[1]s.skipped + EXCLUDED.skipped,
	records = %[1]s.records + EXCLUDED.records,
	bytes_total = %[1]s.bytes_total + EXCLUDED.bytes_total`, s.hosts)
	_, err := s.pool.Exec(
		ctx,
		query,
		runID,
		host,
		at,
		delta.Fetched,
		delta.Failed,
		delta.Skipped,
		delta.Records,
		delta.Bytes,
	)
	if err != nil {
		return fmt.Errorf("upsert host stats: %w", err)
	}
	return nil
}
