package dataset

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-scraper/internal/clock"
	"github.com/JakeFAU/review-scraper/internal/hash/sha256"
	"github.com/JakeFAU/review-scraper/internal/scraper"
)

// Fixed leading columns of every output table.
const (
	ColumnTarget    = "target"
	ColumnItemIndex = "item_index"
	// RawSuffix names the side column holding the source text of an unparsed value.
	RawSuffix = "_raw"
)

// Config controls dedup and output shape.
type Config struct {
	// RunID is carried on flush notices.
	RunID string
	// Fields are the data columns, in output order.
	Fields []string
	// KeyFields identify duplicates together with the target. When empty the
	// record index is used, so only re-adding the same record is a duplicate.
	KeyFields []string
	// RawFields are typed (date or number) fields that get a trailing
	// "<field>_raw" column. When such a value is unparsed its typed cell is
	// left empty and the source text goes to the raw column.
	RawFields []string
	Hasher    scraper.Hasher
	Clock     scraper.Clock
	Notifier  Notifier
	Logger    *zap.Logger
}

// Dataset is an append-only, deduplicated collection of normalized records.
// It is safe for concurrent use.
type Dataset struct {
	cfg     Config
	columns []string
	raw     map[string]bool
	logger  *zap.Logger

	mu      sync.RWMutex
	records []scraper.NormalizedRecord
	keys    map[string]struct{}

	flushMu sync.Mutex
}

// New returns an empty Dataset.
func New(cfg Config) (*Dataset, error) {
	if len(cfg.Fields) == 0 {
		return nil, errors.New("dataset requires at least one field column")
	}
	for _, k := range cfg.KeyFields {
		if !slices.Contains(cfg.Fields, k) {
			return nil, fmt.Errorf("key field %q is not an output column", k)
		}
	}
	raw := make(map[string]bool, len(cfg.RawFields))
	for _, f := range cfg.RawFields {
		if !slices.Contains(cfg.Fields, f) {
			return nil, fmt.Errorf("raw field %q is not an output column", f)
		}
		raw[f] = true
	}
	if cfg.Hasher == nil {
		cfg.Hasher = sha256.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	columns := append([]string{ColumnTarget, ColumnItemIndex}, cfg.Fields...)
	for _, f := range cfg.RawFields {
		columns = append(columns, f+RawSuffix)
	}
	return &Dataset{
		cfg:     cfg,
		columns: columns,
		raw:     raw,
		logger:  logger,
		keys:    make(map[string]struct{}),
	}, nil
}

// Add appends rec unless a record with the same key is already present. It
// reports whether rec was added.
func (d *Dataset) Add(rec scraper.NormalizedRecord) bool {
	key := d.key(rec)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.keys[key]; dup {
		return false
	}
	d.keys[key] = struct{}{}
	d.records = append(d.records, rec)
	return true
}

func (d *Dataset) key(rec scraper.NormalizedRecord) string {
	parts := []string{rec.Target.ID}
	if len(d.cfg.KeyFields) == 0 {
		parts = append(parts, strconv.Itoa(rec.Index))
	} else {
		identified := true
		for _, name := range d.cfg.KeyFields {
			v := rec.Field(name)
			if v.IsAbsent() || (v.Unparsed && v.Raw == "") {
				identified = false
			}
			parts = append(parts, string(v.Kind), v.String())
		}
		// A record missing part of its identifier falls back to its position.
		if !identified {
			parts = append(parts, "index", strconv.Itoa(rec.Index))
		}
	}
	material := sha256.Key(parts...)
	sum, err := d.cfg.Hasher.Hash(material)
	if err != nil {
		d.logger.Warn("dedup hash failed; keying on raw material", zap.Error(err))
		return string(material)
	}
	return sum
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Columns returns the output header.
func (d *Dataset) Columns() []string {
	return slices.Clone(d.columns)
}

// Snapshot returns a copy of the records in insertion order.
func (d *Dataset) Snapshot() []scraper.NormalizedRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.records)
}

// Rows renders the snapshot as table rows aligned with Columns.
func (d *Dataset) Rows() [][]string {
	snap := d.Snapshot()
	rows := make([][]string, 0, len(snap))
	for _, rec := range snap {
		row := make([]string, 0, len(d.columns))
		row = append(row, rec.Target.ID, strconv.Itoa(rec.Index))
		for _, name := range d.cfg.Fields {
			v := rec.Field(name)
			if d.raw[name] && v.Unparsed {
				row = append(row, "")
				continue
			}
			row = append(row, v.String())
		}
		for _, name := range d.cfg.RawFields {
			v := rec.Field(name)
			if v.Unparsed {
				row = append(row, v.Raw)
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Flush writes the current snapshot to dest. Flushes are serialized; Add may
// proceed concurrently and later records land in the next flush.
func (d *Dataset) Flush(ctx context.Context, dest Destination) error {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	rows := d.Rows()
	w, err := dest.Open(ctx, d.Columns())
	if err != nil {
		return fmt.Errorf("open %s: %w", dest.Name(), err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if abortErr := w.Abort(context.WithoutCancel(ctx)); abortErr != nil {
			d.logger.Warn("abort flush failed", zap.String("destination", dest.Name()), zap.Error(abortErr))
		}
	}()

	for _, row := range rows {
		if err := w.WriteRow(ctx, row); err != nil {
			return fmt.Errorf("write %s: %w", dest.Name(), err)
		}
	}
	if err := w.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", dest.Name(), err)
	}
	committed = true

	d.logger.Info("dataset flushed", zap.String("destination", dest.Name()), zap.Int("rows", len(rows)))
	if d.cfg.Notifier != nil {
		notice := FlushNotice{
			RunID:       d.cfg.RunID,
			Destination: dest.Name(),
			Rows:        len(rows),
			FlushedAt:   d.cfg.Clock.Now(),
		}
		if err := d.cfg.Notifier.Notify(ctx, notice); err != nil {
			d.logger.Warn("flush notification failed", zap.String("destination", dest.Name()), zap.Error(err))
		}
	}
	return nil
}

// FlushAll flushes to every destination, continuing past failures.
func (d *Dataset) FlushAll(ctx context.Context, dests ...Destination) error {
	var errs []error
	for _, dest := range dests {
		if err := d.Flush(ctx, dest); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
