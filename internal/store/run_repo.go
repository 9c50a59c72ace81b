package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunStatus mirrors the status column of the runs table.
type RunStatus string

// Run statuses persisted by a RunRepository.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunAborted RunStatus = "aborted"
)

// HostDelta is an increment to the per-host counters of one run.
type HostDelta struct {
	Fetched int64
	Failed  int64
	Skipped int64
	Records int64
	Bytes   int64
}

// IsZero reports whether applying d would change nothing.
func (d HostDelta) IsZero() bool {
	return d == HostDelta{}
}

// Add returns the field-wise sum of d and o.
func (d HostDelta) Add(o HostDelta) HostDelta {
	return HostDelta{
		Fetched: d.Fetched + o.Fetched,
		Failed:  d.Failed + o.Failed,
		Skipped: d.Skipped + o.Skipped,
		Records: d.Records + o.Records,
		Bytes:   d.Bytes + o.Bytes,
	}
}

// RunRepository persists incremental run progress.
type RunRepository interface {
	// StartRun records a run as running. Repeated calls are no-ops.
	StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// FinishRun marks the run finished with status and an optional reason.
	FinishRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, reason *string) error
	// AddHostStats applies delta to the (run, host) counters.
	AddHostStats(ctx context.Context, runID uuid.UUID, host string, delta HostDelta, at time.Time) error
}
