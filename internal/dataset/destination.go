package dataset

import (
	"context"
	"time"
)

// Destination is a durable target for dataset snapshots.
type Destination interface {
	// Name identifies the destination in logs and notifications.
	Name() string
	// Open acquires the output resource for one snapshot with the given header.
	Open(ctx context.Context, columns []string) (Writer, error)
}

// Writer receives one snapshot. Exactly one of Commit or Abort is called.
type Writer interface {
	WriteRow(ctx context.Context, row []string) error
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// FlushNotice describes a committed flush.
type FlushNotice struct {
	RunID       string    `json:"run_id"`
	Destination string    `json:"destination"`
	Rows        int       `json:"rows"`
	FlushedAt   time.Time `json:"flushed_at"`
}

// Notifier is told about every committed flush.
type Notifier interface {
	Notify(ctx context.Context, notice FlushNotice) error
}
