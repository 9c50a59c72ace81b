package sinks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/review-scraper/internal/progress"
)

// Counts is a point-in-time view of run progress.
type Counts struct {
	RunID            string    `json:"run_id,omitempty"`
	Running          bool      `json:"running"`
	StartedAt        time.Time `json:"started_at,omitempty"`
	TargetsEnqueued  int64     `json:"targets_enqueued"`
	TargetsFetched   int64     `json:"targets_fetched"`
	TargetsFailed    int64     `json:"targets_failed"`
	TargetsSkipped   int64     `json:"targets_skipped"`
	FetchRetries     int64     `json:"fetch_retries"`
	RecordsExtracted int64     `json:"records_extracted"`
	RecordsAdded     int64     `json:"records_added"`
}

// CounterSink keeps running totals that the status API serves.
type CounterSink struct {
	enqueued  atomic.Int64
	fetched   atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	retries   atomic.Int64
	extracted atomic.Int64
	added     atomic.Int64

	mu        sync.RWMutex
	runID     string
	running   bool
	startedAt time.Time
}

// NewCounterSink returns an empty CounterSink.
func NewCounterSink() *CounterSink {
	return &CounterSink{}
}

// Consume folds the batch into the totals.
func (s *CounterSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.mu.Lock()
			s.runID = evt.RunID.String()
			s.running = true
			s.startedAt = evt.TS
			s.mu.Unlock()
		case progress.StageRunDone:
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		case progress.StageTargetEnqueued:
			s.enqueued.Add(1)
		case progress.StageFetchDone:
			s.fetched.Add(1)
		case progress.StageFetchRetry:
			s.retries.Add(1)
		case progress.StageTargetFailed:
			s.failed.Add(1)
		case progress.StagePageSkipped:
			s.skipped.Add(1)
		case progress.StageRecordsExtracted:
			s.extracted.Add(int64(evt.Count))
		case progress.StageRecordAdded:
			s.added.Add(1)
		}
	}
	return nil
}

// Snapshot returns the current totals.
func (s *CounterSink) Snapshot() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{
		RunID:            s.runID,
		Running:          s.running,
		StartedAt:        s.startedAt,
		TargetsEnqueued:  s.enqueued.Load(),
		TargetsFetched:   s.fetched.Load(),
		TargetsFailed:    s.failed.Load(),
		TargetsSkipped:   s.skipped.Load(),
		FetchRetries:     s.retries.Load(),
		RecordsExtracted: s.extracted.Load(),
		RecordsAdded:     s.added.Load(),
	}
}

// Close implements progress.Sink; it performs no action.
func (s *CounterSink) Close(context.Context) error {
	return nil
}
