package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-scraper/internal/progress"
	"github.com/JakeFAU/review-scraper/internal/store"
)

// StoreSink persists progress via a store.RunRepository. Host counters are
// collapsed per batch to reduce write amplification.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume starts runs, applies host deltas and then finishes runs, in that
// order, so a RUN_DONE in the same batch lands after its final counters.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	stats := make(map[hostKey]*hostDelta)
	var finished []progress.Event

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, evt.RunID, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageRunDone:
			finished = append(finished, evt)
		default:
			if d, ok := deltaFor(evt); ok {
				s.accumulate(stats, evt, d)
			}
		}
	}

	for key, delta := range stats {
		if err := s.repo.AddHostStats(ctx, key.runID, key.host, delta.HostDelta, delta.at); err != nil {
			return fmt.Errorf("add host stats: %w", err)
		}
	}

	for _, evt := range finished {
		status := store.RunSuccess
		var reason *string
		if evt.Reason != "" {
			status = store.RunAborted
			r := evt.Reason
			reason = &r
		}
		if err := s.repo.FinishRun(ctx, evt.RunID, evt.TS, status, reason); err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
	}
	return nil
}

func deltaFor(evt progress.Event) (store.HostDelta, bool) {
	switch evt.Stage {
	case progress.StageFetchDone:
		return store.HostDelta{Fetched: 1, Bytes: evt.Bytes}, true
	case progress.StageTargetFailed:
		return store.HostDelta{Failed: 1}, true
	case progress.StagePageSkipped:
		return store.HostDelta{Skipped: 1}, true
	case progress.StageRecordAdded:
		return store.HostDelta{Records: 1}, true
	default:
		return store.HostDelta{}, false
	}
}

func (s *StoreSink) accumulate(stats map[hostKey]*hostDelta, evt progress.Event, d store.HostDelta) {
	if evt.Host == "" {
		return
	}
	key := hostKey{runID: evt.RunID, host: evt.Host}
	stat := stats[key]
	if stat == nil {
		stat = &hostDelta{}
		stats[key] = stat
	}
	stat.HostDelta = stat.Add(d)
	if evt.TS.After(stat.at) {
		stat.at = evt.TS
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type hostKey struct {
	runID uuid.UUID
	host  string
}

type hostDelta struct {
	store.HostDelta
	at time.Time
}
