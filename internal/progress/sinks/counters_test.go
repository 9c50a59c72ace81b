package sinks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-scraper/internal/progress"
)

func TestCounterSinkSnapshot(t *testing.T) {
	t.Parallel()

	sink := NewCounterSink()
	runID := uuid.New()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: start, Stage: progress.StageRunStart},
		{RunID: runID, TS: start, Stage: progress.StageTargetEnqueued, Host: "a.com"},
		{RunID: runID, TS: start, Stage: progress.StageTargetEnqueued, Host: "b.com"},
		{RunID: runID, TS: start, Stage: progress.StageFetchRetry, Host: "b.com"},
		{RunID: runID, TS: start, Stage: progress.StageTargetFailed, Host: "b.com"},
		{RunID: runID, TS: start, Stage: progress.StageFetchDone, Host: "a.com", StatusClass: progress.Status2xx},
		{RunID: runID, TS: start, Stage: progress.StageRecordsExtracted, Host: "a.com", Count: 3},
		{RunID: runID, TS: start, Stage: progress.StageRecordAdded, Host: "a.com"},
		{RunID: runID, TS: start, Stage: progress.StageRecordAdded, Host: "a.com"},
	}))

	got := sink.Snapshot()
	require.Equal(t, Counts{
		RunID:            runID.String(),
		Running:          true,
		StartedAt:        start,
		TargetsEnqueued:  2,
		TargetsFetched:   1,
		TargetsFailed:    1,
		FetchRetries:     1,
		RecordsExtracted: 3,
		RecordsAdded:     2,
	}, got)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: start.Add(time.Minute), Stage: progress.StageRunDone},
	}))
	require.False(t, sink.Snapshot().Running)
	require.NoError(t, sink.Close(context.Background()))
}

func TestCounterSinkConcurrentReaders(t *testing.T) {
	t.Parallel()

	sink := NewCounterSink()
	runID := uuid.New()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = sink.Snapshot()
			}
		}()
	}
	for range 100 {
		require.NoError(t, sink.Consume(context.Background(), []progress.Event{
			{RunID: runID, TS: time.Now(), Stage: progress.StageRecordAdded, Host: "a.com"},
		}))
	}
	wg.Wait()
	require.Equal(t, int64(100), sink.Snapshot().RecordsAdded)
}
