package sinks

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-scraper/internal/progress"
)

func TestBarSinkTracksTargets(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	sink := NewBarSink(&out)
	runID := uuid.New()
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageTargetEnqueued, Host: "a.com"},
		{RunID: runID, TS: now, Stage: progress.StageTargetEnqueued, Host: "a.com"},
		{RunID: runID, TS: now, Stage: progress.StageTargetEnqueued, Host: "a.com"},
		{RunID: runID, TS: now, Stage: progress.StageFetchDone, Host: "a.com", StatusClass: progress.Status2xx},
		{RunID: runID, TS: now, Stage: progress.StagePageSkipped, Host: "a.com", Reason: "robots"},
		// parse skips follow a FETCH_DONE for the same target
		{RunID: runID, TS: now, Stage: progress.StagePageSkipped, Host: "a.com", Reason: "parse"},
		{RunID: runID, TS: now, Stage: progress.StageRecordAdded, Host: "a.com"},
	}))

	require.Equal(t, int64(3), sink.total)
	require.Equal(t, int64(2), sink.targets.Value())
	require.Equal(t, int64(1), sink.records.Value())
	require.NoError(t, sink.Close(context.Background()))
}
