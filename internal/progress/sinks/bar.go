package sinks

import (
	"context"
	"io"
	"time"

	pretty "github.com/jedib0t/go-pretty/v6/progress"

	"github.com/JakeFAU/review-scraper/internal/progress"
)

// BarSink renders target and record progress as terminal progress bars.
type BarSink struct {
	writer  pretty.Writer
	targets *pretty.Tracker
	records *pretty.Tracker
	total   int64
	done    chan struct{}
}

// NewBarSink starts rendering to out. The records tracker has no total, so it
// renders as indeterminate.
func NewBarSink(out io.Writer) *BarSink {
	w := pretty.NewWriter()
	w.SetOutputWriter(out)
	w.SetAutoStop(true)
	w.SetTrackerLength(30)
	w.SetMessageLength(18)
	w.SetUpdateFrequency(200 * time.Millisecond)
	w.SetStyle(pretty.StyleDefault)
	w.Style().Visibility.ETA = true
	w.Style().Visibility.Value = true

	s := &BarSink{
		writer:  w,
		targets: &pretty.Tracker{Message: "targets", Units: pretty.UnitsDefault},
		records: &pretty.Tracker{Message: "records added", Units: pretty.UnitsDefault},
		done:    make(chan struct{}),
	}
	w.AppendTrackers([]*pretty.Tracker{s.targets, s.records})
	go func() {
		defer close(s.done)
		w.Render()
	}()
	return s
}

// Consume advances the trackers. The targets total grows as targets are enqueued.
func (s *BarSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageTargetEnqueued:
			s.total++
			s.targets.UpdateTotal(s.total)
		case progress.StageFetchDone, progress.StageTargetFailed:
			s.targets.Increment(1)
		case progress.StagePageSkipped:
			if evt.Reason != "parse" {
				s.targets.Increment(1)
			}
		case progress.StageRecordAdded:
			s.records.Increment(1)
		}
	}
	return nil
}

// Close marks the trackers done and waits for the renderer to exit or ctx to
// end. The writer auto-stops once every tracker is done; the records tracker
// has no total, so that only happens here.
func (s *BarSink) Close(ctx context.Context) error {
	s.targets.MarkAsDone()
	s.records.MarkAsDone()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
