package dataset

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Schedule runs periodic flushes until Stop is called.
type Schedule struct {
	cron *cron.Cron
}

// FlushEvery flushes to dests on the cron schedule (standard five-field syntax or
// descriptors such as "@every 30s"). Overlapping ticks are skipped. Flush
// errors are logged; the schedule keeps running.
func (d *Dataset) FlushEvery(ctx context.Context, schedule string, dests ...Destination) (*Schedule, error) {
	logger := cronLogger{log: d.logger.Named("cron").Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	_, err := c.AddFunc(schedule, func() {
		if ctx.Err() != nil {
			return
		}
		if err := d.FlushAll(ctx, dests...); err != nil {
			d.logger.Warn("scheduled flush failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("parse flush schedule %q: %w", schedule, err)
	}
	c.Start()
	return &Schedule{cron: c}, nil
}

// Stop halts the schedule and waits for a running flush to finish or ctx to end.
func (s *Schedule) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop flush schedule: %w", ctx.Err())
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
