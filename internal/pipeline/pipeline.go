package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-scraper/internal/clock"
	"github.com/JakeFAU/review-scraper/internal/dataset"
	"github.com/JakeFAU/review-scraper/internal/extract"
	"github.com/JakeFAU/review-scraper/internal/frontier"
	"github.com/JakeFAU/review-scraper/internal/normalize"
	"github.com/JakeFAU/review-scraper/internal/policy"
	"github.com/JakeFAU/review-scraper/internal/progress"
	"github.com/JakeFAU/review-scraper/internal/rules"
	"github.com/JakeFAU/review-scraper/internal/scraper"
)

// errInterrupted marks a target abandoned because the run ended while it
// waited for pacing or backoff.
var errInterrupted = errors.New("interrupted")

const (
	defaultWorkers      = 4
	defaultFetchTimeout = 45 * time.Second
	defaultFlushTimeout = 2 * time.Minute
)

// Fetcher retrieves one target in one attempt.
type Fetcher interface {
	Fetch(ctx context.Context, target scraper.Target, identity scraper.Identity, wait scraper.WaitCondition) (scraper.FetchResult, error)
}

// Policy decides admission, pacing, identity and retries.
type Policy interface {
	Allowed(ctx context.Context, target scraper.Target) bool
	Authorize(target scraper.Target, now time.Time) policy.Decision
	Retry(attempt int, err error) policy.RetryDecision
}

// Emitter receives progress events. *progress.Hub satisfies it.
type Emitter interface {
	Emit(evt progress.Event)
}

// Config sizes the worker pool and bounds each fetch.
type Config struct {
	Workers int
	// FetchTimeout bounds one attempt. In-flight attempts outlive run
	// cancellation up to this limit so sessions are released cleanly.
	FetchTimeout time.Duration
	FlushTimeout time.Duration
}

// Deps are the collaborators of a run. Clock, Events, Sleep and Logger are optional.
type Deps struct {
	Rules        *rules.Config
	Frontier     *frontier.Frontier
	Policy       Policy
	Fetcher      Fetcher
	Extractor    *extract.Extractor
	Dataset      *dataset.Dataset
	Destinations []dataset.Destination
	Events       Emitter
	Clock        scraper.Clock
	// Sleep waits out pacing and backoff delays; policy.Pause by default.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *zap.Logger
}

// Pipeline executes runs. A Pipeline owns its frontier, so it runs once.
type Pipeline struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

type noopEmitter struct{}

func (noopEmitter) Emit(progress.Event) {}

// New validates deps and applies defaults.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Rules == nil:
		return nil, errors.New("rules are required")
	case deps.Frontier == nil:
		return nil, errors.New("frontier is required")
	case deps.Policy == nil:
		return nil, errors.New("policy is required")
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("extractor is required")
	case deps.Dataset == nil:
		return nil, errors.New("dataset is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = defaultFlushTimeout
	}
	if deps.Events == nil {
		deps.Events = noopEmitter{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Sleep == nil {
		deps.Sleep = policy.Pause
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps, log: deps.Logger}, nil
}

// counters are exact run totals; progress sinks only see a lossy stream.
type counters struct {
	enqueued  atomic.Int64
	fetched   atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	attempts  atomic.Int64
	extracted atomic.Int64
	added     atomic.Int64
}

func (c *counters) summary(runID uuid.UUID, dur time.Duration) scraper.Summary {
	return scraper.Summary{
		RunID:            runID.String(),
		TargetsEnqueued:  c.enqueued.Load(),
		TargetsFetched:   c.fetched.Load(),
		TargetsFailed:    c.failed.Load(),
		TargetsSkipped:   c.skipped.Load(),
		FetchAttempts:    c.attempts.Load(),
		RecordsExtracted: c.extracted.Load(),
		RecordsAdded:     c.added.Load(),
		Duration:         dur,
	}
}

// Run enqueues seeds, drains the frontier with the worker pool and flushes the
// dataset to every destination. The summary is always returned. The error is
// the fatal setup failure that aborted the run, the flush failure, or both.
func (p *Pipeline) Run(ctx context.Context, runID uuid.UUID, seeds []scraper.Target) (scraper.Summary, error) {
	start := p.deps.Clock.Now()
	p.emit(progress.Event{RunID: runID, TS: start, Stage: progress.StageRunStart})
	p.log.Info("run started",
		zap.Stringer("run_id", runID),
		zap.Int("seeds", len(seeds)),
		zap.Int("workers", p.cfg.Workers),
	)

	var c counters
	for _, target := range seeds {
		if !p.deps.Frontier.Enqueue(target) {
			p.log.Debug("duplicate seed ignored", zap.String("url", target.URL))
			continue
		}
		c.enqueued.Add(1)
		p.emit(p.targetEvent(runID, progress.StageTargetEnqueued, target))
	}
	// No worker discovers new targets, so the frontier is complete once seeded.
	p.deps.Frontier.Close()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	for i := range p.cfg.Workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(runCtx, cancel, runID, id, &c)
		}(i)
	}
	wg.Wait()

	var runErr error
	if cause := context.Cause(runCtx); errors.Is(cause, scraper.ErrFatalSetup) {
		runErr = cause
	}

	flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FlushTimeout)
	defer flushCancel()
	if err := p.deps.Dataset.FlushAll(flushCtx, p.deps.Destinations...); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("flush dataset: %w", err))
	}

	end := p.deps.Clock.Now()
	summary := c.summary(runID, end.Sub(start))
	done := progress.Event{RunID: runID, TS: end, Stage: progress.StageRunDone, Dur: max(summary.Duration, 0)}
	switch {
	case errors.Is(runErr, scraper.ErrFatalSetup):
		done.Reason = scraper.ErrorClass(runErr)
	case ctx.Err() != nil:
		done.Reason = "canceled"
	}
	p.emit(done)
	p.log.Info("run finished",
		zap.Stringer("run_id", runID),
		zap.Int64("enqueued", summary.TargetsEnqueued),
		zap.Int64("fetched", summary.TargetsFetched),
		zap.Int64("failed", summary.TargetsFailed),
		zap.Int64("skipped", summary.TargetsSkipped),
		zap.Int64("records_added", summary.RecordsAdded),
		zap.Duration("duration", summary.Duration),
		zap.Error(runErr),
	)
	return summary, runErr
}

func (p *Pipeline) work(ctx context.Context, abort context.CancelCauseFunc, runID uuid.UUID, id int, c *counters) {
	log := p.log.With(zap.Int("worker", id))
	for ctx.Err() == nil {
		target, ok := p.deps.Frontier.Dequeue(ctx)
		if !ok {
			return
		}
		if err := p.process(ctx, runID, target, c, log); err != nil {
			log.Error("aborting run", zap.String("url", target.URL), zap.Error(err))
			abort(err)
			return
		}
	}
}

// process carries one target to completion. It returns an error only for
// failures that must abort the run.
func (p *Pipeline) process(ctx context.Context, runID uuid.UUID, target scraper.Target, c *counters, log *zap.Logger) error {
	if !p.deps.Policy.Allowed(ctx, target) {
		c.skipped.Add(1)
		evt := p.targetEvent(runID, progress.StagePageSkipped, target)
		evt.Reason = "disallowed"
		p.emit(evt)
		log.Info("target not allowed; skipping", zap.String("url", target.URL))
		return nil
	}

	result, attempt, err := p.fetchWithRetry(ctx, runID, target, c, log)
	if err != nil {
		if errors.Is(err, scraper.ErrFatalSetup) {
			return err
		}
		if errors.Is(err, errInterrupted) {
			log.Debug("target abandoned", zap.String("url", target.URL), zap.Error(err))
			return nil
		}
		c.failed.Add(1)
		evt := p.targetEvent(runID, progress.StageTargetFailed, target)
		evt.Attempt = attempt
		evt.Reason = scraper.ErrorClass(err)
		p.emit(evt)
		log.Error("target permanently failed",
			zap.String("url", target.URL),
			zap.String("host", target.Host()),
			zap.Int("attempts", attempt),
			zap.String("class", scraper.ErrorClass(err)),
			zap.Error(err),
		)
		return nil
	}

	c.fetched.Add(1)
	done := p.targetEvent(runID, progress.StageFetchDone, target)
	done.Attempt = attempt
	done.StatusClass = progress.ClassifyStatus(result.StatusCode)
	done.Bytes = int64(len(result.Content))
	done.Dur = result.Duration
	p.emit(done)

	records, err := p.deps.Extractor.Extract(result, p.deps.Rules.Items)
	if err != nil {
		c.skipped.Add(1)
		evt := p.targetEvent(runID, progress.StagePageSkipped, target)
		evt.Reason = scraper.ErrorClass(err)
		p.emit(evt)
		log.Warn("page skipped", zap.String("url", target.URL), zap.Error(err))
		return nil
	}
	c.extracted.Add(int64(len(records)))
	extracted := p.targetEvent(runID, progress.StageRecordsExtracted, target)
	extracted.Count = len(records)
	p.emit(extracted)

	for _, rec := range records {
		if !p.deps.Dataset.Add(normalize.Normalize(rec, p.deps.Rules.Fields)) {
			continue
		}
		c.added.Add(1)
		p.emit(p.targetEvent(runID, progress.StageRecordAdded, target))
	}
	return nil
}

// fetchWithRetry runs attempts until one succeeds, the policy gives up, or ctx
// ends. It returns the last attempt number.
func (p *Pipeline) fetchWithRetry(
	ctx context.Context,
	runID uuid.UUID,
	target scraper.Target,
	c *counters,
	log *zap.Logger,
) (scraper.FetchResult, int, error) {
	for attempt := 1; ; attempt++ {
		decision := p.deps.Policy.Authorize(target, p.deps.Clock.Now())
		if err := p.deps.Sleep(ctx, decision.Wait); err != nil {
			return scraper.FetchResult{}, attempt - 1, fmt.Errorf("%w: %w", errInterrupted, err)
		}
		if err := ctx.Err(); err != nil {
			return scraper.FetchResult{}, attempt - 1, fmt.Errorf("%w: %w", errInterrupted, err)
		}

		c.attempts.Add(1)
		start := p.targetEvent(runID, progress.StageFetchStart, target)
		start.Attempt = attempt
		p.emit(start)

		result, err := p.fetchOnce(ctx, target, decision.Identity)
		if err == nil {
			return result, attempt, nil
		}
		if errors.Is(err, scraper.ErrFatalSetup) {
			return scraper.FetchResult{}, attempt, err
		}
		retry := p.deps.Policy.Retry(attempt, err)
		if !retry.Retry {
			return scraper.FetchResult{}, attempt, err
		}

		evt := p.targetEvent(runID, progress.StageFetchRetry, target)
		evt.Attempt = attempt
		evt.Reason = scraper.ErrorClass(err)
		evt.Dur = retry.Delay
		p.emit(evt)
		log.Warn("fetch attempt failed; retrying",
			zap.String("url", target.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", retry.Delay),
			zap.Error(err),
		)
		if err := p.deps.Sleep(ctx, retry.Delay); err != nil {
			return scraper.FetchResult{}, attempt, fmt.Errorf("%w: %w", errInterrupted, err)
		}
	}
}

// fetchOnce detaches the attempt from run cancellation; FetchTimeout still bounds it.
func (p *Pipeline) fetchOnce(ctx context.Context, target scraper.Target, identity scraper.Identity) (scraper.FetchResult, error) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FetchTimeout)
	defer cancel()
	result, err := p.deps.Fetcher.Fetch(fetchCtx, target, identity, scraper.WaitCondition{})
	if err != nil {
		return scraper.FetchResult{}, fmt.Errorf("attempt failed: %w", err)
	}
	return result, nil
}

func (p *Pipeline) targetEvent(runID uuid.UUID, stage progress.Stage, target scraper.Target) progress.Event {
	return progress.Event{
		RunID: runID,
		TS:    p.deps.Clock.Now(),
		Stage: stage,
		Host:  target.Host(),
		URL:   target.URL,
	}
}

func (p *Pipeline) emit(evt progress.Event) {
	p.deps.Events.Emit(evt)
}
