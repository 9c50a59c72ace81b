package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-scraper/internal/clock"
	"github.com/JakeFAU/review-scraper/internal/scraper"
)

// Config controls readiness and block detection for every fetch.
type Config struct {
	// DefaultWait applies when neither the caller nor the target sets one.
	DefaultWait scraper.WaitCondition
	Detector    *BlockDetector
	Clock       scraper.Clock
	// LoadMore expands the page after the wait condition on sessions that
	// support interaction.
	LoadMore scraper.LoadMore
}

// Fetcher retrieves page content through short-lived browser sessions.
type Fetcher struct {
	browser  scraper.Browser
	wait     scraper.WaitCondition
	detector *BlockDetector
	loadMore scraper.LoadMore
	clock    scraper.Clock
	logger   *zap.Logger
}

// New wires a browser into a Fetcher.
func New(browser scraper.Browser, cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if browser == nil {
		return nil, errors.New("browser is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Detector == nil {
		cfg.Detector = NewBlockDetector(nil, nil, nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.DefaultWait.IsZero() {
		cfg.DefaultWait = scraper.WaitCondition{Kind: scraper.WaitNone}
	}
	return &Fetcher{
		browser:  browser,
		wait:     cfg.DefaultWait,
		detector: cfg.Detector,
		loadMore: cfg.LoadMore,
		clock:    cfg.Clock,
		logger:   logger,
	}, nil
}

// Fetch runs one attempt against target. The wait argument overrides the
// target's own condition, which overrides the configured default. Errors are
// classified with the scraper error constructors.
func (f *Fetcher) Fetch(
	ctx context.Context,
	target scraper.Target,
	identity scraper.Identity,
	wait scraper.WaitCondition,
) (scraper.FetchResult, error) {
	start := f.clock.Now()
	session, err := f.browser.NewSession(ctx, identity)
	if err != nil {
		if errors.Is(err, scraper.ErrFatalSetup) {
			return scraper.FetchResult{}, err
		}
		return scraper.FetchResult{}, scraper.NewNetworkError(target.URL, fmt.Errorf("open session: %w", err))
	}
	defer func() {
		if qerr := session.Quit(); qerr != nil {
			f.logger.Warn("session quit failed", zap.String("url", target.URL), zap.Error(qerr))
		}
	}()

	status, err := session.Navigate(ctx, target.URL, target.Headers)
	if err != nil {
		return scraper.FetchResult{}, scraper.NewNetworkError(target.URL, err)
	}
	if sig := f.detector.Status(status); sig != "" {
		return scraper.FetchResult{}, scraper.NewBlockedError(target.URL, sig)
	}
	if status >= http.StatusInternalServerError {
		return scraper.FetchResult{}, scraper.NewNetworkError(target.URL, fmt.Errorf("server returned %d", status))
	}

	cond := f.resolveWait(target, wait)
	if err := session.WaitFor(ctx, cond); err != nil {
		// A challenge page never satisfies the selector; report it as a block.
		if content, _, cerr := session.PageContent(ctx); cerr == nil {
			if sig := f.detector.Content([]byte(content)); sig != "" {
				return scraper.FetchResult{}, scraper.NewBlockedError(target.URL, sig)
			}
		}
		return scraper.FetchResult{}, scraper.NewRenderError(target.URL, fmt.Errorf("wait %s: %w", cond.Kind, err))
	}
	f.expand(ctx, session, target)

	content, finalURL, err := session.PageContent(ctx)
	if err != nil {
		return scraper.FetchResult{}, scraper.NewRenderError(target.URL, fmt.Errorf("read content: %w", err))
	}
	body := []byte(content)
	if sig := f.detector.Content(body); sig != "" {
		return scraper.FetchResult{}, scraper.NewBlockedError(target.URL, sig)
	}
	if finalURL == "" {
		finalURL = target.URL
	}
	now := f.clock.Now()
	return scraper.FetchResult{
		Target:     target,
		Content:    body,
		StatusCode: status,
		FinalURL:   finalURL,
		FetchedAt:  now,
		Duration:   max(now.Sub(start), time.Duration(0)),
		Identity:   identity,
	}, nil
}

func (f *Fetcher) resolveWait(target scraper.Target, wait scraper.WaitCondition) scraper.WaitCondition {
	switch {
	case !wait.IsZero():
		return wait
	case !target.Wait.IsZero():
		return target.Wait
	default:
		return f.wait
	}
}
