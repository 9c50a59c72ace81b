package fetcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-scraper/internal/scraper"
)

// Defaults for LoadMore fields left at zero.
const (
	DefaultLoadMoreClicks = 5
	DefaultLoadMoreSettle = 2 * time.Second
	settlePoll            = 250 * time.Millisecond
)

// expansion is the outcome of one load-more loop.
type expansion struct {
	clicks int
	items  int
	// stop names why the loop ended.
	stop string
}

// expand runs the configured load-more loop when the session supports it.
// Expansion failures are logged and the page is read as it stands.
func (f *Fetcher) expand(ctx context.Context, session scraper.Session, target scraper.Target) {
	if f.loadMore.IsZero() {
		return
	}
	ex, ok := session.(scraper.Expander)
	if !ok {
		return
	}
	res, err := loadMore(ctx, ex, f.loadMore)
	log := f.logger.With(
		zap.String("url", target.URL),
		zap.Int("clicks", res.clicks),
		zap.Int("items", res.items),
	)
	if err != nil {
		log.Warn("load more stopped early", zap.Error(err))
		return
	}
	log.Debug("load more finished", zap.String("stop", res.stop))
}

func loadMore(ctx context.Context, ex scraper.Expander, rule scraper.LoadMore) (expansion, error) {
	if rule.MaxClicks <= 0 {
		rule.MaxClicks = DefaultLoadMoreClicks
	}
	if rule.Settle <= 0 {
		rule.Settle = DefaultLoadMoreSettle
	}
	var res expansion
	count := func() (int, error) {
		if rule.ItemSelector == "" {
			return 0, nil
		}
		n, err := ex.CountMatches(ctx, rule.ItemSelector)
		if err != nil {
			return 0, fmt.Errorf("count items: %w", err)
		}
		return n, nil
	}

	items, err := count()
	if err != nil {
		return res, err
	}
	res.items = items
	for {
		if res.clicks >= rule.MaxClicks {
			res.stop = "max_clicks"
			return res, nil
		}
		if rule.MaxItems > 0 && res.items >= rule.MaxItems {
			res.stop = "max_items"
			return res, nil
		}
		clicked, err := ex.ClickFirst(ctx, rule.Selector)
		if err != nil {
			return res, fmt.Errorf("click %q: %w", rule.Selector, err)
		}
		if !clicked {
			res.stop = "no_button"
			return res, nil
		}
		res.clicks++

		grown, err := waitForGrowth(ctx, rule, res.items, count)
		if err != nil {
			return res, err
		}
		if rule.ItemSelector == "" {
			continue
		}
		if grown <= res.items {
			res.stop = "no_growth"
			return res, nil
		}
		res.items = grown
	}
}

// waitForGrowth polls the item count until it exceeds before or Settle passes.
// Without an item selector it just waits Settle.
func waitForGrowth(ctx context.Context, rule scraper.LoadMore, before int, count func() (int, error)) (int, error) {
	deadline := time.Now().Add(rule.Settle)
	poll := min(settlePoll, rule.Settle)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return count()
		}
		timer := time.NewTimer(min(poll, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return before, ctx.Err()
		case <-timer.C:
		}
		if rule.ItemSelector == "" {
			continue
		}
		n, err := count()
		if err != nil {
			return before, err
		}
		if n > before {
			return n, nil
		}
	}
}
