package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-scraper/internal/scraper"
)

// expandingSession is a fakeSession whose page grows by perClick items each
// time the button is clicked, while the button lasts.
type expandingSession struct {
	*fakeSession

	mu       sync.Mutex
	items    int
	perClick int
	buttons  int
	clickErr error
	clicks   int
	order    []string
}

func (s *expandingSession) WaitFor(ctx context.Context, cond scraper.WaitCondition) error {
	s.mu.Lock()
	s.order = append(s.order, "wait")
	s.mu.Unlock()
	return s.fakeSession.WaitFor(ctx, cond)
}

func (s *expandingSession) PageContent(ctx context.Context) (string, string, error) {
	s.mu.Lock()
	s.order = append(s.order, "content")
	s.mu.Unlock()
	return s.fakeSession.PageContent(ctx)
}

func (s *expandingSession) CountMatches(_ context.Context, selector string) (int, error) {
	if selector != ".review" {
		return 0, errors.New("unexpected item selector " + selector)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items, nil
}

func (s *expandingSession) ClickFirst(_ context.Context, selector string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if selector != "button.more" {
		return false, errors.New("unexpected button selector " + selector)
	}
	if s.clickErr != nil {
		return false, s.clickErr
	}
	if s.buttons == 0 {
		return false, nil
	}
	s.buttons--
	s.clicks++
	s.order = append(s.order, "click")
	s.items += s.perClick
	return true, nil
}

func moreRule(maxClicks, maxItems int) scraper.LoadMore {
	return scraper.LoadMore{
		Selector:     "button.more",
		ItemSelector: ".review",
		MaxClicks:    maxClicks,
		MaxItems:     maxItems,
		Settle:       5 * time.Millisecond,
	}
}

func TestLoadMoreStopConditions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		session    *expandingSession
		rule       scraper.LoadMore
		wantClicks int
		wantItems  int
		wantStop   string
	}{
		{
			name:       "button disappears",
			session:    &expandingSession{items: 10, perClick: 10, buttons: 2},
			rule:       moreRule(10, 0),
			wantClicks: 2, wantItems: 30, wantStop: "no_button",
		},
		{
			name:       "count stops growing",
			session:    &expandingSession{items: 10, perClick: 0, buttons: 5},
			rule:       moreRule(10, 0),
			wantClicks: 1, wantItems: 10, wantStop: "no_growth",
		},
		{
			name:       "max items reached",
			session:    &expandingSession{items: 10, perClick: 10, buttons: 9},
			rule:       moreRule(10, 25),
			wantClicks: 2, wantItems: 30, wantStop: "max_items",
		},
		{
			name:       "max clicks reached",
			session:    &expandingSession{items: 1, perClick: 1, buttons: 9},
			rule:       moreRule(3, 0),
			wantClicks: 3, wantItems: 4, wantStop: "max_clicks",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res, err := loadMore(context.Background(), tc.session, tc.rule)
			require.NoError(t, err)
			require.Equal(t, tc.wantClicks, res.clicks)
			require.Equal(t, tc.wantItems, res.items)
			require.Equal(t, tc.wantStop, res.stop)
		})
	}
}

func TestLoadMoreDefaultsClickCap(t *testing.T) {
	t.Parallel()

	s := &expandingSession{items: 1, perClick: 1, buttons: 100}
	res, err := loadMore(context.Background(), s, moreRule(0, 0))
	require.NoError(t, err)
	require.Equal(t, DefaultLoadMoreClicks, res.clicks)
}

func TestLoadMoreHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &expandingSession{items: 1, perClick: 0, buttons: 3}
	l := moreRule(3, 0)
	l.Settle = time.Minute
	_, err := loadMore(ctx, s, l)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchExpandsBeforeReadingContent(t *testing.T) {
	t.Parallel()

	s := &expandingSession{
		fakeSession: &fakeSession{status: 200, content: "<html><body>ok</body></html>"},
		items:       5, perClick: 5, buttons: 2,
	}
	f, err := New(expandingBrowser{s}, Config{LoadMore: moreRule(5, 0)}, zap.NewNop())
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), mustTarget(t, "https://shop.test/p"), scraper.Identity{}, scraper.WaitCondition{})
	require.NoError(t, err)
	require.Equal(t, 2, s.clicks)
	require.Equal(t, []string{"wait", "click", "click", "content"}, s.order)
}

func TestFetchKeepsPageWhenExpansionFails(t *testing.T) {
	t.Parallel()

	s := &expandingSession{
		fakeSession: &fakeSession{status: 200, content: "<html><body>ok</body></html>"},
		items:       5, buttons: 2, clickErr: errors.New("node detached"),
	}
	f, err := New(expandingBrowser{s}, Config{LoadMore: moreRule(5, 0)}, zap.NewNop())
	require.NoError(t, err)

	res, err := f.Fetch(context.Background(), mustTarget(t, "https://shop.test/p"), scraper.Identity{}, scraper.WaitCondition{})
	require.NoError(t, err)
	require.Contains(t, string(res.Content), "ok")
	require.Equal(t, 1, s.quits)
}

func TestFetchSkipsExpansionWithoutExpander(t *testing.T) {
	t.Parallel()

	s := &fakeSession{status: 200, content: "<html><body>ok</body></html>"}
	f := newTestFetcher(t, &fakeBrowser{session: s}, Config{LoadMore: moreRule(5, 0)})

	_, err := f.Fetch(context.Background(), mustTarget(t, "https://shop.test/p"), scraper.Identity{}, scraper.WaitCondition{})
	require.NoError(t, err)
}

type expandingBrowser struct {
	session *expandingSession
}

func (b expandingBrowser) NewSession(context.Context, scraper.Identity) (scraper.Session, error) {
	return b.session, nil
}

func (expandingBrowser) Close() error { return nil }
