package policy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-scraper/internal/scraper"
)

func baseConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  time.Second,
		HostSpacing: 200 * time.Millisecond,
	}
}

func mustTarget(t *testing.T, raw string) scraper.Target {
	t.Helper()
	tg, err := scraper.NewTarget(raw)
	require.NoError(t, err)
	return tg
}

func TestRetryDelaysIncreaseUntilCap(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.MaxRetries = 6
	cfg.MaxBackoff = 500 * time.Millisecond
	p, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	blocked := scraper.NewBlockedError("https://a.test", "captcha")
	var delays []time.Duration
	for attempt := 1; ; attempt++ {
		d := p.Retry(attempt, blocked)
		if !d.Retry {
			require.Equal(t, cfg.MaxRetries, attempt)
			break
		}
		delays = append(delays, d.Delay)
	}
	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}, delays)
}

func TestRetryMaxRetriesThreeMeansThreeAttempts(t *testing.T) {
	t.Parallel()

	p, err := New(baseConfig(), nil)
	require.NoError(t, err)
	netErr := scraper.NewNetworkError("https://a.test", errors.New("reset"))

	first := p.Retry(1, netErr)
	second := p.Retry(2, netErr)
	third := p.Retry(3, netErr)
	require.True(t, first.Retry)
	require.True(t, second.Retry)
	require.Greater(t, second.Delay, first.Delay)
	require.False(t, third.Retry)
}

func TestRetryIgnoresNonRetryableErrors(t *testing.T) {
	t.Parallel()

	p, err := New(baseConfig(), nil)
	require.NoError(t, err)
	require.False(t, p.Retry(1, scraper.NewParseError("u", errors.New("empty"))).Retry)
	require.False(t, p.Retry(1, scraper.NewFatalSetupError(errors.New("no chrome"))).Retry)
	require.False(t, p.Retry(1, context.Canceled).Retry)
	require.False(t, p.Retry(1, nil).Retry)
}

func TestAuthorizeSpacesSameHost(t *testing.T) {
	t.Parallel()

	p, err := New(baseConfig(), nil)
	require.NoError(t, err)
	now := time.Now()

	first := p.Authorize(mustTarget(t, "https://shop.test/a"), now)
	second := p.Authorize(mustTarget(t, "https://shop.test/b"), now)
	other := p.Authorize(mustTarget(t, "https://other.test/a"), now)

	require.Zero(t, first.Wait)
	require.InDelta(t, float64(200*time.Millisecond), float64(second.Wait), float64(time.Millisecond))
	require.Zero(t, other.Wait)

	later := p.Authorize(mustTarget(t, "https://shop.test/c"), now.Add(time.Second))
	require.Zero(t, later.Wait)
}

func TestAuthorizeAddsJitter(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.HostSpacing = 0
	cfg.Jitter = 50 * time.Millisecond
	p, err := New(cfg, nil, WithRandom(func(n int64) int64 { return n - 1 }))
	require.NoError(t, err)

	d := p.Authorize(mustTarget(t, "https://shop.test/a"), time.Now())
	require.Equal(t, 50*time.Millisecond-1, d.Wait)
}

func TestRotatorRoundRobin(t *testing.T) {
	t.Parallel()

	r := NewRotator(RotationRoundRobin, []string{"ua-1", "ua-2"}, []string{"en-US"}, []Viewport{{Width: 1, Height: 2}})
	require.Equal(t, "ua-1", r.Next().UserAgent)
	require.Equal(t, "ua-2", r.Next().UserAgent)
	id := r.Next()
	require.Equal(t, "ua-1", id.UserAgent)
	require.Equal(t, "en-US", id.AcceptLanguage)
	require.Equal(t, int64(1), id.ViewportWidth)
	require.Equal(t, int64(2), id.ViewportHeight)
}

func TestRotatorRandomUsesSource(t *testing.T) {
	t.Parallel()

	r := NewRotator(RotationRandom, []string{"a", "b", "c"}, nil, nil)
	r.intn = func(n int64) int64 { return n - 1 }
	id := r.Next()
	require.Equal(t, "c", id.UserAgent)
	require.Equal(t, DefaultAcceptLanguages[len(DefaultAcceptLanguages)-1], id.AcceptLanguage)
	require.Equal(t, DefaultViewports[len(DefaultViewports)-1].Width, id.ViewportWidth)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.MaxRetries = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.BaseBackoff = 2 * time.Second
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Rotation = "sticky"
	require.Error(t, bad.Validate())
}

func TestAllowedHonorsDeniedHosts(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.DeniedHosts = []string{"*.ads.test", "tracker.test"}
	p, err := New(cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.False(t, p.Allowed(ctx, mustTarget(t, "https://cdn.ads.test/x")))
	require.False(t, p.Allowed(ctx, mustTarget(t, "https://tracker.test/x")))
	require.True(t, p.Allowed(ctx, mustTarget(t, "https://shop.test/x")))
}

func TestRobotsDisallowIsCachedPerHost(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cfg := baseConfig()
	p, err := New(cfg, nil, WithRobots(NewRobots("review-scraper", time.Second, zap.NewNop())))
	require.NoError(t, err)

	ctx := context.Background()
	require.True(t, p.Allowed(ctx, mustTarget(t, srv.URL+"/reviews")))
	require.False(t, p.Allowed(ctx, mustTarget(t, srv.URL+"/private/page")))
	require.Equal(t, int32(1), hits.Load())
}

func TestRobotsUnreachableAllows(t *testing.T) {
	t.Parallel()

	r := NewRobots("", 200*time.Millisecond, nil)
	require.True(t, r.Allowed(context.Background(), "http://127.0.0.1:1/page"))
}

func TestPauseHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, Pause(ctx, time.Minute))
	require.NoError(t, Pause(context.Background(), 0))
}
