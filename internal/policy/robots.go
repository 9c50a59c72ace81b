package policy

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// Robots enforces robots.txt directives per host.
type Robots struct {
	client    *resty.Client
	cache     sync.Map
	userAgent string
	logger    *zap.Logger
}

// NewRobots builds a robots.txt enforcer. Rules are fetched once per host.
func NewRobots(userAgent string, timeout time.Duration, logger *zap.Logger) *Robots {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if userAgent == "" {
		userAgent = "review-scraper"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Robots{
		client:    resty.New().SetTimeout(timeout),
		userAgent: userAgent,
		logger:    logger,
	}
}

// Allowed reports whether rawURL may be fetched. Unreachable robots files allow access.
func (r *Robots) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	data, err := r.load(ctx, parsed)
	if err != nil {
		r.logger.Warn("robots fetch failed; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(r.userAgent)
	if group == nil {
		return true
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (r *Robots) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(parsed.Host)
	if cached, ok := r.cache.Load(hostKey); ok {
		data, assertOK := cached.(*robotstxt.RobotsData)
		if !assertOK {
			return nil, fmt.Errorf("robots cache type mismatch: %T", cached)
		}
		return data, nil
	}

	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", r.userAgent).
		Get(robotsURL.String())
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode(), resp.Body())
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	r.cache.Store(hostKey, data)
	return data, nil
}
