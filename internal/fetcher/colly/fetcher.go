// Package collyfetcher implements scraper.Browser with plain HTTP requests via
// gocolly. It suits static pages; nothing is rendered and no script runs.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/review-scraper/internal/scraper"
)

// Config controls collector behavior.
type Config struct {
	Timeout time.Duration
	// CloudflareBypass wraps the transport with browser-like TLS and headers.
	CloudflareBypass bool
}

// Browser hands out sessions that share one pooled transport.
type Browser struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Browser.
func New(cfg Config) *Browser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	c.DisableCookies()

	var transport http.RoundTripper = newHTTPTransport()
	if cfg.CloudflareBypass {
		transport = cloudflarebp.AddCloudFlareByPass(transport)
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	return &Browser{cfg: cfg, baseCollector: c}
}

// NewSession returns a session presenting identity. It never fails: there is
// no process to start.
func (b *Browser) NewSession(_ context.Context, identity scraper.Identity) (scraper.Session, error) {
	return &session{base: b.baseCollector, identity: identity}, nil
}

// Close implements scraper.Browser; idle connections are dropped with the process.
func (b *Browser) Close() error {
	return nil
}

type page struct {
	status int
	body   []byte
	url    string
}

type session struct {
	base     *colly.Collector
	identity scraper.Identity

	mu      sync.Mutex
	current *page
}

// Navigate performs the GET. HTTP error statuses are returned with their body,
// not as errors, so block detection can inspect them.
func (s *session) Navigate(ctx context.Context, rawURL string, headers map[string][]string) (int, error) {
	var (
		result   page
		fetchErr error
	)
	collector := s.base.Clone()
	collector.Context = ctx
	if s.identity.UserAgent != "" {
		collector.UserAgent = s.identity.UserAgent
	}
	s.configureCollectorHooks(collector, headers, &result, &fetchErr)

	if err := runCollector(ctx, collector, rawURL, &result, &fetchErr); err != nil {
		return 0, err
	}
	if result.url == "" {
		result.url = rawURL
	}
	s.mu.Lock()
	s.current = &result
	s.mu.Unlock()
	return result.status, nil
}

func (s *session) configureCollectorHooks(
	hooks collectorHooks,
	headers map[string][]string,
	result *page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		if s.identity.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", s.identity.AcceptLanguage)
		}
		for key, values := range headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = capture(r)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			*result = capture(r)
			return
		}
		*fetchErr = err
	})
}

func capture(r *colly.Response) page {
	p := page{status: r.StatusCode, body: append([]byte(nil), r.Body...)}
	if r.Request != nil && r.Request.URL != nil {
		p.url = r.Request.URL.String()
	}
	return p
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, result *page, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		// The request carries ctx, so Visit unwinds promptly; wait for it so
		// no hook writes result after we return.
		<-done
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		// Error statuses also surface from Visit; the hook already kept them.
		if err != nil && result.status == 0 {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// WaitFor checks the condition against the static document.
func (s *session) WaitFor(ctx context.Context, cond scraper.WaitCondition) error {
	switch cond.Kind {
	case scraper.WaitNone, scraper.WaitNetworkIdle, "":
		return nil
	case scraper.WaitDelay:
		timer := time.NewTimer(cond.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case scraper.WaitElement:
		p, err := s.page()
		if err != nil {
			return err
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
		if err != nil {
			return fmt.Errorf("parse document: %w", err)
		}
		if doc.Find(cond.Selector).Length() == 0 {
			return fmt.Errorf("selector %q not present", cond.Selector)
		}
		return nil
	default:
		return fmt.Errorf("unsupported wait kind %q", cond.Kind)
	}
}

// PageContent returns the response body as retrieved.
func (s *session) PageContent(context.Context) (string, string, error) {
	p, err := s.page()
	if err != nil {
		return "", "", err
	}
	return string(p.body), p.url, nil
}

// Quit drops the retained page.
func (s *session) Quit() error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	return nil
}

func (s *session) page() (*page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, errors.New("no page loaded")
	}
	return s.current, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
