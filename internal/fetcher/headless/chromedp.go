// Package headless implements scraper.Browser on top of headless Chrome via chromedp.
package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/review-scraper/internal/scraper"
)

// webdriverMask hides the automation flag that bot checks read first.
const webdriverMask = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// Page scripts for load-more expansion; %s is a JSON-quoted selector.
const (
	countScript = `document.querySelectorAll(%s).length`
	clickScript = `(() => {
	for (const el of document.querySelectorAll(%s)) {
		const box = el.getBoundingClientRect();
		if (el.disabled || box.width === 0 || box.height === 0) continue;
		el.scrollIntoView({block: "center"});
		el.click();
		return true;
	}
	return false;
})()`
)

// Config controls the Chrome process and tab concurrency.
type Config struct {
	ExecPath string
	// Headful runs a visible window; useful when debugging rules.
	Headful     bool
	NoSandbox   bool
	MaxParallel int
}

// Browser owns one Chrome process. Each session is a tab in its own browser
// context, so cookies and storage never leak between fetches.
type Browser struct {
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc

	mu         sync.Mutex
	root       context.Context
	rootCancel context.CancelFunc
	startErr   error
	started    bool
}

// New prepares the allocator. Chrome itself starts with the first session.
func New(cfg Config) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	return &Browser{
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	} else {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// NewSession opens an isolated tab presenting identity. A Chrome process that
// cannot start yields scraper.ErrFatalSetup, now and on every later call.
func (b *Browser) NewSession(ctx context.Context, identity scraper.Identity) (scraper.Session, error) {
	root, err := b.ensureStarted()
	if err != nil {
		return nil, err
	}
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(root, chromedp.WithNewBrowserContext())
	s := &session{
		ctx:     tabCtx,
		cancel:  tabCancel,
		meta:    newResponseMeta(),
		idle:    newIdleSignal(),
		release: b.release,
	}
	chromedp.ListenTarget(tabCtx, s.captureEvent)
	if err := s.run(ctx, setupAction(identity)); err != nil {
		_ = s.Quit()
		return nil, fmt.Errorf("prepare tab: %w", err)
	}
	return s, nil
}

func (b *Browser) ensureStarted() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return b.root, b.startErr
	}
	b.started = true
	root, cancel := chromedp.NewContext(b.allocator)
	// The first Run on a fresh context launches the process.
	if err := chromedp.Run(root); err != nil {
		cancel()
		b.startErr = scraper.NewFatalSetupError(fmt.Errorf("start chrome: %w", err))
		return nil, b.startErr
	}
	b.root, b.rootCancel = root, cancel
	return root, nil
}

// Close shuts Chrome down and releases the allocator.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.root != nil {
		err = chromedp.Cancel(b.root)
		b.rootCancel()
		b.root = nil
	}
	b.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close chrome: %w", err)
	}
	return nil
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tab slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

func setupAction(identity scraper.Identity) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return fmt.Errorf("enable lifecycle events: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(webdriverMask).Do(ctx); err != nil {
			return fmt.Errorf("install webdriver mask: %w", err)
		}
		if identity.UserAgent != "" {
			ua := emulation.SetUserAgentOverride(identity.UserAgent)
			if identity.AcceptLanguage != "" {
				ua = ua.WithAcceptLanguage(identity.AcceptLanguage)
			}
			if err := ua.Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if identity.ViewportWidth > 0 && identity.ViewportHeight > 0 {
			err := emulation.SetDeviceMetricsOverride(identity.ViewportWidth, identity.ViewportHeight, 1, false).Do(ctx)
			if err != nil {
				return fmt.Errorf("set viewport: %w", err)
			}
		}
		return nil
	})
}

type session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	meta    *responseMeta
	idle    *idleSignal
	release func()
	once    sync.Once
}

// run executes actions on the tab, bounded by the caller's ctx. Cancelling the
// derived context aborts the actions without closing the tab.
func (s *session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		runCtx, dcancel = context.WithDeadline(runCtx, deadline)
		defer dcancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *session) captureEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		s.meta.capture(e)
	case *page.EventLifecycleEvent:
		if e.Name == "networkIdle" {
			s.idle.fire()
		}
	}
}

// Navigate loads rawURL and reports the main document status (0 when unseen).
func (s *session) Navigate(ctx context.Context, rawURL string, headers map[string][]string) (int, error) {
	s.meta.reset()
	s.idle.reset()
	actions := make([]chromedp.Action, 0, 2)
	if len(headers) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(toNetworkHeaders(headers)))
	}
	actions = append(actions, chromedp.Navigate(rawURL))
	if err := s.run(ctx, actions...); err != nil {
		return 0, fmt.Errorf("navigate: %w", err)
	}
	status, _, _ := s.meta.snapshot()
	return status, nil
}

// WaitFor blocks until cond holds or ctx ends.
func (s *session) WaitFor(ctx context.Context, cond scraper.WaitCondition) error {
	switch cond.Kind {
	case scraper.WaitNone, "":
		return nil
	case scraper.WaitElement:
		if cond.Selector == "" {
			return errors.New("element wait without selector")
		}
		return s.run(ctx, chromedp.WaitReady(cond.Selector, chromedp.ByQuery))
	case scraper.WaitDelay:
		timer := time.NewTimer(cond.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case scraper.WaitNetworkIdle:
		select {
		case <-s.idle.done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		return fmt.Errorf("unsupported wait kind %q", cond.Kind)
	}
}

// PageContent returns the rendered DOM and the current location.
func (s *session) PageContent(ctx context.Context) (string, string, error) {
	var html, location string
	err := s.run(ctx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", "", fmt.Errorf("read dom: %w", err)
	}
	if location == "" {
		_, _, location = s.meta.snapshot()
	}
	return html, location, nil
}

// CountMatches returns the number of elements matching selector.
func (s *session) CountMatches(ctx context.Context, selector string) (int, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return 0, fmt.Errorf("quote selector: %w", err)
	}
	var n int
	if err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(countScript, quoted), &n)); err != nil {
		return 0, fmt.Errorf("count %s: %w", selector, err)
	}
	return n, nil
}

// ClickFirst scrolls the first visible, enabled match of selector into view and
// clicks it.
func (s *session) ClickFirst(ctx context.Context, selector string) (bool, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return false, fmt.Errorf("quote selector: %w", err)
	}
	var clicked bool
	if err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(clickScript, quoted), &clicked)); err != nil {
		return false, fmt.Errorf("click %s: %w", selector, err)
	}
	return clicked, nil
}

// Quit closes the tab and its browser context. It is safe to call twice.
func (s *session) Quit() error {
	var err error
	s.once.Do(func() {
		err = chromedp.Cancel(s.ctx)
		s.cancel()
		s.release()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close tab: %w", err)
	}
	return nil
}

// idleSignal is closed by the first networkIdle lifecycle event after a reset.
type idleSignal struct {
	mu sync.Mutex
	ch chan struct{}
	// fired guards against closing ch twice.
	fired bool
}

func newIdleSignal() *idleSignal {
	return &idleSignal{ch: make(chan struct{})}
}

func (i *idleSignal) reset() {
	i.mu.Lock()
	i.ch = make(chan struct{})
	i.fired = false
	i.mu.Unlock()
}

func (i *idleSignal) fire() {
	i.mu.Lock()
	if !i.fired {
		close(i.ch)
		i.fired = true
	}
	i.mu.Unlock()
}

func (i *idleSignal) done() <-chan struct{} {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ch
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.status, m.headers, m.url = 0, http.Header{}, ""
	m.mu.Unlock()
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.headers.Clone(), m.url
}

func toNetworkHeaders(h map[string][]string) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			headers[key] = values[0]
		default:
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
