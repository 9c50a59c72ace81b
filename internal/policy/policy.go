// Package policy decides when and as whom a target may be fetched, and whether a
// failed fetch is worth another attempt.
package policy

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-scraper/internal/scraper"
)

// Config holds fetch policy settings. Durations of zero disable the feature.
type Config struct {
	MaxRetries      int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	HostSpacing     time.Duration
	Jitter          time.Duration
	Rotation        RotationMode
	UserAgents      []string
	AcceptLanguages []string
	Viewports       []Viewport
	RespectRobots   bool
	RobotsUserAgent string
	RobotsTimeout   time.Duration
	DeniedHosts     []string
}

// Validate checks the policy settings.
func (c Config) Validate() error {
	if c.MaxRetries < 1 {
		return errors.New("max_retries must be at least 1")
	}
	if c.BaseBackoff < 0 || c.MaxBackoff < 0 {
		return errors.New("backoff durations must not be negative")
	}
	if c.MaxBackoff > 0 && c.BaseBackoff > c.MaxBackoff {
		return errors.New("base_backoff must not exceed max_backoff")
	}
	if c.HostSpacing < 0 || c.Jitter < 0 {
		return errors.New("host spacing and jitter must not be negative")
	}
	switch c.Rotation {
	case "", RotationRoundRobin, RotationRandom:
	default:
		return fmt.Errorf("unknown identity rotation %q", c.Rotation)
	}
	return nil
}

// Decision is the outcome of Authorize: how long to wait before fetching and
// which identity to present.
type Decision struct {
	Wait     time.Duration
	Identity scraper.Identity
}

// RetryDecision is the outcome of Retry.
type RetryDecision struct {
	Retry bool
	Delay time.Duration
}

// Policy combines host pacing, identity rotation, retry backoff and admission.
type Policy struct {
	cfg        Config
	pacer      *hostPacer
	identities *Rotator
	backoff    Backoff
	robots     *Robots
	denied     *hostBlocklist
	intn       func(n int64) int64
	logger     *zap.Logger
}

// Option customizes a Policy.
type Option func(*Policy)

// WithRandom replaces the jitter and identity randomness source.
func WithRandom(intn func(n int64) int64) Option {
	return func(p *Policy) {
		if intn != nil {
			p.intn = intn
			p.identities.intn = intn
		}
	}
}

// WithRobots replaces the robots.txt enforcer.
func WithRobots(r *Robots) Option {
	return func(p *Policy) {
		p.robots = r
	}
}

// New builds a Policy from cfg.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Policy{
		cfg:        cfg,
		pacer:      newHostPacer(cfg.HostSpacing),
		identities: NewRotator(cfg.Rotation, cfg.UserAgents, cfg.AcceptLanguages, cfg.Viewports),
		backoff:    Backoff{MaxAttempts: cfg.MaxRetries, Base: cfg.BaseBackoff, Max: cfg.MaxBackoff},
		denied:     newHostBlocklist(cfg.DeniedHosts),
		intn:       rand.Int64N,
		logger:     logger,
	}
	if cfg.RespectRobots {
		p.robots = NewRobots(cfg.RobotsUserAgent, cfg.RobotsTimeout, logger)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// MaxRetries returns the configured attempt cap.
func (p *Policy) MaxRetries() int {
	return p.cfg.MaxRetries
}

// Authorize reserves the next fetch slot for the target's host and picks an identity.
// The reservation is recorded immediately, so concurrent callers for one host are
// spaced apart even before any of them has fetched.
func (p *Policy) Authorize(target scraper.Target, now time.Time) Decision {
	wait := p.pacer.reserve(target.Host(), now)
	if p.cfg.Jitter > 0 {
		wait += time.Duration(p.intn(int64(p.cfg.Jitter)))
	}
	return Decision{Wait: wait, Identity: p.identities.Next()}
}

// Retry decides whether attempt (1-based, the attempt that just failed with err)
// should be followed by another one.
func (p *Policy) Retry(attempt int, err error) RetryDecision {
	if !scraper.IsRetryable(err) {
		return RetryDecision{}
	}
	if attempt >= p.cfg.MaxRetries {
		return RetryDecision{}
	}
	return RetryDecision{Retry: true, Delay: p.backoff.Delay(attempt)}
}

// Allowed reports whether the target may be fetched at all. Denied hosts and
// robots.txt disallows are skips, not failures.
func (p *Policy) Allowed(ctx context.Context, target scraper.Target) bool {
	if p.denied.matches(target.Host()) {
		p.logger.Debug("host denied by configuration", zap.String("host", target.Host()))
		return false
	}
	if p.robots == nil {
		return true
	}
	return p.robots.Allowed(ctx, target.URL)
}

// Pause sleeps for delay or until ctx ends.
func Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
