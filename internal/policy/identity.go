package policy

import (
	"math/rand/v2"
	"sync/atomic"

	"github.com/JakeFAU/review-scraper/internal/scraper"
)

// RotationMode selects how identities are drawn from the pools.
type RotationMode string

// Rotation modes.
const (
	RotationRoundRobin RotationMode = "round_robin"
	RotationRandom     RotationMode = "random"
)

// Viewport is a browser window size.
type Viewport struct {
	Width  int64 `mapstructure:"width"`
	Height int64 `mapstructure:"height"`
}

// DefaultUserAgents is used when no user-agent pool is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// DefaultAcceptLanguages is used when no Accept-Language pool is configured.
var DefaultAcceptLanguages = []string{"en-US", "en-GB", "fr-FR", "de-DE", "es-ES", "it-IT"}

// DefaultViewports pairs common desktop widths and heights.
var DefaultViewports = []Viewport{
	{Width: 1366, Height: 768},
	{Width: 1440, Height: 900},
	{Width: 1536, Height: 1024},
	{Width: 1600, Height: 1050},
	{Width: 1920, Height: 1080},
	{Width: 2048, Height: 1200},
	{Width: 2560, Height: 1440},
}

// Rotator hands out identities from the configured pools.
type Rotator struct {
	mode       RotationMode
	userAgents []string
	languages  []string
	viewports  []Viewport
	next       atomic.Uint64
	intn       func(n int64) int64
}

// NewRotator builds a Rotator. Empty pools fall back to the defaults.
func NewRotator(mode RotationMode, userAgents, languages []string, viewports []Viewport) *Rotator {
	if mode == "" {
		mode = RotationRoundRobin
	}
	if len(userAgents) == 0 {
		userAgents = DefaultUserAgents
	}
	if len(languages) == 0 {
		languages = DefaultAcceptLanguages
	}
	if len(viewports) == 0 {
		viewports = DefaultViewports
	}
	return &Rotator{
		mode:       mode,
		userAgents: userAgents,
		languages:  languages,
		viewports:  viewports,
		intn:       rand.Int64N,
	}
}

// Next returns the identity for the next fetch.
func (r *Rotator) Next() scraper.Identity {
	var ua, lang, vp int
	if r.mode == RotationRandom {
		ua = int(r.intn(int64(len(r.userAgents))))
		lang = int(r.intn(int64(len(r.languages))))
		vp = int(r.intn(int64(len(r.viewports))))
	} else {
		i := r.next.Add(1) - 1
		ua = int(i % uint64(len(r.userAgents)))
		lang = int(i % uint64(len(r.languages)))
		vp = int(i % uint64(len(r.viewports)))
	}
	view := r.viewports[vp]
	return scraper.Identity{
		UserAgent:      r.userAgents[ua],
		AcceptLanguage: r.languages[lang],
		ViewportWidth:  view.Width,
		ViewportHeight: view.Height,
	}
}
