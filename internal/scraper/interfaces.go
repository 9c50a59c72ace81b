package scraper

import (
	"context"
	"time"
)

// Browser owns a live browser (or HTTP client) process for the duration of a run.
type Browser interface {
	// NewSession opens an isolated session presenting identity. Failure to start the
	// underlying browser must be reported as ErrFatalSetup.
	NewSession(ctx context.Context, identity Identity) (Session, error)
	Close() error
}

// Session is one tab or request context. Quit must always be called.
type Session interface {
	// Navigate loads rawURL and returns the document status code when known (0 otherwise).
	Navigate(ctx context.Context, rawURL string, headers map[string][]string) (int, error)
	WaitFor(ctx context.Context, cond WaitCondition) error
	PageContent(ctx context.Context) (content string, finalURL string, err error)
	Quit() error
}

// Expander is implemented by sessions that can interact with a rendered page.
// Sessions without it (plain HTTP) skip in-page expansion.
type Expander interface {
	// CountMatches returns the number of elements matching selector.
	CountMatches(ctx context.Context, selector string) (int, error)
	// ClickFirst clicks the first visible, enabled match of selector and
	// reports whether anything was clicked.
	ClickFirst(ctx context.Context, selector string) (bool, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Hasher computes digests for deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
