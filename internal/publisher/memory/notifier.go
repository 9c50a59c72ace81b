// Package memory records flush notices in memory, for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/review-scraper/internal/dataset"
)

// Notifier stores notices for inspection.
type Notifier struct {
	mu      sync.RWMutex
	notices []dataset.FlushNotice
}

var _ dataset.Notifier = (*Notifier)(nil)

// New returns an empty Notifier.
func New() *Notifier {
	return &Notifier{}
}

// Notify records the notice.
func (n *Notifier) Notify(_ context.Context, notice dataset.FlushNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

// Notices returns the recorded notices.
func (n *Notifier) Notices() []dataset.FlushNotice {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]dataset.FlushNotice, len(n.notices))
	copy(out, n.notices)
	return out
}
