// Package frontier provides the deduplicated work queue of fetch targets.
package frontier

import (
	"container/heap"
	"context"
	"sync"

	"github.com/JakeFAU/review-scraper/internal/scraper"
)

// Frontier is a deduplicating priority queue. Targets with equal priority are
// dequeued in insertion order. The seen set lives for the whole run and is never
// evicted, so a target ID is handed out at most once.
type Frontier struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	items  targetHeap
	seq    uint64
	closed bool
	wake   chan struct{}
}

// New constructs an empty, open Frontier.
func New() *Frontier {
	return &Frontier{
		seen: make(map[string]struct{}),
		wake: make(chan struct{}),
	}
}

// Enqueue adds target if its ID is unseen and the frontier is still open. It
// returns true when the target was added.
func (f *Frontier) Enqueue(target scraper.Target) bool {
	if target.ID == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	if _, ok := f.seen[target.ID]; ok {
		return false
	}
	f.seen[target.ID] = struct{}{}
	heap.Push(&f.items, entry{target: target, seq: f.seq})
	f.seq++
	f.broadcastLocked()
	return true
}

// Dequeue returns the next target. It blocks while the frontier is empty and
// open; it returns false once the frontier is closed and drained or ctx ends.
func (f *Frontier) Dequeue(ctx context.Context) (scraper.Target, bool) {
	for {
		f.mu.Lock()
		if f.items.Len() > 0 {
			next := heap.Pop(&f.items).(entry)
			f.mu.Unlock()
			return next.target, true
		}
		if f.closed {
			f.mu.Unlock()
			return scraper.Target{}, false
		}
		wake := f.wake
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return scraper.Target{}, false
		case <-wake:
		}
	}
}

// Close marks the frontier exhausted. Pending targets are still handed out;
// further enqueues are rejected and blocked dequeuers wake up.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.broadcastLocked()
}

// Seen reports whether id was ever enqueued.
func (f *Frontier) Seen(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[id]
	return ok
}

// Len returns the number of pending targets.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items.Len()
}

// SeenCount returns how many distinct targets were accepted.
func (f *Frontier) SeenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func (f *Frontier) broadcastLocked() {
	close(f.wake)
	f.wake = make(chan struct{})
}

type entry struct {
	target scraper.Target
	seq    uint64
}

type targetHeap []entry

func (h targetHeap) Len() int { return len(h) }

func (h targetHeap) Less(i, j int) bool {
	if h[i].target.Priority != h[j].target.Priority {
		return h[i].target.Priority > h[j].target.Priority
	}
	return h[i].seq < h[j].seq
}

func (h targetHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *targetHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *targetHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
