// Package rate holds fixed-window request limiters keyed by caller.
package rate

import (
	"sync"
	"time"
)

// WindowLimiter allows up to limit events per key in each fixed window.
type WindowLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	now         func() time.Time
	items       map[string]*windowEntry
	lastCleanup time.Time
}

type windowEntry struct {
	start time.Time
	count int
}

func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	return NewWindowLimiterWithClock(limit, window, time.Now)
}

// NewWindowLimiterWithClock is NewWindowLimiter with an injectable clock.
func NewWindowLimiterWithClock(limit int, window time.Duration, now func() time.Time) *WindowLimiter {
	if now == nil {
		now = time.Now
	}
	return &WindowLimiter{
		limit:       limit,
		window:      window,
		now:         now,
		items:       make(map[string]*windowEntry),
		lastCleanup: now(),
	}
}

// Allow records one event for key and reports whether it fits the window.
// A non-positive limit disables limiting.
func (l *WindowLimiter) Allow(key string) bool {
	ok, _ := l.Reserve(key)
	return ok
}

// Reserve is Allow that also reports how long a refused caller should wait.
func (l *WindowLimiter) Reserve(key string) (bool, time.Duration) {
	if l.limit <= 0 || l.window <= 0 {
		return true, 0
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeCleanup(now)

	entry, ok := l.items[key]
	if !ok || now.Sub(entry.start) >= l.window {
		l.items[key] = &windowEntry{start: now, count: 1}
		return true, 0
	}
	if entry.count >= l.limit {
		return false, entry.start.Add(l.window).Sub(now)
	}
	entry.count++
	return true, 0
}

// Len reports how many keys are tracked.
func (l *WindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *WindowLimiter) maybeCleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < l.window {
		return
	}
	for key, entry := range l.items {
		if now.Sub(entry.start) >= l.window {
			delete(l.items, key)
		}
	}
	l.lastCleanup = now
}
