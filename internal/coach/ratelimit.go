package coach

import (
	"sync"
	"time"
)

// Limiter enforces a per-session sliding window: at most max calls in
// any window of the configured length.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
	now    func() time.Time
}

// NewLimiter builds a limiter; max <= 0 disables limiting.
func NewLimiter(window time.Duration, max int) *Limiter {
	return &Limiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records an attempt for the session and reports whether it fits
// inside the window.
func (l *Limiter) Allow(sessionID string) bool {
	if l.max <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.hits[sessionID][:0]
	for _, t := range l.hits[sessionID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.max {
		l.hits[sessionID] = kept
		return false
	}
	l.hits[sessionID] = append(kept, now)
	return true
}

// Forget drops the session's history, used when a session completes.
func (l *Limiter) Forget(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, sessionID)
}
