package folio

import (
	"sync"
	"time"
)

// Limiter is a sliding-window counter keyed by an arbitrary string, usually
// the client IP. It guards login attempts and the public form endpoints.
type Limiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	max      int
	window   time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// NewLimiter creates a Limiter that allows max attempts per key per window.
// Call Stop to end its cleanup goroutine.
func NewLimiter(max int, window time.Duration) *Limiter {
	l := &Limiter{
		attempts: make(map[string][]time.Time),
		max:      max,
		window:   window,
		done:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for key := range l.attempts {
				l.prune(key, now)
			}
			l.mu.Unlock()
		}
	}
}

// prune drops expired attempts for key and returns how many remain.
// l.mu must be held.
func (l *Limiter) prune(key string, now time.Time) int {
	cutoff := now.Add(-l.window)
	hits := l.attempts[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.attempts, key)
		return 0
	}
	l.attempts[key] = kept
	return len(kept)
}

// Allow records an attempt for key and reports whether it is within the
// limit. Rejected attempts are not recorded.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if l.prune(key, now) >= l.max {
		return false
	}
	l.attempts[key] = append(l.attempts[key], now)
	return true
}

// Check reports whether key is under the limit without recording anything.
func (l *Limiter) Check(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prune(key, time.Now()) < l.max
}

// Record registers an attempt for key, e.g. a failed login.
func (l *Limiter) Record(key string) {
	l.mu.Lock()
	l.attempts[key] = append(l.attempts[key], time.Now())
	l.mu.Unlock()
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}
