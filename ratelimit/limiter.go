// Package ratelimit throttles outbound calls per provider with an
// in-memory sliding window. The router consults it before dispatching
// to a chain entry so a throttled provider is skipped instead of hit.
package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Limiter enforces a requests-per-minute budget for each provider.
// A zero budget means unlimited.
type Limiter struct {
	requestsPerMinute int
	logger            *zap.Logger

	mu      sync.Mutex
	windows map[string][]time.Time

	// now is swappable in tests
	now func() time.Time
}

// NewLimiter creates a limiter with the given per-provider budget
func NewLimiter(requestsPerMinute int, logger *zap.Logger) *Limiter {
	return &Limiter{
		requestsPerMinute: requestsPerMinute,
		logger:            logger,
		windows:           make(map[string][]time.Time),
		now:               time.Now,
	}
}

// Allow reports whether a request to the provider fits in the current
// window and, if so, counts it against the budget
func (l *Limiter) Allow(provider string) bool {
	if l.requestsPerMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-time.Minute)

	events := l.prune(provider, windowStart)
	if len(events) >= l.requestsPerMinute {
		l.logger.Warn("provider throttled",
			zap.String("provider", provider),
			zap.Int("requests_per_minute", l.requestsPerMinute))
		return false
	}

	l.windows[provider] = append(events, now)
	return true
}

// Usage returns how many requests the provider has made in the current window
func (l *Limiter) Usage(provider string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.prune(provider, l.now().Add(-time.Minute)))
}

// prune drops events older than the window start. Caller holds the lock.
func (l *Limiter) prune(provider string, windowStart time.Time) []time.Time {
	events := l.windows[provider]
	kept := events[:0]
	for _, ts := range events {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	l.windows[provider] = kept
	return kept
}
