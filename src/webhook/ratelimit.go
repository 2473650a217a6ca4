package webhook

import (
	"sync"
	"time"
)

// Per-event-type ceilings for one hour of deliveries. Ceilings are
// static: changing one is a deploy, not a runtime mutation. Types not
// listed fall back to DefaultRateLimit.
var DefaultRateLimits = map[string]int{
	EventConnectionCreated:   120,
	EventConnectionUpdated:   600,
	EventConnectionLoginOK:   120,
	EventConnectionError:     300,
	EventConnectionDeleted:   120,
	EventTransactionsCreated: 1200,
	EventTransactionsUpdated: 1200,
	EventConsentGranted:      120,
	EventConsentRenewed:      120,
	EventConsentRevoked:      120,
}

const DefaultRateLimit = 300

type rateWindow struct {
	start time.Time
	count int
}

// RateLimiter counts deliveries per event type in fixed one-hour
// windows. Each type has its own counter, so a noisy type never starves
// the others. Safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[string]int
	windows map[string]*rateWindow
}

func NewRateLimiter(limits map[string]int) *RateLimiter {
	if limits == nil {
		limits = DefaultRateLimits
	}
	return &RateLimiter{
		limits:  limits,
		windows: make(map[string]*rateWindow),
	}
}

// Allow records one delivery of the given type and reports whether it
// fits under the hourly ceiling.
func (r *RateLimiter) Allow(eventType string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	windowStart := now.Truncate(time.Hour)
	w := r.windows[eventType]
	if w == nil || !w.start.Equal(windowStart) {
		w = &rateWindow{start: windowStart}
		r.windows[eventType] = w
	}

	limit, ok := r.limits[eventType]
	if !ok {
		limit = DefaultRateLimit
	}
	if w.count >= limit {
		return false
	}
	w.count++
	return true
}
