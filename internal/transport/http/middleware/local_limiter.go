package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	localLimiterMaxEntries = 10000
	localLimiterIdleTTL    = 10 * time.Minute
)

// LocalDecision is the outcome of a token bucket check.
type LocalDecision struct {
	Allowed    bool
	Burst      int
	Remaining  int
	RetryAfter time.Duration
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps one token bucket per key inside the process.
type LocalLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*localEntry
}

// NewLocalLimiter builds a limiter refilling rps tokens per second up to burst.
func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &LocalLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		entries: make(map[string]*localEntry),
	}
}

// Allow consumes a token for key when one is available.
func (l *LocalLimiter) Allow(key string, now time.Time) LocalDecision {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= localLimiterMaxEntries {
			l.evictIdle(now)
		}
		entry = &localEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = now

	decision := LocalDecision{Burst: l.burst}

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return decision
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		decision.RetryAfter = delay
		return decision
	}

	decision.Allowed = true
	decision.Remaining = int(entry.limiter.TokensAt(now))
	return decision
}

func (l *LocalLimiter) evictIdle(now time.Time) {
	for key, entry := range l.entries {
		if now.Sub(entry.lastSeen) > localLimiterIdleTTL {
			delete(l.entries, key)
		}
	}
}
