package memory

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a per-address sliding window over connection attempts: each
// address keeps a time-ordered queue of admission timestamps, pruned from the
// front as the window slides. Applied at connection establishment only, not
// per message.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	attempts map[string][]time.Time
	now      func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return NewRateLimiterWithClock(limit, window, time.Now)
}

// NewRateLimiterWithClock is test-only for deterministic window arithmetic.
func NewRateLimiterWithClock(limit int, window time.Duration, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		window:   window,
		attempts: make(map[string][]time.Time),
		now:      now,
	}
}

// Allow admits the attempt if the address has seen fewer than limit
// admissions inside the window, recording the new timestamp on admission.
func (l *RateLimiter) Allow(_ context.Context, addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	queue := l.pruneLocked(addr, now)
	if len(queue) >= l.limit {
		return false
	}
	l.attempts[addr] = append(queue, now)
	return true
}

// Sweep drops addresses whose queues have fully drained, bounding memory
// growth from one-shot clients.
func (l *RateLimiter) Sweep(_ context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for addr := range l.attempts {
		if len(l.pruneLocked(addr, now)) == 0 {
			delete(l.attempts, addr)
		}
	}
}

// pruneLocked drops expired timestamps from the front of an address's queue
// and stores the reslice.
func (l *RateLimiter) pruneLocked(addr string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	queue := l.attempts[addr]
	idx := 0
	for idx < len(queue) && !queue[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		queue = queue[idx:]
		l.attempts[addr] = queue
	}
	return queue
}

// TrackedAddresses reports how many addresses currently hold a queue.
func (l *RateLimiter) TrackedAddresses() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}
