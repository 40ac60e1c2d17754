// Package ratelimit provides token bucket rate limiting for the HTTP API.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int           // requests per window
	Remaining  int           // requests left in the current window
	ResetAt    time.Time     // when the bucket is full again
	RetryAfter time.Duration // wait before retrying, 0 if allowed
}

// Limiter tracks one token bucket per key.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	requests int
	rate     rate.Limit
	burst    int
	stop     chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a limiter allowing requests tokens per window with the
// given burst capacity. Stale buckets are reclaimed in the background until
// Close is called.
func NewLimiter(requests int, window time.Duration, burst int) *Limiter {
	l := &Limiter{
		buckets:  make(map[string]*bucket),
		requests: requests,
		rate:     rate.Limit(float64(requests) / window.Seconds()),
		burst:    burst,
		stop:     make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow checks whether a request under key may proceed.
func (l *Limiter) Allow(key string) Result {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	now := time.Now()
	r := b.limiter.ReserveN(now, 1)
	allowed := r.OK() && r.Delay() == 0
	if !allowed && r.OK() {
		r.Cancel()
	}

	tokens := b.limiter.Tokens()
	// Time until the bucket refills completely.
	refill := time.Duration((float64(l.burst) - tokens) / float64(l.rate) * float64(time.Second))

	var retryAfter time.Duration
	if !allowed {
		retryAfter = max(time.Duration(float64(time.Second)/float64(l.rate)), time.Second)
	}

	return Result{
		Allowed:    allowed,
		Limit:      l.requests,
		Remaining:  max(int(tokens), 0),
		ResetAt:    now.Add(refill),
		RetryAfter: retryAfter,
	}
}

const cleanupInterval = 10 * time.Minute

func (l *Limiter) cleanupLoop() {
	t := time.NewTicker(cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

// cleanup drops buckets that are full and have not been used recently.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	stale := time.Now().Add(-cleanupInterval)
	for key, b := range l.buckets {
		if b.lastSeen.Before(stale) && b.limiter.Tokens() >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	close(l.stop)
}
