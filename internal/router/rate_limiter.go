package router

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements per-connection, per-event token bucket limiting
// ARCHITECTURAL DISCOVERY: Per-client state tracking with proper cleanup prevents memory leaks
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]map[string]*bucket // connID -> event -> bucket
	r       rate.Limit
	burst   int
	ttl     time.Duration
	cancel  context.CancelFunc
}

// NewRateLimiter creates a limiter allowing eventsPerSecond with the given burst
// for each (connection, event) pair
func NewRateLimiter(eventsPerSecond float64, burst int) *RateLimiter {
	ctx, cancel := context.WithCancel(context.Background())
	rl := &RateLimiter{
		clients: make(map[string]map[string]*bucket),
		r:       rate.Limit(eventsPerSecond),
		burst:   burst,
		ttl:     10 * time.Minute,
		cancel:  cancel,
	}
	go rl.cleanup(ctx)
	return rl
}

// Allow reports whether connID may send one more event of this kind now
func (rl *RateLimiter) Allow(connID, event string) bool {
	rl.mu.Lock()
	events, ok := rl.clients[connID]
	if !ok {
		events = make(map[string]*bucket)
		rl.clients[connID] = events
	}
	b, ok := events[event]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.r, rl.burst)}
		events[event] = b
	}
	b.lastSeen = time.Now()
	rl.mu.Unlock()

	return b.limiter.Allow()
}

// Forget drops all state for a closed connection
func (rl *RateLimiter) Forget(connID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, connID)
}

// Tracked returns the number of connections with limiter state
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop shuts down the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.cancel()
}

func (rl *RateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evictStale(time.Now())
		}
	}
}

// evictStale removes connections whose every bucket is older than the ttl
func (rl *RateLimiter) evictStale(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for connID, events := range rl.clients {
		stale := true
		for _, b := range events {
			if now.Sub(b.lastSeen) <= rl.ttl {
				stale = false
				break
			}
		}
		if stale {
			delete(rl.clients, connID)
		}
	}
}
