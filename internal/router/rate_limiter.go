package router

import (
	"sync"
	"time"
)

// RateLimiter enforces a per-identity event budget of 100 per minute with a
// window that resets on the minute boundary relative to the first event.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimit
}

type clientLimit struct {
	eventCount  int
	windowStart time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientLimit),
	}
}

// Allow reports whether the identity may emit another event.
func (rl *RateLimiter) Allow(identityID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.clients[identityID]
	if !exists {
		rl.clients[identityID] = &clientLimit{
			eventCount:  1,
			windowStart: now,
		}
		return true
	}

	if now.Sub(limit.windowStart) >= time.Minute {
		limit.eventCount = 1
		limit.windowStart = now
		return true
	}

	if limit.eventCount >= 100 {
		return false
	}
	limit.eventCount++
	return true
}

// Cleanup drops identities idle for longer than five windows. Call
// periodically to bound the map.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for identityID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.clients, identityID)
		}
	}
}
