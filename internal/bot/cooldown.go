package bot

import (
	"sync"
	"time"
)

// Cooldown tracks the last accepted invocation per user and enforces a
// minimum spacing between them. The timestamp is marked on every accepted
// attempt, whether or not the generation later succeeds.
type Cooldown struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time // injectable for tests
}

// NewCooldown creates a Cooldown with the given window. A zero window
// disables the guard.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Check returns zero if the user may proceed, marking their timestamp, or
// the remaining wait time if they are still inside the cooldown window.
func (c *Cooldown) Check(userID string) time.Duration {
	if c.window <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.last[userID]; ok {
		if remaining := c.window - now.Sub(last); remaining > 0 {
			return remaining
		}
	}
	c.last[userID] = now
	return 0
}
