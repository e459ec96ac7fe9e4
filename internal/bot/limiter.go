package bot

import "sync"

// Limiter caps the number of generation calls in flight. Requests beyond
// the cap are rejected immediately, never queued.
type Limiter struct {
	mu       sync.Mutex
	max      int
	inFlight int
}

// NewLimiter creates a Limiter allowing max concurrent holders.
func NewLimiter(max int) *Limiter {
	if max < 1 {
		max = 1
	}
	return &Limiter{max: max}
}

// TryAcquire claims a slot, returning false when all slots are taken.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight >= l.max {
		return false
	}
	l.inFlight++
	return true
}

// Release frees a slot claimed by TryAcquire.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight > 0 {
		l.inFlight--
	}
}

// InFlight returns the number of currently held slots.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}
