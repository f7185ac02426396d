package lifecycle

import "time"

// CircuitBreaker suppresses new entries for a while after stale data was
// observed. Exits and settlement are never blocked by it.
type CircuitBreaker struct {
	blockedUntil time.Time
	trips        int
}

// Trip blocks entries until now+d. An earlier deadline never shortens an
// active block.
func (b *CircuitBreaker) Trip(now time.Time, d time.Duration) {
	until := now.Add(d)
	if until.After(b.blockedUntil) {
		b.blockedUntil = until
	}
	b.trips++
}

// Active reports whether entries are currently blocked.
func (b *CircuitBreaker) Active(now time.Time) bool {
	return now.Before(b.blockedUntil)
}

// BlockedUntil returns the current deadline.
func (b *CircuitBreaker) BlockedUntil() time.Time { return b.blockedUntil }

// Trips counts how many times the breaker fired.
func (b *CircuitBreaker) Trips() int { return b.trips }
