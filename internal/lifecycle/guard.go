package lifecycle

import "sync/atomic"

// Guard is a single-slot in-flight flag. Acquire must happen before an order
// is dispatched so that a second tick cannot start a duplicate.
type Guard struct {
	busy atomic.Bool
}

// TryAcquire takes the slot, reporting false when it is already held.
func (g *Guard) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release frees the slot. Releasing a free guard is a no-op.
func (g *Guard) Release() {
	g.busy.Store(false)
}

// Busy reports whether an order is in flight.
func (g *Guard) Busy() bool {
	return g.busy.Load()
}
