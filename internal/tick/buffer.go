// Package tick holds the bounded sliding window of recent spot ticks.
package tick

import "github.com/alanyoungcy/updownbot/internal/domain"

const (
	// LiveCapacity is the buffer size used while trading.
	LiveCapacity = 120
	// BacktestCapacity keeps enough history to span window boundaries in replay.
	BacktestCapacity = 300
)

// Buffer is a fixed-capacity ring of ticks ordered by arrival. The oldest
// tick is evicted when a new one is pushed into a full buffer. It is not safe
// for concurrent use; the event loop owns it.
type Buffer struct {
	items []domain.Tick
	head  int
	size  int
}

// NewBuffer returns an empty buffer holding at most capacity ticks.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{items: make([]domain.Tick, capacity)}
}

// Push appends t, evicting the oldest tick when full.
func (b *Buffer) Push(t domain.Tick) {
	idx := (b.head + b.size) % len(b.items)
	if b.size == len(b.items) {
		b.items[b.head] = t
		b.head = (b.head + 1) % len(b.items)
		return
	}
	b.items[idx] = t
	b.size++
}

// Len returns the number of buffered ticks.
func (b *Buffer) Len() int { return b.size }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return len(b.items) }

// At returns the i-th tick, 0 being the oldest. It panics when i is out of
// range.
func (b *Buffer) At(i int) domain.Tick {
	if i < 0 || i >= b.size {
		panic("tick: index out of range")
	}
	return b.items[(b.head+i)%len(b.items)]
}

// Last returns the newest tick.
func (b *Buffer) Last() (domain.Tick, bool) {
	if b.size == 0 {
		return domain.Tick{}, false
	}
	return b.At(b.size - 1), true
}

// Snapshot copies the ticks oldest first.
func (b *Buffer) Snapshot() []domain.Tick {
	out := make([]domain.Tick, b.size)
	for i := range out {
		out[i] = b.At(i)
	}
	return out
}

// Reset drops every tick.
func (b *Buffer) Reset() {
	b.head, b.size = 0, 0
}
