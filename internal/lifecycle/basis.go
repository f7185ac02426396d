package lifecycle

// BasisTracker keeps a rolling mean of the gap between the market's implied
// spot and the external feed.
type BasisTracker struct {
	samples []float64
	next    int
	full    bool
	sum     float64
}

// NewBasisTracker averages over the last n samples.
func NewBasisTracker(n int) *BasisTracker {
	if n < 1 {
		n = 1
	}
	return &BasisTracker{samples: make([]float64, n)}
}

// Add records one basis observation.
func (b *BasisTracker) Add(v float64) {
	if b.full {
		b.sum -= b.samples[b.next]
	}
	b.samples[b.next] = v
	b.sum += v
	b.next++
	if b.next == len(b.samples) {
		b.next = 0
		b.full = true
	}
}

// Len returns the number of samples in the average.
func (b *BasisTracker) Len() int {
	if b.full {
		return len(b.samples)
	}
	return b.next
}

// Offset is the current rolling mean, 0 without samples.
func (b *BasisTracker) Offset() float64 {
	n := b.Len()
	if n == 0 {
		return 0
	}
	return b.sum / float64(n)
}

// Reset forgets every sample.
func (b *BasisTracker) Reset() {
	clear(b.samples)
	b.next, b.full, b.sum = 0, false, 0
}
