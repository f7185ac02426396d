package domain

import (
	"math"
	"time"
)

// Tick is one trade print from the spot feed. Timestamp is Unix seconds with
// millisecond precision.
type Tick struct {
	Price     float64
	Quantity  float64
	Timestamp float64
}

// TickFromMillis builds a Tick from an exchange trade time in milliseconds.
func TickFromMillis(price, qty float64, ms int64) Tick {
	return Tick{Price: price, Quantity: qty, Timestamp: float64(ms) / 1000.0}
}

// Time converts the tick timestamp to a time.Time.
func (t Tick) Time() time.Time {
	sec, frac := math.Modf(t.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Age reports how old the tick is relative to now.
func (t Tick) Age(now time.Time) time.Duration {
	return now.Sub(t.Time())
}
