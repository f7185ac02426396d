package domain

import (
	"maps"
	"time"
)

// Outcome is the market instrument side of an up/down window.
type Outcome string

const (
	OutcomeUp   Outcome = "Up"
	OutcomeDown Outcome = "Down"
)

// Opposite returns the other instrument side.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeUp {
		return OutcomeDown
	}
	return OutcomeUp
}

// Valid reports whether o is one of the two known outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeUp || o == OutcomeDown
}

// MarketWindow is one 5-minute binary market. A window is replaced wholesale
// when discovery reports a new condition id; only the quote maps are
// refreshed in place.
type MarketWindow struct {
	ConditionID string
	Question    string
	Slug        string
	EndTime     time.Time
	Tokens      map[Outcome]string
	Asks        map[Outcome]float64
	Bids        map[Outcome]float64
}

// TimeLeft returns the seconds remaining until the window closes.
func (w *MarketWindow) TimeLeft(now time.Time) float64 {
	return w.EndTime.Sub(now).Seconds()
}

// Token returns the token id for the outcome.
func (w *MarketWindow) Token(o Outcome) (string, bool) {
	id, ok := w.Tokens[o]
	return id, ok && id != ""
}

// OutcomeForToken maps a token id back to its outcome.
func (w *MarketWindow) OutcomeForToken(tokenID string) (Outcome, bool) {
	for o, id := range w.Tokens {
		if id == tokenID {
			return o, true
		}
	}
	return "", false
}

// Ask returns the best ask for the outcome when one is known.
func (w *MarketWindow) Ask(o Outcome) (float64, bool) {
	v, ok := w.Asks[o]
	return v, ok && v > 0
}

// Bid returns the best bid for the outcome when one is known.
func (w *MarketWindow) Bid(o Outcome) (float64, bool) {
	v, ok := w.Bids[o]
	return v, ok && v > 0
}

// MergeQuotes overwrites quotes with the positive entries of asks and bids.
// Missing or zero quotes leave the previous value untouched.
func (w *MarketWindow) MergeQuotes(asks, bids map[Outcome]float64) {
	if w.Asks == nil {
		w.Asks = make(map[Outcome]float64, 2)
	}
	if w.Bids == nil {
		w.Bids = make(map[Outcome]float64, 2)
	}
	for o, v := range asks {
		if v > 0 {
			w.Asks[o] = v
		}
	}
	for o, v := range bids {
		if v > 0 {
			w.Bids[o] = v
		}
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (w *MarketWindow) Clone() *MarketWindow {
	if w == nil {
		return nil
	}
	c := *w
	c.Tokens = maps.Clone(w.Tokens)
	c.Asks = maps.Clone(w.Asks)
	c.Bids = maps.Clone(w.Bids)
	return &c
}
