package strategy

// Ladder quantizes a fraction of the balance into a discrete standard bet.
// The current tier persists across calls and only steps down once the raw
// target falls below a hysteresis fraction of the current tier.
type Ladder struct {
	tiers        []float64
	riskFraction float64
	hysteresis   float64
	index        int
}

// NewLadder builds a ladder over an ascending tier table.
func NewLadder(tiers []float64, riskFraction, hysteresis float64) *Ladder {
	return &Ladder{
		tiers:        append([]float64(nil), tiers...),
		riskFraction: riskFraction,
		hysteresis:   hysteresis,
	}
}

// StandardBet returns the tier bet for balance and records the new tier.
func (l *Ladder) StandardBet(balance float64) float64 {
	raw := balance * l.riskFraction

	target := 0
	for i, bet := range l.tiers {
		if bet <= raw {
			target = i
		}
	}

	if target < l.index && l.index < len(l.tiers) && raw >= l.tiers[l.index]*l.hysteresis {
		return l.tiers[l.index]
	}
	l.index = target
	return l.tiers[l.index]
}

// Index is the current tier position.
func (l *Ladder) Index() int { return l.index }

// SetIndex restores a previously saved tier position.
func (l *Ladder) SetIndex(i int) {
	if i >= 0 && i < len(l.tiers) {
		l.index = i
	}
}
