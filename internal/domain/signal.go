package domain

import "math"

// ModelSide is the side as the probability model sees it: YES means the
// window finishes above the strike.
type ModelSide string

const (
	SideYes ModelSide = "YES"
	SideNo  ModelSide = "NO"
)

// Outcome maps a model side onto the market instrument that pays out when
// the model is right.
func (s ModelSide) Outcome() Outcome {
	if s == SideYes {
		return OutcomeUp
	}
	return OutcomeDown
}

// Signal is an accepted trade decision. It is produced once per evaluation
// and never mutated.
type Signal struct {
	Side         ModelSide
	TrueProb     float64
	Edge         float64
	SizeUSDC     float64
	Shares       int
	MicroVol     float64
	TickVelocity float64
	MomentumSign int
	MarketPrice  float64
	EVUSDC       float64
}

// Finite reports whether the numeric fields that drive an order are usable.
func (s Signal) Finite() bool {
	for _, v := range []float64{s.TrueProb, s.Edge, s.SizeUSDC, s.MarketPrice} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ExitAction names what an exit rule asks the lifecycle to do.
type ExitAction string

const ExitSellToClose ExitAction = "SELL_TO_CLOSE"

// ExitSignal is an ephemeral request to close the open position.
type ExitSignal struct {
	Action ExitAction
	Reason string
	Side   Outcome
}
