// Package strategy turns tick history and live quotes into trade decisions
// for 5-minute up/down windows: the signal generator, the bet-size ladder and
// the exit rule.
package strategy

import (
	"fmt"
	"strings"
)

// Params holds every tunable of the signal generator and exit rule. The
// zero value is not usable; start from DefaultParams.
type Params struct {
	// Momentum nudge in log-odds space.
	MomentumWeight float64
	MomentumClamp  float64
	LogitClamp     float64

	// Edge gates.
	ExecutionFriction float64
	BaseMinEdge       float64
	MaxStartEdge      float64
	WindowSeconds     float64

	// Price bounds on the chosen side's ask.
	MinAsk float64
	MaxAsk float64

	// Flow gates, in dollars of spot movement.
	ToxicVelocity    float64
	MinVelocity      float64
	VelocityLookback float64

	// Sizing.
	KellyScalar      float64
	VolPenaltyFactor float64
	VolPenaltyCap    float64
	SniperMax        float64
	SniperDivisor    float64
	SniperMinVel     float64
	MaxBetMultiple   float64
	MinShares        int
	MinEVUSDC        float64

	// Ladder.
	Tiers            []float64
	TierRiskFraction float64
	TierHysteresis   float64

	// Exit.
	EjectPrice float64
}

// DefaultTiers is the ascending table of standard bet sizes in USDC.
var DefaultTiers = []float64{
	0.50, 1, 1.5, 2, 2.5, 3, 4, 5, 7.5, 10,
	12.5, 15, 17.5, 20, 22.5, 25, 30, 35, 40, 45,
	50, 60, 70, 80, 90, 100,
}

// DefaultParams returns the production tuning.
func DefaultParams() Params {
	return Params{
		MomentumWeight:    0.15,
		MomentumClamp:     2.0,
		LogitClamp:        20.0,
		ExecutionFriction: 0.015,
		BaseMinEdge:       0.015,
		MaxStartEdge:      0.040,
		WindowSeconds:     300,
		MinAsk:            0.10,
		MaxAsk:            0.95,
		ToxicVelocity:     10.0,
		MinVelocity:       2.0,
		VelocityLookback:  3,
		KellyScalar:       0.10,
		VolPenaltyFactor:  20.0,
		VolPenaltyCap:     0.5,
		SniperMax:         2.0,
		SniperDivisor:     5.0,
		SniperMinVel:      2.0,
		MaxBetMultiple:    5,
		MinShares:         3,
		MinEVUSDC:         0.05,
		Tiers:             append([]float64(nil), DefaultTiers...),
		TierRiskFraction:  0.03,
		TierHysteresis:    0.80,
		EjectPrice:        0.99,
	}
}

// Validate reports every out-of-range parameter at once.
func (p Params) Validate() error {
	var errs []string
	if p.WindowSeconds <= 0 {
		errs = append(errs, "window_seconds must be > 0")
	}
	if p.MomentumClamp < 0 {
		errs = append(errs, "momentum_clamp must be >= 0")
	}
	if p.LogitClamp <= 0 {
		errs = append(errs, "logit_clamp must be > 0")
	}
	if p.MinAsk <= 0 || p.MaxAsk >= 1 || p.MinAsk >= p.MaxAsk {
		errs = append(errs, fmt.Sprintf("ask bounds must satisfy 0 < min_ask < max_ask < 1, got [%.2f, %.2f]", p.MinAsk, p.MaxAsk))
	}
	if p.VelocityLookback <= 0 {
		errs = append(errs, "velocity_lookback must be > 0")
	}
	if p.KellyScalar <= 0 || p.KellyScalar > 1 {
		errs = append(errs, "kelly_scalar must be in (0, 1]")
	}
	if p.MaxBetMultiple < 1 {
		errs = append(errs, "max_bet_multiple must be >= 1")
	}
	if p.MinShares < 1 {
		errs = append(errs, "min_shares must be >= 1")
	}
	if p.SniperDivisor <= 0 {
		errs = append(errs, "sniper_divisor must be > 0")
	}
	if len(p.Tiers) == 0 {
		errs = append(errs, "tiers must not be empty")
	}
	for i := 1; i < len(p.Tiers); i++ {
		if p.Tiers[i] <= p.Tiers[i-1] {
			errs = append(errs, "tiers must be strictly ascending")
			break
		}
	}
	if p.TierHysteresis <= 0 || p.TierHysteresis > 1 {
		errs = append(errs, "tier_hysteresis must be in (0, 1]")
	}
	if p.EjectPrice <= 0 || p.EjectPrice >= 1 {
		errs = append(errs, "eject_price must be in (0, 1)")
	}
	if len(errs) > 0 {
		return fmt.Errorf("strategy: invalid params: %s", strings.Join(errs, "; "))
	}
	return nil
}
