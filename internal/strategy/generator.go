package strategy

import (
	"math"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/micro"
	"github.com/alanyoungcy/updownbot/internal/probability"
	"github.com/alanyoungcy/updownbot/internal/tick"
)

// Reject names the gate that turned an evaluation down. The empty value
// means the evaluation produced a signal.
type Reject string

const (
	Accepted          Reject = ""
	RejectNoVol       Reject = "no_volatility"
	RejectEdge        Reject = "edge_below_min"
	RejectLongshot    Reject = "longshot"
	RejectToxicFlow   Reject = "toxic_flow"
	RejectLowVelocity Reject = "low_velocity"
	RejectSizing      Reject = "sizing"
	RejectLowEV       Reject = "low_ev"
)

// Input is everything one evaluation looks at.
type Input struct {
	Spot     float64
	Strike   float64
	TimeLeft float64
	YesAsk   float64
	NoAsk    float64
	Balance  float64
	Ticks    *tick.Buffer
}

// Generator evaluates ticks and quotes into signals. It carries the bet
// ladder, so a single Generator must be reused for the whole process.
type Generator struct {
	params Params
	ladder *Ladder
}

// NewGenerator creates a Generator with a fresh ladder.
func NewGenerator(p Params) *Generator {
	return &Generator{
		params: p,
		ladder: NewLadder(p.Tiers, p.TierRiskFraction, p.TierHysteresis),
	}
}

// Params returns the generator tuning.
func (g *Generator) Params() Params { return g.params }

// Ladder exposes the bet ladder so callers can size caps off the same tier.
func (g *Generator) Ladder() *Ladder { return g.ladder }

// Evaluate runs every gate in order and returns the first rejection, or a
// sized signal.
func (g *Generator) Evaluate(in Input) (domain.Signal, Reject) {
	p := g.params

	vol := micro.Volatility(in.Ticks)
	if vol <= 0 {
		return domain.Signal{}, RejectNoVol
	}

	velocity := micro.Velocity(in.Ticks, p.VelocityLookback)
	signedMove := micro.SignedMove(in.Ticks)
	momentum := 1
	if signedMove < 0 {
		momentum = -1
	}

	baseProb := probability.FinishProb(in.Spot-in.Strike, vol, in.TimeLeft)
	trueProb := g.nudge(baseProb, velocity, in.Spot, vol, momentum)

	side, prob, ask := domain.SideYes, trueProb, in.YesAsk
	if noEdge, yesEdge := (1-trueProb)-in.NoAsk, trueProb-in.YesAsk; yesEdge < noEdge {
		side, prob, ask = domain.SideNo, 1-trueProb, in.NoAsk
	}
	netEdge := prob - ask - p.ExecutionFriction

	if netEdge < g.minEdge(in.TimeLeft) {
		return domain.Signal{}, RejectEdge
	}
	if ask < p.MinAsk {
		return domain.Signal{}, RejectLongshot
	}
	if velocity >= p.ToxicVelocity {
		falling := signedMove < 0
		if (side == domain.SideYes && falling) || (side == domain.SideNo && !falling) {
			return domain.Signal{}, RejectToxicFlow
		}
	}
	if velocity < p.MinVelocity {
		return domain.Signal{}, RejectLowVelocity
	}

	shares, size := g.size(sizingInput{
		ask:      ask,
		balance:  in.Balance,
		netEdge:  netEdge,
		velocity: velocity,
		momentum: momentum,
		side:     side,
		vol:      vol,
	})
	if shares == 0 {
		return domain.Signal{}, RejectSizing
	}

	ev := netEdge * size
	if ev < p.MinEVUSDC {
		return domain.Signal{}, RejectLowEV
	}

	return domain.Signal{
		Side:         side,
		TrueProb:     prob,
		Edge:         netEdge,
		SizeUSDC:     size,
		Shares:       shares,
		MicroVol:     vol,
		TickVelocity: velocity,
		MomentumSign: momentum,
		MarketPrice:  ask,
		EVUSDC:       ev,
	}, Accepted
}

// nudge shifts the base probability in log-odds space toward the direction
// of the last tick, scaled by velocity expressed as a log return over vol.
func (g *Generator) nudge(baseProb, velocity, spot, vol float64, momentum int) float64 {
	p := g.params
	lo := probability.Logit(baseProb)

	var velocityLR float64
	if spot > 0 {
		velocityLR = math.Log(1 + velocity/spot)
	}
	n := p.MomentumWeight * float64(momentum) * (velocityLR / math.Max(vol, 1e-6))
	lo += probability.Clamp(n, -p.MomentumClamp, p.MomentumClamp)

	return probability.Logistic(lo, p.LogitClamp)
}

// minEdge interpolates from MaxStartEdge at window open down to BaseMinEdge
// at expiry.
func (g *Generator) minEdge(timeLeft float64) float64 {
	p := g.params
	return p.BaseMinEdge + (p.MaxStartEdge-p.BaseMinEdge)*(timeLeft/p.WindowSeconds)
}

type sizingInput struct {
	ask      float64
	balance  float64
	netEdge  float64
	velocity float64
	momentum int
	side     domain.ModelSide
	vol      float64
}

// size applies penalized fractional Kelly, expresses it as a multiple of the
// ladder's standard bet and floors to whole shares. It returns zero shares
// when the trade should not be taken.
func (g *Generator) size(in sizingInput) (int, float64) {
	p := g.params
	if in.ask < p.MinAsk || in.ask > p.MaxAsk || in.netEdge <= 0 {
		return 0, 0
	}

	standard := g.ladder.StandardBet(in.balance)

	denom := 1 - in.ask
	if denom <= 0 {
		return 0, 0
	}
	fFull := in.netEdge / denom

	penalty := math.Min(p.VolPenaltyCap, in.vol*p.VolPenaltyFactor)

	sniper := 1.0
	sniping := (in.side == domain.SideYes && in.momentum > 0) || (in.side == domain.SideNo && in.momentum < 0)
	if sniping && in.velocity >= p.SniperMinVel {
		sniper = math.Min(p.SniperMax, 1+in.velocity/p.SniperDivisor)
	}

	kellySize := fFull * p.KellyScalar * (1 - penalty) * sniper * in.balance

	mult := 1.0
	if standard > 0 {
		mult = kellySize / standard
	}
	mult = probability.Clamp(mult, 1, p.MaxBetMultiple)
	size := math.Min(standard*mult, standard*p.MaxBetMultiple)

	shares := int(math.Floor(size/in.ask + 1e-9))
	if shares < p.MinShares {
		return 0, 0
	}
	return shares, float64(shares) * in.ask
}
