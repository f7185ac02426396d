package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/tick"
)

func ticksAt(prices ...float64) *tick.Buffer {
	b := tick.NewBuffer(tick.LiveCapacity)
	for i, p := range prices {
		b.Push(domain.Tick{Price: p, Timestamp: 1_700_000_000 + float64(i)})
	}
	return b
}

// risingTape ends at 100012 with a +3 last move and 7 dollars of velocity over
// three seconds.
func risingTape() *tick.Buffer {
	return ticksAt(100000, 100001, 100003, 100002, 100004, 100006, 100005, 100007, 100009, 100012)
}

func TestLadderHysteresis(t *testing.T) {
	l := NewLadder(DefaultTiers, 0.03, 0.80)

	assert.Equal(t, 1.5, l.StandardBet(50))
	assert.Equal(t, 2, l.Index())

	// raw 1.30 is above 1.50 * 0.80, so the tier holds.
	assert.Equal(t, 1.5, l.StandardBet(1.30/0.03))
	assert.Equal(t, 2, l.Index())

	// raw 1.15 is below the hysteresis band and steps down.
	assert.Equal(t, 1.0, l.StandardBet(1.15/0.03))
	assert.Equal(t, 1, l.Index())

	// Stepping up is immediate.
	assert.Equal(t, 10.0, l.StandardBet(400))
	assert.Equal(t, 9, l.Index())
}

func TestLadderBottomAndTop(t *testing.T) {
	l := NewLadder(DefaultTiers, 0.03, 0.80)
	assert.Equal(t, 0.5, l.StandardBet(1))
	assert.Equal(t, 0, l.Index())
	assert.Equal(t, 100.0, l.StandardBet(1_000_000))
	assert.Equal(t, len(DefaultTiers)-1, l.Index())
}

func TestEvaluateRejectsWithoutVolatility(t *testing.T) {
	g := NewGenerator(DefaultParams())
	inputs := []Input{
		{Spot: 100012, Strike: 100000, TimeLeft: 150, YesAsk: 0.5, NoAsk: 0.5, Balance: 100, Ticks: ticksAt()},
		{Spot: 100012, Strike: 100000, TimeLeft: 150, YesAsk: 0.5, NoAsk: 0.5, Balance: 100, Ticks: ticksAt(100000)},
		{Spot: 1, Strike: 0, TimeLeft: 1, YesAsk: 0.01, NoAsk: 0.01, Balance: 1e6, Ticks: ticksAt(100, 100, 100, 100)},
	}
	for _, in := range inputs {
		_, reject := g.Evaluate(in)
		assert.Equal(t, RejectNoVol, reject)
	}
	assert.Equal(t, 0, g.Ladder().Index(), "ladder must not move on early rejects")
}

func TestEvaluateAcceptsMomentumYes(t *testing.T) {
	g := NewGenerator(DefaultParams())

	sig, reject := g.Evaluate(Input{
		Spot:     100012,
		Strike:   100000,
		TimeLeft: 150,
		YesAsk:   0.80,
		NoAsk:    0.22,
		Balance:  100,
		Ticks:    risingTape(),
	})
	require.Equal(t, Accepted, reject)

	assert.Equal(t, domain.SideYes, sig.Side)
	assert.Equal(t, domain.OutcomeUp, sig.Side.Outcome())
	assert.Equal(t, 1, sig.MomentumSign)
	assert.Equal(t, 7.0, sig.TickVelocity)
	assert.Equal(t, 0.80, sig.MarketPrice)
	assert.Greater(t, sig.TrueProb, 0.999)
	assert.InDelta(t, sig.TrueProb-0.80-0.015, sig.Edge, 1e-12)

	// Standard bet $3 at balance 100, sniper-boosted Kelly caps at 5x = $15,
	// floored to 18 shares at 0.80.
	assert.Equal(t, 5, g.Ladder().Index())
	assert.Equal(t, 18, sig.Shares)
	assert.InDelta(t, 14.4, sig.SizeUSDC, 1e-9)
	assert.InDelta(t, sig.Edge*sig.SizeUSDC, sig.EVUSDC, 1e-12)
	assert.True(t, sig.Finite())
}

func TestEvaluateGates(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Reject
	}{
		{
			name: "edge below dynamic minimum",
			in:   Input{Spot: 100012, Strike: 100000, TimeLeft: 150, YesAsk: 0.99, NoAsk: 0.99, Balance: 100, Ticks: risingTape()},
			want: RejectEdge,
		},
		{
			name: "longshot ask",
			in:   Input{Spot: 100012, Strike: 101000, TimeLeft: 150, YesAsk: 0.95, NoAsk: 0.05, Balance: 100, Ticks: risingTape()},
			want: RejectLongshot,
		},
		{
			name: "toxic flow against yes",
			in: Input{Spot: 100020, Strike: 100000, TimeLeft: 150, YesAsk: 0.80, NoAsk: 0.22, Balance: 100,
				Ticks: ticksAt(100000, 100001, 100003, 100002, 100004, 100003, 100004, 100010, 100025, 100020)},
			want: RejectToxicFlow,
		},
		{
			name: "dead market",
			in: Input{Spot: 100000.6, Strike: 100000, TimeLeft: 150, YesAsk: 0.80, NoAsk: 0.22, Balance: 100,
				Ticks: ticksAt(100000, 100000.5, 100000.2, 100000.6)},
			want: RejectLowVelocity,
		},
		{
			name: "ask above sizing cap",
			in:   Input{Spot: 100012, Strike: 100000, TimeLeft: 10, YesAsk: 0.96, NoAsk: 0.06, Balance: 100, Ticks: risingTape()},
			want: RejectSizing,
		},
		{
			name: "below minimum shares",
			in:   Input{Spot: 100012, Strike: 100000, TimeLeft: 150, YesAsk: 0.80, NoAsk: 0.22, Balance: 1, Ticks: risingTape()},
			want: RejectSizing,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(DefaultParams())
			_, reject := g.Evaluate(tt.in)
			assert.Equal(t, tt.want, reject)
		})
	}
}

func TestMinEdgeDecaysToExpiry(t *testing.T) {
	g := NewGenerator(DefaultParams())
	assert.InDelta(t, 0.040, g.minEdge(300), 1e-12)
	assert.InDelta(t, 0.0275, g.minEdge(150), 1e-12)
	assert.InDelta(t, 0.015, g.minEdge(0), 1e-12)
}

func TestNudgeIsClamped(t *testing.T) {
	p := DefaultParams()
	p.MomentumWeight = 1000
	g := NewGenerator(p)

	up := g.nudge(0.5, 50, 100, 1e-4, 1)
	down := g.nudge(0.5, 50, 100, 1e-4, -1)
	assert.InDelta(t, 1/(1+0.1353352832366127), up, 1e-9)
	assert.InDelta(t, 1-up, down, 1e-12)
}

func TestCheckExit(t *testing.T) {
	pos := domain.OpenPosition{Side: domain.OutcomeDown}

	_, ok := CheckExit(pos, 0.98, 0.99)
	assert.False(t, ok)

	sig, ok := CheckExit(pos, 0.99, 0.99)
	require.True(t, ok)
	assert.Equal(t, domain.ExitSellToClose, sig.Action)
	assert.Equal(t, domain.OutcomeDown, sig.Side)
	assert.Equal(t, "eject bid 0.99", sig.Reason)
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.MinAsk = 0.9
	p.MaxAsk = 0.5
	p.Tiers = []float64{2, 1}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ask bounds")
	assert.Contains(t, err.Error(), "ascending")
}
