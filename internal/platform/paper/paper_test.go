package paper

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
)

type bookQuotes map[string][2]float64 // token -> ask, bid

func (b bookQuotes) Quotes(_ context.Context, tokens map[domain.Outcome]string) (map[domain.Outcome]float64, map[domain.Outcome]float64, error) {
	asks := map[domain.Outcome]float64{}
	bids := map[domain.Outcome]float64{}
	for o, tok := range tokens {
		if q, ok := b[tok]; ok {
			asks[o], bids[o] = q[0], q[1]
		}
	}
	return asks, bids, nil
}

type fixedResolver polymarket.Resolution

func (f fixedResolver) Resolve(context.Context, string) (polymarket.Resolution, error) {
	return polymarket.Resolution(f), nil
}

type fixedDiscovery struct{ w *domain.MarketWindow }

func (f fixedDiscovery) CurrentWindow(context.Context, time.Time) (*domain.MarketWindow, error) {
	return f.w, nil
}

func newPaper(book bookQuotes, winner domain.Outcome) *Executor {
	return NewExecutor(100, book, fixedResolver{
		Winner: winner,
		Tokens: map[domain.Outcome]string{domain.OutcomeUp: "up", domain.OutcomeDown: "down"},
	}, slog.New(slog.DiscardHandler))
}

func TestBuyFillsAtAsk(t *testing.T) {
	ex := newPaper(bookQuotes{"up": {0.80, 0.78}}, domain.OutcomeUp)
	ctx := context.Background()

	fill, err := ex.Buy(ctx, domain.OrderRequest{TokenID: "up", Price: 0.82, Size: 18.6})
	require.NoError(t, err)
	assert.Equal(t, 18.0, fill.Shares)
	assert.InDelta(t, 14.4, fill.CostUSDC, 1e-9)

	bal, _ := ex.Balance(ctx)
	assert.InDelta(t, 85.6, bal, 1e-9)

	pos, _ := ex.Positions(ctx)
	require.Len(t, pos, 1)
	assert.InDelta(t, 0.80, pos[0].AvgPrice, 1e-9)
}

func TestBuyKilledAboveLimitOrBalance(t *testing.T) {
	ex := newPaper(bookQuotes{"up": {0.85, 0.83}}, domain.OutcomeUp)
	_, err := ex.Buy(context.Background(), domain.OrderRequest{TokenID: "up", Price: 0.82, Size: 10})
	assert.ErrorIs(t, err, domain.ErrNoFill)

	_, err = ex.Buy(context.Background(), domain.OrderRequest{TokenID: "up", Price: 0.90, Size: 500})
	assert.ErrorIs(t, err, domain.ErrNoFill)

	_, err = ex.Buy(context.Background(), domain.OrderRequest{TokenID: "none", Price: 0.90, Size: 1})
	assert.ErrorIs(t, err, domain.ErrNoFill)
}

func TestSellAtBid(t *testing.T) {
	book := bookQuotes{"up": {0.80, 0.78}}
	ex := newPaper(book, domain.OutcomeUp)
	ctx := context.Background()

	_, err := ex.Sell(ctx, domain.OrderRequest{TokenID: "up", Price: 0.5, Size: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = ex.Buy(ctx, domain.OrderRequest{TokenID: "up", Price: 0.82, Size: 10})
	require.NoError(t, err)

	book["up"] = [2]float64{0.99, 0.97}
	fill, err := ex.Sell(ctx, domain.OrderRequest{TokenID: "up", Price: 0.95, Size: 10})
	require.NoError(t, err)
	assert.InDelta(t, 9.7, fill.CostUSDC, 1e-9)

	bal, _ := ex.Balance(ctx)
	assert.InDelta(t, 101.7, bal, 1e-9)
	pos, _ := ex.Positions(ctx)
	assert.Empty(t, pos)
}

func TestRestingAndCancel(t *testing.T) {
	ex := newPaper(bookQuotes{}, domain.OutcomeUp)
	id, err := ex.PlaceResting(context.Background(), domain.OrderRequest{TokenID: "up", Side: domain.OrderSideSell, Price: 0.99, Size: 5})
	require.NoError(t, err)
	assert.Contains(t, ex.Resting(), id)

	require.NoError(t, ex.CancelAll(context.Background()))
	assert.Empty(t, ex.Resting())
}

func TestRedeemPaysWinningShares(t *testing.T) {
	tests := []struct {
		name    string
		winner  domain.Outcome
		balance float64
	}{
		{"won", domain.OutcomeUp, 100 - 8 + 10},
		{"lost", domain.OutcomeDown, 100 - 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := newPaper(bookQuotes{"up": {0.80, 0.78}}, tt.winner)
			ctx := context.Background()
			w := &domain.MarketWindow{ConditionID: "0xc", Tokens: map[domain.Outcome]string{domain.OutcomeUp: "up", domain.OutcomeDown: "down"}}
			_, err := ex.TrackDiscovery(fixedDiscovery{w}).CurrentWindow(ctx, time.Now())
			require.NoError(t, err)

			_, err = ex.Buy(ctx, domain.OrderRequest{TokenID: "up", Price: 0.82, Size: 10})
			require.NoError(t, err)
			pos, _ := ex.Positions(ctx)
			require.Len(t, pos, 1)
			assert.Equal(t, "0xc", pos[0].ConditionID)

			_, err = ex.Redeem(ctx, "0xc")
			require.NoError(t, err)
			bal, _ := ex.Balance(ctx)
			assert.InDelta(t, tt.balance, bal, 1e-9)
			pos, _ = ex.Positions(ctx)
			assert.Empty(t, pos)
		})
	}
}
