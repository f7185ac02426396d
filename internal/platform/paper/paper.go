// Package paper simulates order execution against live books so the bot
// can run end to end without spending collateral.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
)

// Resolver reports the settled state of a market by condition id.
type Resolver interface {
	Resolve(ctx context.Context, conditionID string) (polymarket.Resolution, error)
}

type holding struct {
	conditionID string
	shares      float64
	cost        float64
}

// Executor is an in-memory domain.OrderExecutor and domain.Redeemer.
// Fill-or-kill orders fill completely at the touch when the limit allows
// and are killed otherwise. Resting orders are recorded but never match.
type Executor struct {
	quotes   domain.QuoteSource
	resolver Resolver
	logger   *slog.Logger

	mu       sync.Mutex
	balance  float64
	holdings map[string]*holding
	resting  map[string]domain.OrderRequest
	tokenCID map[string]string
}

// NewExecutor starts a paper account with balance USDC.
func NewExecutor(balance float64, quotes domain.QuoteSource, resolver Resolver, logger *slog.Logger) *Executor {
	return &Executor{
		quotes:   quotes,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "paper")),
		balance:  balance,
		holdings: make(map[string]*holding),
		resting:  make(map[string]domain.OrderRequest),
		tokenCID: make(map[string]string),
	}
}

// Track records which condition a token belongs to so Redeem can find the
// holdings of a condition.
func (e *Executor) Track(w *domain.MarketWindow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, token := range w.Tokens {
		e.tokenCID[token] = w.ConditionID
	}
}

// TrackDiscovery wraps d so every window it returns is tracked.
func (e *Executor) TrackDiscovery(d domain.WindowDiscovery) domain.WindowDiscovery {
	return trackingDiscovery{inner: d, exec: e}
}

type trackingDiscovery struct {
	inner domain.WindowDiscovery
	exec  *Executor
}

func (t trackingDiscovery) CurrentWindow(ctx context.Context, now time.Time) (*domain.MarketWindow, error) {
	w, err := t.inner.CurrentWindow(ctx, now)
	if err == nil && w != nil {
		t.exec.Track(w)
	}
	return w, err
}

// Buy fills the whole size at the best ask when it is at or below the limit.
func (e *Executor) Buy(ctx context.Context, req domain.OrderRequest) (*domain.Fill, error) {
	req.Side = domain.OrderSideBuy
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ask, _, err := e.touch(ctx, req.TokenID)
	if err != nil {
		return nil, err
	}
	if ask <= 0 || ask > req.Price {
		return nil, fmt.Errorf("paper: %w: ask %.4f above limit %.4f", domain.ErrNoFill, ask, req.Price)
	}

	shares := math.Floor(req.Size)
	cost := shares * ask

	e.mu.Lock()
	defer e.mu.Unlock()
	if cost > e.balance {
		return nil, fmt.Errorf("paper: %w: cost %.2f exceeds balance %.2f", domain.ErrNoFill, cost, e.balance)
	}
	e.balance -= cost
	h := e.holdings[req.TokenID]
	if h == nil {
		h = &holding{conditionID: e.tokenCID[req.TokenID]}
		e.holdings[req.TokenID] = h
	}
	h.shares += shares
	h.cost += cost

	fill := &domain.Fill{OrderID: "paper-" + uuid.NewString(), Shares: shares, CostUSDC: cost}
	e.logger.InfoContext(ctx, "paper buy", slog.String("order_id", fill.OrderID),
		slog.Float64("shares", shares), slog.Float64("price", ask))
	return fill, nil
}

// Sell fills the whole size at the best bid when it is at or above the limit.
func (e *Executor) Sell(ctx context.Context, req domain.OrderRequest) (*domain.Fill, error) {
	req.Side = domain.OrderSideSell
	if err := req.Validate(); err != nil {
		return nil, err
	}
	_, bid, err := e.touch(ctx, req.TokenID)
	if err != nil {
		return nil, err
	}
	if bid <= 0 || bid < req.Price {
		return nil, fmt.Errorf("paper: %w: bid %.4f below limit %.4f", domain.ErrNoFill, bid, req.Price)
	}

	shares := math.Floor(req.Size)

	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.holdings[req.TokenID]
	if h == nil || h.shares < shares {
		return nil, fmt.Errorf("paper: %w: selling %.0f shares without holding them", domain.ErrInvalidOrder, shares)
	}
	proceeds := shares * bid
	h.cost -= h.cost * shares / h.shares
	h.shares -= shares
	if h.shares <= 0 {
		delete(e.holdings, req.TokenID)
	}
	e.balance += proceeds

	fill := &domain.Fill{OrderID: "paper-" + uuid.NewString(), Shares: shares, CostUSDC: proceeds}
	e.logger.InfoContext(ctx, "paper sell", slog.String("order_id", fill.OrderID),
		slog.Float64("shares", shares), slog.Float64("price", bid))
	return fill, nil
}

// PlaceResting records a GTC order.
func (e *Executor) PlaceResting(_ context.Context, req domain.OrderRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	id := "paper-" + uuid.NewString()
	e.mu.Lock()
	e.resting[id] = req
	e.mu.Unlock()
	return id, nil
}

// CancelAll drops every resting order.
func (e *Executor) CancelAll(context.Context) error {
	e.mu.Lock()
	clear(e.resting)
	e.mu.Unlock()
	return nil
}

// Balance returns the simulated collateral.
func (e *Executor) Balance(context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance, nil
}

// Positions lists simulated holdings.
func (e *Executor) Positions(context.Context) ([]domain.ExchangePosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.ExchangePosition, 0, len(e.holdings))
	for token, h := range e.holdings {
		out = append(out, domain.ExchangePosition{
			Asset:       token,
			ConditionID: h.conditionID,
			Size:        h.shares,
			AvgPrice:    h.cost / h.shares,
		})
	}
	return out, nil
}

// Resting returns a copy of the open resting orders.
func (e *Executor) Resting() map[string]domain.OrderRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.resting)
}

// Redeem pays one USDC per winning share of the condition and drops the
// losing shares.
func (e *Executor) Redeem(ctx context.Context, conditionID string) (string, error) {
	if e.resolver == nil {
		return "", fmt.Errorf("paper: redeem %s: no resolver", conditionID)
	}
	res, err := e.resolver.Resolve(ctx, conditionID)
	if err != nil {
		return "", fmt.Errorf("paper: redeem %s: %w", conditionID, err)
	}
	winning := res.WinningToken()

	e.mu.Lock()
	defer e.mu.Unlock()
	var paid float64
	for _, token := range res.Tokens {
		h, ok := e.holdings[token]
		if !ok {
			continue
		}
		if token == winning {
			paid += h.shares
		}
		delete(e.holdings, token)
	}
	e.balance += paid
	e.logger.InfoContext(ctx, "paper redeem", slog.String("condition_id", conditionID),
		slog.String("winner", string(res.Winner)), slog.Float64("paid", paid))
	return fmt.Sprintf("paper-redeem-%s", conditionID), nil
}

func (e *Executor) touch(ctx context.Context, tokenID string) (ask, bid float64, err error) {
	asks, bids, err := e.quotes.Quotes(ctx, map[domain.Outcome]string{domain.OutcomeUp: tokenID})
	if err != nil {
		return 0, 0, fmt.Errorf("paper: quote %s: %w", tokenID, err)
	}
	return asks[domain.OutcomeUp], bids[domain.OutcomeUp], nil
}
