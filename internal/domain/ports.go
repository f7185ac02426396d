package domain

import (
	"context"
	"time"
)

// TickSource streams spot trades in arrival order until ctx is done.
type TickSource interface {
	Run(ctx context.Context, out chan<- Tick) error
}

// QuoteSource returns best asks and bids per outcome. Missing quotes are
// simply absent from the maps.
type QuoteSource interface {
	Quotes(ctx context.Context, tokens map[Outcome]string) (asks, bids map[Outcome]float64, err error)
}

// WindowDiscovery finds the market window that is live at now.
type WindowDiscovery interface {
	CurrentWindow(ctx context.Context, now time.Time) (*MarketWindow, error)
}

// OutcomeOracle resolves the authoritative winner of a closed window.
type OutcomeOracle interface {
	Winner(ctx context.Context, slug string) (Outcome, error)
}

// OrderExecutor places and manages orders on the exchange. Buy and Sell
// return a nil Fill with a nil error when the exchange acknowledged the order
// without reporting a match.
type OrderExecutor interface {
	Buy(ctx context.Context, req OrderRequest) (*Fill, error)
	Sell(ctx context.Context, req OrderRequest) (*Fill, error)
	PlaceResting(ctx context.Context, req OrderRequest) (string, error)
	CancelAll(ctx context.Context) error
	Balance(ctx context.Context) (float64, error)
	Positions(ctx context.Context) ([]ExchangePosition, error)
}

// Redeemer converts resolved outcome tokens of a condition back to collateral.
type Redeemer interface {
	Redeem(ctx context.Context, conditionID string) (string, error)
}

// OpenTradeParams carries everything known about a trade at fill time.
type OpenTradeParams struct {
	Window           *MarketWindow
	WindowStartPrice float64
	Signal           Signal
	SpotAtEntry      float64
	Position         OpenPosition
	ExpectedPrice    float64
}

// CloseTradeParams carries the realized result of a trade.
type CloseTradeParams struct {
	SpotAtClose float64
	Winner      string
	Won         bool
	PnL         float64
	Reason      string
}

// TradeLog records trade lifecycles. Callers never depend on its success.
type TradeLog interface {
	OpenTrade(p OpenTradeParams) string
	CloseTrade(tradeID string, p CloseTradeParams)
	CloseAllPending(spot float64, reason string)
}

// JournalStore mirrors journal entries into a queryable store.
type JournalStore interface {
	Upsert(ctx context.Context, e JournalEntry) error
	ListRecent(ctx context.Context, limit int) ([]JournalEntry, error)
}
