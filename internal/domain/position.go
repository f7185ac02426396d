package domain

import "time"

// OpenPosition is the single live position of the current window.
type OpenPosition struct {
	TradeID    string
	Side       Outcome
	TokenID    string
	EntryPrice float64
	SizeUSDC   float64
	Shares     float64
	OpenedAt   time.Time
	Recovered  bool
}

// ExchangePosition is a holding reported by the exchange for the wallet.
type ExchangePosition struct {
	Asset       string
	ConditionID string
	Size        float64
	AvgPrice    float64
}
