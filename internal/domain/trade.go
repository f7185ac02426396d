package domain

import "time"

// TradeRecord is one realized trade in the session history. Records are
// addressed by TradeID so a late outcome correction patches the right one.
type TradeRecord struct {
	TradeID     string    `json:"trade_id"`
	ConditionID string    `json:"condition_id"`
	Slug        string    `json:"slug"`
	Side        Outcome   `json:"side"`
	EntryPrice  float64   `json:"entry_price"`
	SizeUSDC    float64   `json:"size_usdc"`
	PnL         float64   `json:"pnl"`
	Won         bool      `json:"won"`
	Winner      string    `json:"winner"`
	Reason      string    `json:"reason"`
	ClosedAt    time.Time `json:"closed_at"`
	Corrected   bool      `json:"corrected"`
}

// SessionStats accumulates realized results since process start.
type SessionStats struct {
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	TotalPnL float64 `json:"total_pnl"`
}

// WinRate returns wins over trades, or 0 before the first trade.
func (s SessionStats) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

// JournalEvent distinguishes open and close journal lines.
type JournalEvent string

const (
	JournalOpen  JournalEvent = "OPEN"
	JournalClose JournalEvent = "CLOSE"
)

// JournalEntry is one line of the trade journal. CLOSE entries repeat the
// OPEN fields so each line stands on its own.
type JournalEntry struct {
	SessionID        string       `json:"session_id"`
	TradeID          string       `json:"trade_id"`
	TimestampOpen    string       `json:"timestamp_open"`
	TimestampClose   string       `json:"timestamp_close,omitempty"`
	MarketQuestion   string       `json:"market_question"`
	MarketSlug       string       `json:"market_slug"`
	MarketEndDate    string       `json:"market_end_date"`
	WindowStartPrice float64      `json:"window_start_price"`
	SignalSide       string       `json:"signal_side"`
	TrueProb         float64      `json:"true_prob"`
	Edge             float64      `json:"edge"`
	MicroVol         float64      `json:"micro_vol"`
	TickVelocity     float64      `json:"tick_velocity"`
	MomentumSign     int          `json:"momentum_sign"`
	BTCPriceAtEntry  float64      `json:"btc_price_at_entry"`
	PositionSide     string       `json:"position_side"`
	EntryPrice       float64      `json:"entry_price"`
	Shares           int          `json:"shares"`
	USDCRisked       float64      `json:"usdc_risked"`
	EventType        JournalEvent `json:"event_type"`
	ExpectedPrice    float64      `json:"expected_price"`
	SlippageCents    float64      `json:"slippage_cents"`
	BTCPriceAtClose  *float64     `json:"btc_price_at_close"`
	Winner           string       `json:"winner,omitempty"`
	Won              *bool        `json:"won"`
	PnL              *float64     `json:"pnl"`
	ROI              *float64     `json:"roi"`
	ExitReason       string       `json:"exit_reason,omitempty"`
}
