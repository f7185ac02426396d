package engine

import (
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

const recentTrades = 20

// Status is an immutable snapshot of the bot for the HTTP API.
type Status struct {
	UpdatedAt     time.Time            `json:"updated_at"`
	State         string               `json:"state"`
	Balance       float64              `json:"balance"`
	StartBalance  float64              `json:"start_balance"`
	Spot          float64              `json:"spot"`
	BasisOffset   float64              `json:"basis_offset"`
	BufferedTicks int                  `json:"buffered_ticks"`
	LadderIndex   int                  `json:"ladder_index"`
	BreakerActive bool                 `json:"breaker_active"`
	Window        *WindowStatus        `json:"window"`
	Position      *PositionStatus      `json:"position"`
	Stats         domain.SessionStats  `json:"stats"`
	WinRate       float64              `json:"win_rate"`
	Recent        []domain.TradeRecord `json:"recent_trades"`
}

// WindowStatus describes the active market window.
type WindowStatus struct {
	ConditionID string    `json:"condition_id"`
	Slug        string    `json:"slug"`
	Question    string    `json:"question"`
	EndTime     time.Time `json:"end_time"`
	TimeLeft    float64   `json:"time_left_secs"`
	Strike      float64   `json:"strike"`
	UpAsk       float64   `json:"up_ask"`
	UpBid       float64   `json:"up_bid"`
	DownAsk     float64   `json:"down_ask"`
	DownBid     float64   `json:"down_bid"`
}

// PositionStatus describes the open position and its standing against the
// strike.
type PositionStatus struct {
	TradeID      string  `json:"trade_id"`
	Side         string  `json:"side"`
	EntryPrice   float64 `json:"entry_price"`
	SizeUSDC     float64 `json:"size_usdc"`
	Shares       float64 `json:"shares"`
	Recovered    bool    `json:"recovered"`
	Winning      bool    `json:"winning"`
	ProjectedPnL float64 `json:"projected_pnl"`
}

func (e *Engine) publishStatus() {
	now := e.now()
	m := e.machine
	s := &Status{
		UpdatedAt:     now,
		State:         string(m.State()),
		Balance:       e.balance,
		StartBalance:  e.startBalance,
		Spot:          e.lastSpot,
		BasisOffset:   m.BasisOffset(),
		BufferedTicks: e.buf.Len(),
		LadderIndex:   e.gen.Ladder().Index(),
		BreakerActive: m.Breaker().Active(now),
		Stats:         m.Stats(),
	}
	s.WinRate = s.Stats.WinRate()

	hist := m.History()
	if len(hist) > recentTrades {
		hist = hist[len(hist)-recentTrades:]
	}
	s.Recent = hist

	if w := m.Window(); w != nil {
		s.Window = &WindowStatus{
			ConditionID: w.ConditionID,
			Slug:        w.Slug,
			Question:    w.Question,
			EndTime:     w.EndTime,
			TimeLeft:    max(0, w.TimeLeft(now)),
			Strike:      m.Strike(),
			UpAsk:       w.Asks[domain.OutcomeUp],
			UpBid:       w.Bids[domain.OutcomeUp],
			DownAsk:     w.Asks[domain.OutcomeDown],
			DownBid:     w.Bids[domain.OutcomeDown],
		}
	}
	if p := m.Position(); p != nil {
		ps := &PositionStatus{
			TradeID:    p.TradeID,
			Side:       string(p.Side),
			EntryPrice: p.EntryPrice,
			SizeUSDC:   p.SizeUSDC,
			Shares:     p.Shares,
			Recovered:  p.Recovered,
		}
		if strike := m.Strike(); strike > 0 && e.lastSpot > 0 {
			up := e.lastSpot >= strike
			ps.Winning = (p.Side == domain.OutcomeUp) == up
			if ps.Winning && p.EntryPrice > 0 {
				ps.ProjectedPnL = (1 - p.EntryPrice) * (p.SizeUSDC / p.EntryPrice)
			} else if !ps.Winning {
				ps.ProjectedPnL = -p.SizeUSDC
			}
		}
		s.Position = ps
	}
	e.status.Store(s)
}
