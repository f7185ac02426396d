package lifecycle

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Config holds the window-scoped limits of the state machine.
type Config struct {
	MaxTradesPerWindow int
	ExitCooldown       time.Duration
	EntryBlackout      time.Duration
	StaleTickAge       time.Duration
	BreakerBlock       time.Duration
	BasisSamples       int
	HistorySize        int
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MaxTradesPerWindow: 2,
		ExitCooldown:       5 * time.Second,
		EntryBlackout:      20 * time.Second,
		StaleTickAge:       500 * time.Millisecond,
		BreakerBlock:       5 * time.Second,
		BasisSamples:       60,
		HistorySize:        200,
	}
}

// State is the coarse lifecycle phase, derived from the position and the
// in-flight guards.
type State string

const (
	StateFlat     State = "FLAT"
	StateEntering State = "ENTERING"
	StateOpen     State = "OPEN"
	StateExiting  State = "EXITING"
)

// Block names why an entry is not admitted right now.
type Block string

const (
	Admitted          Block = ""
	BlockNoWindow     Block = "no_window"
	BlockNoStrike     Block = "no_strike"
	BlockEntryBusy    Block = "entry_in_flight"
	BlockExitBusy     Block = "exit_in_flight"
	BlockPositionOpen Block = "position_open"
	BlockFirstWindow  Block = "skip_first_window"
	BlockStartup      Block = "startup_window"
	BlockTradeCap     Block = "window_trade_cap"
	BlockCooldown     Block = "exit_cooldown"
	BlockBreaker      Block = "circuit_breaker"
	BlockBlackout     Block = "expiry_blackout"
)

// Machine owns the position lifecycle of the bot. It is not safe for
// concurrent use: a single event loop drives every method, while order
// execution happens elsewhere and reports back through Complete* calls.
type Machine struct {
	cfg     Config
	journal domain.TradeLog
	logger  *slog.Logger

	entry Guard
	exit  Guard

	epoch            uint64
	window           *domain.MarketWindow
	strike           float64
	position         *domain.OpenPosition
	tradesThisWindow int
	lastExitAt       time.Time

	skipFirstWindow    bool
	startupConditionID string

	breaker CircuitBreaker
	basis   *BasisTracker
	lastRaw float64

	stats   domain.SessionStats
	history []domain.TradeRecord
	settled []settledWindow
}

// NewMachine builds a machine that skips trading until its first window
// transition.
func NewMachine(cfg Config, journal domain.TradeLog, logger *slog.Logger) *Machine {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	return &Machine{
		cfg:             cfg,
		journal:         journal,
		logger:          logger.With(slog.String("component", "lifecycle")),
		epoch:           1,
		skipFirstWindow: true,
		basis:           NewBasisTracker(cfg.BasisSamples),
	}
}

// State derives the current lifecycle phase.
func (m *Machine) State() State {
	switch {
	case m.position == nil && m.entry.Busy():
		return StateEntering
	case m.position == nil:
		return StateFlat
	case m.exit.Busy():
		return StateExiting
	default:
		return StateOpen
	}
}

// Window returns the active window, or nil between windows.
func (m *Machine) Window() *domain.MarketWindow { return m.window }

// Strike returns the captured window start price, 0 when not yet known.
func (m *Machine) Strike() float64 { return m.strike }

// Position returns the open position, or nil.
func (m *Machine) Position() *domain.OpenPosition { return m.position }

// Stats returns the session totals.
func (m *Machine) Stats() domain.SessionStats { return m.stats }

// History returns a copy of the realized trades, oldest first.
func (m *Machine) History() []domain.TradeRecord {
	out := make([]domain.TradeRecord, len(m.history))
	copy(out, m.history)
	return out
}

// BasisOffset is the rolling mean gap between market-implied and feed spot.
func (m *Machine) BasisOffset() float64 { return m.basis.Offset() }

// Breaker exposes the stale-data breaker.
func (m *Machine) Breaker() *CircuitBreaker { return &m.breaker }

// Epoch identifies the current window generation.
func (m *Machine) Epoch() uint64 { return m.epoch }

// ObserveTick records the raw spot price and trips the breaker when the tick
// is older than the stale threshold. It reports whether the tick is fresh.
func (m *Machine) ObserveTick(t domain.Tick, now time.Time) bool {
	if age := t.Age(now); age > m.cfg.StaleTickAge {
		m.breaker.Trip(now, m.cfg.BreakerBlock)
		m.logger.Warn("stale tick, blocking entries",
			slog.Int64("age_ms", age.Milliseconds()),
			slog.Time("blocked_until", m.breaker.BlockedUntil()),
		)
		return false
	}
	m.lastRaw = t.Price
	if m.window != nil && m.strike == 0 {
		m.captureStrike(t.Price)
	}
	return true
}

// AdjustedSpot returns the feed price shifted by the basis offset.
func (m *Machine) AdjustedSpot(raw float64) float64 {
	return raw + m.basis.Offset()
}

// LastRawPrice is the most recent fresh feed price.
func (m *Machine) LastRawPrice() float64 { return m.lastRaw }

// Expired reports whether the active window has run out at now.
func (m *Machine) Expired(now time.Time) bool {
	return m.window != nil && m.window.TimeLeft(now) <= 0
}

// SetWindow installs w when its condition id differs from the active one and
// returns true in that case. The first window ever seen is remembered as the
// startup window and never traded. Callers settle an expired window first
// and never replace a window that still holds a position.
func (m *Machine) SetWindow(w *domain.MarketWindow) bool {
	if w == nil {
		return false
	}
	if m.window != nil && m.window.ConditionID == w.ConditionID {
		return false
	}
	if m.window != nil {
		// Replaced without a settlement: drop whatever was scoped to the
		// old window but keep the position, which the caller rules out.
		m.epoch++
		m.tradesThisWindow = 0
		m.lastExitAt = time.Time{}
		m.basis.Reset()
		m.entry.Release()
		m.exit.Release()
	}
	if m.startupConditionID == "" {
		m.startupConditionID = w.ConditionID
		m.logger.Info("startup window will not be traded", slog.String("condition_id", w.ConditionID))
	}
	m.window = w.Clone()
	m.strike = 0
	if m.lastRaw > 0 {
		m.captureStrike(m.lastRaw)
	}
	m.logger.Info("new window",
		slog.String("slug", w.Slug),
		slog.String("question", w.Question),
		slog.Time("end_time", w.EndTime),
	)
	return true
}

func (m *Machine) captureStrike(price float64) {
	m.strike = price
	m.logger.Info("window start price", slog.Float64("strike", price))
}

// UpdateQuotes merges fresh book quotes into the active window and feeds the
// basis tracker from the Up mid.
func (m *Machine) UpdateQuotes(conditionID string, asks, bids map[domain.Outcome]float64) {
	if m.window == nil || m.window.ConditionID != conditionID {
		return
	}
	m.window.MergeQuotes(asks, bids)

	bid, okBid := bids[domain.OutcomeUp]
	ask, okAsk := asks[domain.OutcomeUp]
	if !okBid || !okAsk || bid <= 0 || ask <= 0 || m.strike == 0 || m.lastRaw <= 0 {
		return
	}
	implied := (bid+ask)/2*100 + m.strike
	m.basis.Add(implied - m.lastRaw)
}

// CanEnter returns Admitted when a new entry may be evaluated at now.
func (m *Machine) CanEnter(now time.Time) Block {
	switch {
	case m.window == nil:
		return BlockNoWindow
	case m.position != nil:
		return BlockPositionOpen
	case m.entry.Busy():
		return BlockEntryBusy
	case m.exit.Busy():
		return BlockExitBusy
	case m.skipFirstWindow:
		return BlockFirstWindow
	case m.window.ConditionID == m.startupConditionID:
		return BlockStartup
	case m.tradesThisWindow >= m.cfg.MaxTradesPerWindow:
		return BlockTradeCap
	case !m.lastExitAt.IsZero() && now.Sub(m.lastExitAt) < m.cfg.ExitCooldown:
		return BlockCooldown
	case m.breaker.Active(now):
		return BlockBreaker
	case m.strike == 0:
		return BlockNoStrike
	case m.window.TimeLeft(now) < m.cfg.EntryBlackout.Seconds():
		return BlockBlackout
	}
	return Admitted
}

// EntryTicket describes an entry order handed to an executor goroutine.
type EntryTicket struct {
	Epoch      uint64
	Window     *domain.MarketWindow
	Strike     float64
	Signal     domain.Signal
	Outcome    domain.Outcome
	TokenID    string
	Shares     int
	OrderPrice float64
	Spot       float64
}

// EntryResult is posted back by the executor goroutine.
type EntryResult struct {
	Ticket EntryTicket
	Fill   *domain.Fill
	Err    error
}

// EntryOutcome classifies a completed entry.
type EntryOutcome string

const (
	EntryFilled EntryOutcome = "filled"
	EntryFailed EntryOutcome = "failed"
	EntryGhost  EntryOutcome = "ghost"
	EntryStale  EntryOutcome = "stale"
	// EntryLate is a fill that arrived after its window was reset. The
	// shares are booked against that window and never become the position.
	EntryLate EntryOutcome = "late"
)

// BeginEntry takes the entry guard and counts the attempt against the
// window cap. The returned ticket is stamped with the current epoch.
func (m *Machine) BeginEntry(sig domain.Signal, orderPrice, spot float64) (EntryTicket, bool) {
	if m.window == nil || m.position != nil {
		return EntryTicket{}, false
	}
	outcome := sig.Side.Outcome()
	token, ok := m.window.Token(outcome)
	if !ok {
		m.logger.Error("no token for outcome", slog.String("outcome", string(outcome)))
		return EntryTicket{}, false
	}
	if !m.entry.TryAcquire() {
		return EntryTicket{}, false
	}
	m.tradesThisWindow++
	return EntryTicket{
		Epoch:      m.epoch,
		Window:     m.window.Clone(),
		Strike:     m.strike,
		Signal:     sig,
		Outcome:    outcome,
		TokenID:    token,
		Shares:     sig.Shares,
		OrderPrice: orderPrice,
		Spot:       spot,
	}, true
}

// CompleteEntry applies an entry result. A position is only created from a
// fill with a positive share count for the window the order was sent in. A
// fill for an earlier window is booked against that window and returned with
// the settlement job that confirms and redeems it.
func (m *Machine) CompleteEntry(r EntryResult, now time.Time) (EntryOutcome, *domain.OpenPosition, *SettlementJob) {
	t := r.Ticket
	if t.Epoch != m.epoch {
		// The guard was freed by the reset and may belong to a newer order.
		if r.Fill == nil || r.Fill.Shares <= 0 {
			return EntryStale, nil, nil
		}
		return m.lateEntry(t, r.Fill, now)
	}
	defer m.entry.Release()

	if r.Err != nil || r.Fill == nil {
		m.tradesThisWindow--
		if r.Err != nil {
			m.logger.Error("entry order failed", slog.String("error", r.Err.Error()))
		}
		return EntryFailed, nil, nil
	}
	if r.Fill.Shares <= 0 {
		m.tradesThisWindow--
		m.logger.Warn("entry acknowledged with zero shares, no position set")
		return EntryGhost, nil, nil
	}

	pos := m.openPosition(t, r.Fill, now)
	m.position = &pos
	m.logger.Info("position opened",
		slog.String("trade_id", pos.TradeID),
		slog.String("side", string(pos.Side)),
		slog.Float64("shares", pos.Shares),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("size_usdc", pos.SizeUSDC),
	)
	return EntryFilled, &pos, nil
}

// openPosition turns a fill into a journaled position.
func (m *Machine) openPosition(t EntryTicket, fill *domain.Fill, now time.Time) domain.OpenPosition {
	price := fill.AvgPrice()
	cost := fill.CostUSDC
	if price <= 0 {
		price = t.OrderPrice
		cost = fill.Shares * price
	}
	pos := domain.OpenPosition{
		Side:       t.Outcome,
		TokenID:    t.TokenID,
		EntryPrice: price,
		SizeUSDC:   cost,
		Shares:     fill.Shares,
		OpenedAt:   now,
	}
	pos.TradeID = m.openJournal(domain.OpenTradeParams{
		Window:           t.Window,
		WindowStartPrice: t.Strike,
		Signal:           t.Signal,
		SpotAtEntry:      t.Spot,
		Position:         pos,
		ExpectedPrice:    t.Signal.MarketPrice,
	})
	return pos
}

// lateEntry books a fill whose window was reset while the order was out.
// When that window settled, the fill is settled against the same final
// price. Otherwise the job is left unbooked for the oracle to decide.
func (m *Machine) lateEntry(t EntryTicket, fill *domain.Fill, now time.Time) (EntryOutcome, *domain.OpenPosition, *SettlementJob) {
	pos := m.openPosition(t, fill, now)
	job := &SettlementJob{
		Strike:   t.Strike,
		Position: &pos,
	}
	if t.Window != nil {
		job.ConditionID = t.Window.ConditionID
		job.Slug = t.Window.Slug
	}

	sw, ok := m.settledAt(t.Epoch)
	if !ok {
		job.Unbooked = true
		m.logger.Warn("entry filled after its window was replaced, waiting for the oracle",
			slog.String("trade_id", pos.TradeID),
			slog.String("slug", job.Slug),
			slog.Float64("shares", pos.Shares),
		)
		return EntryLate, &pos, job
	}

	won := pos.Side == sw.winner
	pnl := SettlementPnL(pos, won)
	job.FinalPrice = sw.final
	job.LocalWinner = sw.winner
	job.LocalPnL = pnl
	m.record(newTradeRecord(job.ConditionID, job.Slug, pos, pnl, won, string(sw.winner), "late_fill_settlement", now))
	m.closeJournal(pos.TradeID, domain.CloseTradeParams{
		SpotAtClose: sw.final,
		Winner:      string(sw.winner),
		Won:         won,
		PnL:         pnl,
		Reason:      "settlement",
	})
	m.logger.Warn("entry filled after its window closed, settled against it",
		slog.String("trade_id", pos.TradeID),
		slog.String("slug", job.Slug),
		slog.Float64("shares", pos.Shares),
		slog.Bool("won", won),
		slog.Float64("pnl", pnl),
	)
	return EntryLate, &pos, job
}

// openJournal records the open and falls back to a local id when the
// journal is missing or panics.
func (m *Machine) openJournal(p domain.OpenTradeParams) (id string) {
	id = shortID()
	if m.journal == nil {
		return id
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("journal open failed", slog.Any("panic", r))
		}
	}()
	if got := m.journal.OpenTrade(p); got != "" {
		id = got
	}
	return id
}

func (m *Machine) closeJournal(tradeID string, p domain.CloseTradeParams) {
	if m.journal == nil || tradeID == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("journal close failed", slog.String("trade_id", tradeID), slog.Any("panic", r))
		}
	}()
	m.journal.CloseTrade(tradeID, p)
}

// ExitTicket describes an exit order handed to an executor goroutine.
type ExitTicket struct {
	Epoch      uint64
	Position   domain.OpenPosition
	Signal     domain.ExitSignal
	Bid        float64
	OrderPrice float64
	Shares     int
	Spot       float64
}

// ExitResult is posted back by the executor goroutine.
type ExitResult struct {
	Ticket ExitTicket
	Fill   *domain.Fill
	Err    error
}

// ExitOutcome classifies a completed exit.
type ExitOutcome string

const (
	ExitClosed ExitOutcome = "closed"
	ExitKept   ExitOutcome = "kept"
	ExitStale  ExitOutcome = "stale"
)

// BeginExit takes the exit guard for the open position.
func (m *Machine) BeginExit(sig domain.ExitSignal, bid, orderPrice, spot float64) (ExitTicket, bool) {
	if m.position == nil {
		return ExitTicket{}, false
	}
	shares := int(m.position.Shares)
	if shares <= 0 && bid > 0 {
		shares = int(m.position.SizeUSDC/bid + 0.5)
	}
	if shares <= 0 {
		return ExitTicket{}, false
	}
	if !m.exit.TryAcquire() {
		return ExitTicket{}, false
	}
	return ExitTicket{
		Epoch:      m.epoch,
		Position:   *m.position,
		Signal:     sig,
		Bid:        bid,
		OrderPrice: orderPrice,
		Shares:     shares,
		Spot:       spot,
	}, true
}

// CompleteExit applies an exit result. The position is only cleared when the
// sell was confirmed; otherwise it stays for a later retry or settlement.
func (m *Machine) CompleteExit(r ExitResult, now time.Time) (ExitOutcome, *domain.TradeRecord) {
	t := r.Ticket
	if t.Epoch != m.epoch {
		return ExitStale, nil
	}
	defer m.exit.Release()

	if m.position == nil || m.position.TradeID != t.Position.TradeID {
		return ExitStale, nil
	}
	if r.Err != nil || r.Fill == nil {
		attrs := []any{slog.String("trade_id", t.Position.TradeID), slog.Int("shares", t.Shares)}
		if r.Err != nil {
			attrs = append(attrs, slog.String("error", r.Err.Error()))
		}
		m.logger.Warn("exit not filled, position kept", attrs...)
		return ExitKept, nil
	}

	pos := t.Position
	pnl := 0.0
	if pos.EntryPrice > 0 {
		pnl = (t.Bid - pos.EntryPrice) * (pos.SizeUSDC / pos.EntryPrice)
	}
	won := pnl >= 0
	m.position = nil
	m.lastExitAt = now

	rec := m.record(m.tradeRecord(pos, pnl, won, "early_exit", "early_exit:"+t.Signal.Reason, now))
	m.closeJournal(pos.TradeID, domain.CloseTradeParams{
		SpotAtClose: t.Spot,
		Winner:      "early_exit",
		Won:         won,
		PnL:         pnl,
		Reason:      rec.Reason,
	})
	m.logger.Info("position closed early",
		slog.String("trade_id", pos.TradeID),
		slog.Float64("bid", t.Bid),
		slog.Float64("pnl", pnl),
		slog.Float64("session_pnl", m.stats.TotalPnL),
	)
	return ExitClosed, &rec
}

// Recover adopts a position found on the exchange at startup. The window is
// installed when none is active yet.
func (m *Machine) Recover(w *domain.MarketWindow, ep domain.ExchangePosition) (*domain.OpenPosition, bool) {
	if w == nil || m.position != nil || ep.Size <= 0 || ep.AvgPrice <= 0 {
		return nil, false
	}
	side, ok := w.OutcomeForToken(ep.Asset)
	if !ok {
		return nil, false
	}
	m.SetWindow(w)
	pos := domain.OpenPosition{
		TradeID:    "recovered-" + shortID()[:8],
		Side:       side,
		TokenID:    ep.Asset,
		EntryPrice: ep.AvgPrice,
		SizeUSDC:   ep.Size * ep.AvgPrice,
		Shares:     ep.Size,
		Recovered:  true,
	}
	m.position = &pos
	m.logger.Info("recovered position",
		slog.String("trade_id", pos.TradeID),
		slog.String("side", string(side)),
		slog.Float64("shares", pos.Shares),
		slog.Float64("entry_price", pos.EntryPrice),
	)
	return &pos, true
}

// record books a realized trade into the session stats and history.
func (m *Machine) record(rec domain.TradeRecord) domain.TradeRecord {
	m.stats.Trades++
	m.stats.TotalPnL += rec.PnL
	if rec.Won {
		m.stats.Wins++
	} else {
		m.stats.Losses++
	}
	m.history = append(m.history, rec)
	if over := len(m.history) - m.cfg.HistorySize; over > 0 {
		m.history = append(m.history[:0], m.history[over:]...)
	}
	return rec
}

// tradeRecord builds a record for a trade on the active window.
func (m *Machine) tradeRecord(pos domain.OpenPosition, pnl float64, won bool, winner, reason string, now time.Time) domain.TradeRecord {
	var cid, slug string
	if m.window != nil {
		cid, slug = m.window.ConditionID, m.window.Slug
	}
	return newTradeRecord(cid, slug, pos, pnl, won, winner, reason, now)
}

func newTradeRecord(conditionID, slug string, pos domain.OpenPosition, pnl float64, won bool, winner, reason string, now time.Time) domain.TradeRecord {
	return domain.TradeRecord{
		TradeID:     pos.TradeID,
		ConditionID: conditionID,
		Slug:        slug,
		Side:        pos.Side,
		EntryPrice:  pos.EntryPrice,
		SizeUSDC:    pos.SizeUSDC,
		PnL:         pnl,
		Won:         won,
		Winner:      winner,
		Reason:      reason,
		ClosedAt:    now,
	}
}

// Describe renders a one-line summary for logs.
func (m *Machine) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "state=%s trades=%d", m.State(), m.tradesThisWindow)
	if m.window != nil {
		fmt.Fprintf(&b, " slug=%s strike=%.2f", m.window.Slug, m.strike)
	}
	if m.position != nil {
		fmt.Fprintf(&b, " pos=%s@%.4f", m.position.Side, m.position.EntryPrice)
	}
	return b.String()
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
