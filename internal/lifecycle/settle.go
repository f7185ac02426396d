package lifecycle

import (
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// SettlementJob is the background work left over after a window closed:
// confirming the winner with the oracle and redeeming held tokens.
type SettlementJob struct {
	ConditionID string
	Slug        string
	FinalPrice  float64
	Strike      float64
	LocalWinner domain.Outcome
	// Position is the position held into expiry, nil when flat.
	Position *domain.OpenPosition
	LocalPnL float64
	// Unbooked marks a late fill with no local result. The oracle's winner
	// books it in full.
	Unbooked bool
}

// settledMemory bounds how many closed windows late fills can be matched
// against.
const settledMemory = 4

// settledWindow is what a late fill needs to be booked against a window
// that has already been reset.
type settledWindow struct {
	epoch  uint64
	final  float64
	winner domain.Outcome
}

func (m *Machine) settledAt(epoch uint64) (settledWindow, bool) {
	for _, sw := range m.settled {
		if sw.epoch == epoch {
			return sw, true
		}
	}
	return settledWindow{}, false
}

// Correction carries the oracle's answer for a settlement job.
type Correction struct {
	Job    SettlementJob
	Winner domain.Outcome
	Err    error
}

// SettlementPnL is the payout of a position held to expiry.
func SettlementPnL(pos domain.OpenPosition, won bool) float64 {
	if !won {
		return -pos.SizeUSDC
	}
	if pos.EntryPrice <= 0 {
		return 0
	}
	return (1 - pos.EntryPrice) * (pos.SizeUSDC / pos.EntryPrice)
}

// LocalWinner guesses the outcome from the adjusted final price. Without a
// strike the guess is Down.
func LocalWinner(final, strike float64) domain.Outcome {
	if strike > 0 && final >= strike {
		return domain.OutcomeUp
	}
	return domain.OutcomeDown
}

// Settle closes the active window against finalPrice. Realized results are
// booked immediately; the returned job drives the slow confirmation. The
// window-scoped state is reset on every path, including a panicking
// journal.
//
// Settle waits for an exit order in flight: its fill decides how the
// position closed. It returns nil until that exit completes, which the
// executor's order timeout bounds.
func (m *Machine) Settle(finalPrice float64, now time.Time) (job *SettlementJob) {
	w := m.window
	if w == nil {
		return nil
	}
	if m.exit.Busy() {
		m.logger.Debug("settlement waiting for exit in flight", slog.String("slug", w.Slug))
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("settlement failed", slog.String("slug", w.Slug), slog.Any("panic", r))
		}
		m.resetWindow()
	}()

	winner := LocalWinner(finalPrice, m.strike)
	m.settled = append(m.settled, settledWindow{epoch: m.epoch, final: finalPrice, winner: winner})
	if over := len(m.settled) - settledMemory; over > 0 {
		m.settled = append(m.settled[:0], m.settled[over:]...)
	}
	job = &SettlementJob{
		ConditionID: w.ConditionID,
		Slug:        w.Slug,
		FinalPrice:  finalPrice,
		Strike:      m.strike,
		LocalWinner: winner,
	}
	m.logger.Info("window expired",
		slog.String("slug", w.Slug),
		slog.Float64("final", finalPrice),
		slog.Float64("strike", m.strike),
		slog.String("local_winner", string(winner)),
	)

	if m.position == nil {
		return job
	}
	pos := *m.position
	won := pos.Side == winner
	pnl := SettlementPnL(pos, won)
	job.Position = &pos
	job.LocalPnL = pnl

	m.record(m.tradeRecord(pos, pnl, won, string(winner), "settlement", now))
	m.logger.Info("trade settled",
		slog.String("trade_id", pos.TradeID),
		slog.String("side", string(pos.Side)),
		slog.Bool("won", won),
		slog.Float64("pnl", pnl),
		slog.Float64("session_pnl", m.stats.TotalPnL),
		slog.Int("wins", m.stats.Wins),
		slog.Int("losses", m.stats.Losses),
	)
	if m.journal == nil {
		return job
	}
	m.journal.CloseTrade(pos.TradeID, domain.CloseTradeParams{
		SpotAtClose: finalPrice,
		Winner:      string(winner),
		Won:         won,
		PnL:         pnl,
		Reason:      "settlement",
	})
	return job
}

// resetWindow clears every window-scoped field, the in-flight guards
// included. The epoch bump marks completions of earlier orders as late so
// they leave the guards alone.
func (m *Machine) resetWindow() {
	m.epoch++
	m.entry.Release()
	m.exit.Release()
	m.window = nil
	m.strike = 0
	m.position = nil
	m.tradesThisWindow = 0
	m.lastExitAt = time.Time{}
	m.basis.Reset()
	m.skipFirstWindow = false
}

// ApplyCorrection reconciles a settled trade with the oracle's winner. It
// returns the PnL delta applied to the session, and false when nothing
// changed.
func (m *Machine) ApplyCorrection(c Correction) (float64, bool) {
	if c.Err != nil {
		m.logger.Warn("oracle winner unavailable", slog.String("slug", c.Job.Slug), slog.String("error", c.Err.Error()))
		return 0, false
	}
	if !c.Winner.Valid() || c.Job.Position == nil {
		return 0, false
	}
	if c.Job.Unbooked {
		return m.bookLate(c), true
	}
	if c.Winner == c.Job.LocalWinner {
		m.logger.Info("oracle confirmed winner", slog.String("slug", c.Job.Slug), slog.String("winner", string(c.Winner)))
		return 0, false
	}

	pos := *c.Job.Position
	won := pos.Side == c.Winner
	correct := SettlementPnL(pos, won)
	delta := correct - c.Job.LocalPnL
	m.stats.TotalPnL += delta
	if won {
		m.stats.Wins++
		m.stats.Losses--
	} else {
		m.stats.Wins--
		m.stats.Losses++
	}
	for i := range m.history {
		if m.history[i].TradeID != pos.TradeID {
			continue
		}
		m.history[i].PnL = correct
		m.history[i].Won = won
		m.history[i].Winner = string(c.Winner)
		m.history[i].Corrected = true
		break
	}
	m.logger.Warn("oracle corrected local winner",
		slog.String("trade_id", pos.TradeID),
		slog.String("local", string(c.Job.LocalWinner)),
		slog.String("oracle", string(c.Winner)),
		slog.Float64("pnl_delta", delta),
		slog.Float64("session_pnl", m.stats.TotalPnL),
	)
	return delta, true
}

// bookLate books an unbooked late fill with the oracle's winner.
func (m *Machine) bookLate(c Correction) float64 {
	pos := *c.Job.Position
	won := pos.Side == c.Winner
	pnl := SettlementPnL(pos, won)
	m.record(newTradeRecord(c.Job.ConditionID, c.Job.Slug, pos, pnl, won, string(c.Winner), "late_fill_settlement", time.Now()))
	m.closeJournal(pos.TradeID, domain.CloseTradeParams{
		Winner: string(c.Winner),
		Won:    won,
		PnL:    pnl,
		Reason: "settlement",
	})
	m.logger.Warn("late fill booked from oracle winner",
		slog.String("trade_id", pos.TradeID),
		slog.String("slug", c.Job.Slug),
		slog.String("winner", string(c.Winner)),
		slog.Float64("pnl", pnl),
		slog.Float64("session_pnl", m.stats.TotalPnL),
	)
	return pnl
}
