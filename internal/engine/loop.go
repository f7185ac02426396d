package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/lifecycle"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

// loop is the single writer of engine and machine state.
func (e *Engine) loop(ctx context.Context) error {
	statusTicker := time.NewTicker(e.cfg.StatusInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-e.ticks:
			e.onTick(ctx, t)
		case u := <-e.windows:
			e.onWindow(ctx, u)
			e.publishStatus()
		case r := <-e.results:
			e.handleResult(ctx, r)
			e.publishStatus()
		case <-statusTicker.C:
			e.publishStatus()
		}
	}
}

// discoveryLoop polls for the live window and its book every interval.
func (e *Engine) discoveryLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.DiscoveryInterval)
	defer ticker.Stop()

	for {
		e.discoverOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (e *Engine) discoverOnce(ctx context.Context) {
	w, err := e.deps.Discovery.CurrentWindow(ctx, e.now())
	if err != nil {
		if errors.Is(err, domain.ErrNoWindow) {
			e.logger.DebugContext(ctx, "no live window")
		} else if ctx.Err() == nil {
			e.logger.WarnContext(ctx, "window discovery failed", slog.String("error", err.Error()))
		}
		return
	}
	u := windowUpdate{window: w}
	asks, bids, err := e.deps.Quotes.Quotes(ctx, w.Tokens)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.WarnContext(ctx, "book fetch failed", slog.String("error", err.Error()))
		}
	} else {
		u.asks, u.bids = asks, bids
		e.cacheQuotes(ctx, w, asks, bids)
	}

	select {
	case e.windows <- u:
	case <-ctx.Done():
	}
}

func (e *Engine) cacheQuotes(ctx context.Context, w *domain.MarketWindow, asks, bids map[domain.Outcome]float64) {
	if e.deps.QuoteCache == nil {
		return
	}
	now := e.now()
	for o, token := range w.Tokens {
		q := domain.Quote{Bid: bids[o], Ask: asks[o], UpdatedAt: now}
		if err := e.deps.QuoteCache.SetQuote(ctx, token, q); err != nil {
			e.logger.DebugContext(ctx, "quote cache write failed", slog.String("error", err.Error()))
			return
		}
	}
}

func (e *Engine) onTick(ctx context.Context, t domain.Tick) {
	now := e.now()
	e.obs.Tick()

	wasBlocked := e.machine.Breaker().Active(now)
	if !e.machine.ObserveTick(t, now) {
		e.obs.BreakerTrip()
		if !wasBlocked {
			e.alert(ctx, "circuit_breaker", "Circuit breaker",
				fmt.Sprintf("stale tick %dms old, entries blocked", t.Age(now).Milliseconds()))
		}
		return
	}
	e.buf.Push(t)
	spot := e.machine.AdjustedSpot(t.Price)
	e.lastSpot = spot

	if e.machine.Window() == nil {
		return
	}
	if e.machine.Expired(now) {
		e.settle(ctx, spot, now)
		return
	}
	if pos := e.machine.Position(); pos != nil {
		e.maybeExit(ctx, *pos, spot)
		return
	}
	e.maybeEnter(ctx, spot, now)
}

func (e *Engine) onWindow(ctx context.Context, u windowUpdate) {
	now := e.now()
	if cur := e.machine.Window(); cur != nil && cur.ConditionID != u.window.ConditionID {
		if e.machine.Expired(now) {
			e.settle(ctx, e.machine.AdjustedSpot(e.machine.LastRawPrice()), now)
		}
		// Settlement may be waiting on an exit; the old window stays until
		// it runs.
		switch {
		case e.machine.Position() != nil:
			e.logger.DebugContext(ctx, "holding position on previous window, new window deferred",
				slog.String("slug", u.window.Slug))
			return
		case e.machine.State() == lifecycle.StateEntering:
			e.logger.DebugContext(ctx, "entry in flight on previous window, new window deferred",
				slog.String("slug", u.window.Slug))
			return
		}
	}
	e.machine.SetWindow(u.window)
	if u.asks != nil || u.bids != nil {
		e.machine.UpdateQuotes(u.window.ConditionID, u.asks, u.bids)
		e.obs.Basis(e.machine.BasisOffset())
	}
}

func (e *Engine) maybeEnter(ctx context.Context, spot float64, now time.Time) {
	if b := e.machine.CanEnter(now); b != lifecycle.Admitted {
		return
	}
	w := e.machine.Window()
	upAsk, ok := w.Ask(domain.OutcomeUp)
	if !ok {
		return
	}
	downAsk, ok := w.Ask(domain.OutcomeDown)
	if !ok {
		downAsk = math.Min(domain.MaxOrderPrice, round4(1-upAsk+0.02))
	}

	sig, reject := e.gen.Evaluate(strategy.Input{
		Spot:     spot,
		Strike:   e.machine.Strike(),
		TimeLeft: w.TimeLeft(now),
		YesAsk:   upAsk,
		NoAsk:    downAsk,
		Balance:  e.balance,
		Ticks:    e.buf,
	})
	if reject != strategy.Accepted {
		e.obs.Decision(string(reject))
		return
	}
	if !sig.Finite() {
		e.obs.Decision("non_finite")
		e.logger.DebugContext(ctx, "signal contains NaN, skipped")
		return
	}
	e.obs.Decision("signal")

	price := math.Min(domain.MaxOrderPrice, round4(sig.MarketPrice+e.cfg.EntrySlippage))
	ticket, ok := e.machine.BeginEntry(sig, price, spot)
	if !ok {
		return
	}
	e.logger.InfoContext(ctx, "signal",
		slog.String("side", string(ticket.Outcome)),
		slog.Float64("prob", sig.TrueProb),
		slog.Float64("edge", sig.Edge),
		slog.Int("shares", sig.Shares),
		slog.Float64("ask", sig.MarketPrice),
		slog.Float64("limit", price),
		slog.Float64("ev", sig.EVUSDC),
	)
	e.spawn(ctx, func(ctx context.Context) { e.executeEntry(ctx, ticket) })
}

func (e *Engine) maybeExit(ctx context.Context, pos domain.OpenPosition, spot float64) {
	bid, ok := e.machine.Window().Bid(pos.Side)
	if !ok {
		return
	}
	sig, ok := strategy.CheckExit(pos, bid, e.gen.Params().EjectPrice)
	if !ok {
		return
	}
	price := math.Max(domain.MinOrderPrice, round4(bid-e.cfg.ExitSlippage))
	ticket, ok := e.machine.BeginExit(sig, bid, price, spot)
	if !ok {
		return
	}
	e.logger.InfoContext(ctx, "exit", slog.String("reason", sig.Reason), slog.String("trade_id", pos.TradeID))
	e.spawn(ctx, func(ctx context.Context) { e.executeExit(ctx, ticket) })
}

func (e *Engine) settle(ctx context.Context, final float64, now time.Time) {
	job := e.machine.Settle(final, now)
	if job == nil {
		return
	}
	e.obs.Basis(0)
	if job.Position != nil {
		result := "loss"
		if job.Position.Side == job.LocalWinner {
			result = "win"
		}
		e.obs.Trade(result, job.LocalPnL)
		e.obs.SessionPnL(e.machine.Stats().TotalPnL)
		e.alert(ctx, "trade_closed", "Trade settled",
			fmt.Sprintf("%s %s, pnl %+.2f (local)", job.Slug, result, job.LocalPnL))
	}
	e.confirm(ctx, *job)
	e.publishStatus()
}

func (e *Engine) confirm(ctx context.Context, job lifecycle.SettlementJob) {
	e.spawn(ctx, func(ctx context.Context) { e.confirmSettlement(ctx, job) })
}

func (e *Engine) handleResult(ctx context.Context, r any) {
	now := e.now()
	switch r := r.(type) {
	case lifecycle.EntryResult:
		outcome, pos, job := e.machine.CompleteEntry(r, now)
		e.obs.Order("buy", string(outcome))
		switch outcome {
		case lifecycle.EntryFilled:
			e.alert(ctx, "trade_opened", "Trade opened", describePosition(*pos))
			e.restTakeProfit(ctx, *pos)
		case lifecycle.EntryLate:
			e.lateFill(ctx, *job)
		}
	case lifecycle.ExitResult:
		outcome, rec := e.machine.CompleteExit(r, now)
		e.obs.Order("sell", string(outcome))
		if pos := e.machine.Position(); outcome == lifecycle.ExitKept && pos != nil {
			e.restTakeProfit(ctx, *pos)
		}
		if rec != nil {
			result := "loss"
			if rec.Won {
				result = "win"
			}
			e.obs.Trade(result, rec.PnL)
			e.obs.SessionPnL(e.machine.Stats().TotalPnL)
			e.alert(ctx, "trade_closed", "Trade closed early",
				fmt.Sprintf("%s %s, pnl %+.2f", rec.Slug, rec.Reason, rec.PnL))
		}
	case lifecycle.Correction:
		if delta, ok := e.machine.ApplyCorrection(r); ok {
			e.obs.SessionPnL(e.machine.Stats().TotalPnL)
			e.alert(ctx, "correction", "Settlement corrected",
				fmt.Sprintf("%s won on %s, pnl delta %+.2f", r.Winner, r.Job.Slug, delta))
		}
	case balanceResult:
		e.balance = r.value
		e.obs.Balance(r.value)
	default:
		e.logger.Error("unknown result", slog.String("type", fmt.Sprintf("%T", r)))
	}
}

// restTakeProfit puts the eject-price sell back on the book for pos. Orders
// are left alone once shutdown has started.
func (e *Engine) restTakeProfit(ctx context.Context, pos domain.OpenPosition) {
	if e.closing {
		return
	}
	price := e.gen.Params().EjectPrice
	e.spawn(ctx, func(ctx context.Context) { e.placeTakeProfit(ctx, pos, price) })
}

// lateFill reports an entry that filled after its window was reset and
// hands it to the settlement path for confirmation and redeem.
func (e *Engine) lateFill(ctx context.Context, job lifecycle.SettlementJob) {
	msg := fmt.Sprintf("%s filled after close: %s", job.Slug, describePosition(*job.Position))
	if !job.Unbooked {
		result := "loss"
		if job.Position.Side == job.LocalWinner {
			result = "win"
		}
		e.obs.Trade(result, job.LocalPnL)
		e.obs.SessionPnL(e.machine.Stats().TotalPnL)
		msg += fmt.Sprintf(", %s pnl %+.2f (local)", result, job.LocalPnL)
	}
	e.alert(ctx, "trade_closed", "Late fill settled", msg)
	e.confirm(ctx, job)
}

func describePosition(p domain.OpenPosition) string {
	return fmt.Sprintf("%s %.0f shares @ %.4f ($%.2f)", p.Side, p.Shares, p.EntryPrice, p.SizeUSDC)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
