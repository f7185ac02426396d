package engine

import (
	"context"
	"log/slog"
	"math"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/lifecycle"
)

const orderRateKey = "orders"

// The functions below run in detached goroutines. They never touch loop
// state; everything they learn goes back through post.

func (e *Engine) executeEntry(ctx context.Context, t lifecycle.EntryTicket) {
	e.waitRate(ctx)
	req := domain.OrderRequest{
		TokenID: t.TokenID,
		Side:    domain.OrderSideBuy,
		Type:    domain.OrderTypeFOK,
		Price:   t.OrderPrice,
		Size:    float64(t.Shares),
	}
	fill, err := e.deps.Executor.Buy(ctx, req)
	e.post(lifecycle.EntryResult{Ticket: t, Fill: fill, Err: err})
	if err != nil || fill == nil || fill.Shares <= 0 {
		return
	}

	e.logger.InfoContext(ctx, "fill",
		slog.String("order_id", fill.OrderID),
		slog.Float64("shares", fill.Shares),
		slog.Float64("avg_price", fill.AvgPrice()),
		slog.Float64("paid", fill.CostUSDC),
	)
	e.refreshBalance(ctx)
}

// placeTakeProfit rests a GTC sell for the whole position at the eject
// price. The loop calls it after a fill opened the position and again after
// a failed exit, whose cancel took the previous order off the book.
func (e *Engine) placeTakeProfit(ctx context.Context, pos domain.OpenPosition, price float64) {
	resting := domain.OrderRequest{
		TokenID: pos.TokenID,
		Side:    domain.OrderSideSell,
		Type:    domain.OrderTypeGTC,
		Price:   price,
		Size:    math.Floor(pos.Shares),
	}
	if resting.Size <= 0 {
		return
	}
	e.waitRate(ctx)
	id, err := e.deps.Executor.PlaceResting(ctx, resting)
	if err != nil {
		e.logger.ErrorContext(ctx, "take-profit placement failed", slog.String("error", err.Error()))
		return
	}
	e.logger.InfoContext(ctx, "take-profit resting",
		slog.String("trade_id", pos.TradeID),
		slog.String("order_id", id),
		slog.Float64("shares", resting.Size),
		slog.Float64("price", resting.Price),
	)
}

func (e *Engine) executeExit(ctx context.Context, t lifecycle.ExitTicket) {
	// The resting take-profit holds the shares; free them before selling.
	if err := e.deps.Executor.CancelAll(ctx); err != nil {
		e.logger.WarnContext(ctx, "cancel before exit failed", slog.String("error", err.Error()))
	}
	e.waitRate(ctx)
	req := domain.OrderRequest{
		TokenID: t.Position.TokenID,
		Side:    domain.OrderSideSell,
		Type:    domain.OrderTypeFOK,
		Price:   t.OrderPrice,
		Size:    float64(t.Shares),
	}
	fill, err := e.deps.Executor.Sell(ctx, req)
	e.post(lifecycle.ExitResult{Ticket: t, Fill: fill, Err: err})
	if err == nil && fill != nil {
		e.refreshBalance(ctx)
	}
}

// confirmSettlement asks the oracle for the winner, posts the correction and
// redeems tokens when a position was held into expiry.
func (e *Engine) confirmSettlement(ctx context.Context, job lifecycle.SettlementJob) {
	if e.deps.Oracle != nil && job.Position != nil {
		winner, err := e.deps.Oracle.Winner(ctx, job.Slug)
		e.post(lifecycle.Correction{Job: job, Winner: winner, Err: err})
	}
	if job.Position != nil && e.deps.Redeemer != nil && job.ConditionID != "" {
		tx, err := e.deps.Redeemer.Redeem(ctx, job.ConditionID)
		if err != nil {
			e.logger.ErrorContext(ctx, "redeem failed",
				slog.String("condition_id", job.ConditionID),
				slog.String("error", err.Error()),
			)
			e.alert(ctx, "error", "Redeem failed", job.Slug+": "+err.Error())
		} else {
			e.logger.InfoContext(ctx, "redeemed", slog.String("condition_id", job.ConditionID), slog.String("tx", tx))
		}
	}
	e.refreshBalance(ctx)
}

func (e *Engine) refreshBalance(ctx context.Context) {
	bal, err := e.deps.Executor.Balance(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "balance refresh failed", slog.String("error", err.Error()))
		return
	}
	e.post(balanceResult{value: bal})
}

func (e *Engine) waitRate(ctx context.Context) {
	if e.deps.Limiter == nil || e.cfg.OrderRateLimit <= 0 {
		return
	}
	if err := e.deps.Limiter.Wait(ctx, orderRateKey, e.cfg.OrderRateLimit, e.cfg.OrderRateWindow); err != nil {
		e.logger.WarnContext(ctx, "order rate limiter unavailable", slog.String("error", err.Error()))
	}
}
