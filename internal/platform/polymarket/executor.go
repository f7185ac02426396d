package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Executor is the live domain.OrderExecutor backed by the CLOB.
type Executor struct {
	clob    *ClobClient
	builder *OrderBuilder
	data    *DataClient
	logger  *slog.Logger
}

// NewExecutor wires the CLOB client, order builder and data API.
func NewExecutor(clob *ClobClient, builder *OrderBuilder, data *DataClient, logger *slog.Logger) *Executor {
	return &Executor{
		clob:    clob,
		builder: builder,
		data:    data,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

// Buy places a fill-or-kill buy and reports what matched.
func (e *Executor) Buy(ctx context.Context, req domain.OrderRequest) (*domain.Fill, error) {
	req.Side = domain.OrderSideBuy
	return e.take(ctx, req)
}

// Sell places a fill-or-kill sell and reports what matched.
func (e *Executor) Sell(ctx context.Context, req domain.OrderRequest) (*domain.Fill, error) {
	req.Side = domain.OrderSideSell
	return e.take(ctx, req)
}

// PlaceResting posts a GTC order and returns its id.
func (e *Executor) PlaceResting(ctx context.Context, req domain.OrderRequest) (string, error) {
	req.Type = domain.OrderTypeGTC
	req.Size = math.Floor(req.Size)
	res, err := e.post(ctx, req)
	if err != nil {
		return "", err
	}
	return res.OrderID, nil
}

// CancelAll cancels every open order of the wallet.
func (e *Executor) CancelAll(ctx context.Context) error {
	return e.clob.CancelAll(ctx)
}

// Balance returns the USDC collateral balance.
func (e *Executor) Balance(ctx context.Context) (float64, error) {
	return e.clob.Balance(ctx)
}

// Positions lists the wallet's outcome token holdings.
func (e *Executor) Positions(ctx context.Context) ([]domain.ExchangePosition, error) {
	return e.data.Positions(ctx, e.builder.Maker())
}

func (e *Executor) take(ctx context.Context, req domain.OrderRequest) (*domain.Fill, error) {
	if req.Type == "" {
		req.Type = domain.OrderTypeFOK
	}
	// Whole shares only.
	req.Size = math.Floor(req.Size)
	res, err := e.post(ctx, req)
	if err != nil {
		return nil, err
	}
	fill, err := FillFromResult(req.Side, res)
	if err != nil {
		return nil, err
	}
	if fill == nil {
		e.logger.WarnContext(ctx, "order acknowledged without match amounts",
			slog.String("order_id", res.OrderID), slog.String("status", res.Status))
	}
	return fill, nil
}

func (e *Executor) post(ctx context.Context, req domain.OrderRequest) (APIOrderResult, error) {
	order, err := e.builder.Build(req)
	if err != nil {
		return APIOrderResult{}, fmt.Errorf("polymarket/executor: build %s: %w", req.Side, err)
	}
	e.logger.DebugContext(ctx, "posting order",
		slog.String("side", string(req.Side)),
		slog.String("type", string(req.Type)),
		slog.Float64("price", req.Price),
		slog.Float64("size", req.Size),
		slog.String("maker_amount", order.MakerAmount),
		slog.String("taker_amount", order.TakerAmount),
	)
	return e.clob.PostOrder(ctx, order, req.Type)
}

// FillFromResult reads the matched amounts of an order response. It returns
// a nil Fill when the response carries no amounts.
func FillFromResult(side domain.OrderSide, res APIOrderResult) (*domain.Fill, error) {
	if res.MakingAmount == "" && res.TakingAmount == "" {
		return nil, nil
	}
	making, err := parseAmount(res.MakingAmount)
	if err != nil {
		return nil, fmt.Errorf("polymarket/executor: making amount: %w", err)
	}
	taking, err := parseAmount(res.TakingAmount)
	if err != nil {
		return nil, fmt.Errorf("polymarket/executor: taking amount: %w", err)
	}

	fill := &domain.Fill{OrderID: res.OrderID}
	if side == domain.OrderSideBuy {
		fill.Shares, fill.CostUSDC = taking, making
	} else {
		fill.Shares, fill.CostUSDC = making, taking
	}
	return fill, nil
}

func parseAmount(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}
