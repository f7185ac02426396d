package domain

import (
	"fmt"
	"math"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill
)

const (
	MinOrderPrice = 0.01
	MaxOrderPrice = 0.99
)

// OrderRequest is a limit order for a single outcome token. Size is in
// shares.
type OrderRequest struct {
	TokenID string
	Side    OrderSide
	Type    OrderType
	Price   float64
	Size    float64
}

// Validate rejects orders the exchange would never accept.
func (r OrderRequest) Validate() error {
	if r.TokenID == "" {
		return fmt.Errorf("%w: empty token id", ErrInvalidOrder)
	}
	if math.IsNaN(r.Price) || r.Price < MinOrderPrice || r.Price > MaxOrderPrice {
		return fmt.Errorf("%w: price %.4f outside [%.2f, %.2f]", ErrInvalidOrder, r.Price, MinOrderPrice, MaxOrderPrice)
	}
	if math.IsNaN(r.Size) || r.Size <= 0 {
		return fmt.Errorf("%w: size %.4f must be positive", ErrInvalidOrder, r.Size)
	}
	return nil
}

// Fill is the matched part of an order. For a BUY, CostUSDC is what was paid;
// for a SELL it is what was received.
type Fill struct {
	OrderID  string
	Shares   float64
	CostUSDC float64
}

// AvgPrice is the volume-weighted price of the fill.
func (f Fill) AvgPrice() float64 {
	if f.Shares <= 0 {
		return 0
	}
	return f.CostUSDC / f.Shares
}
