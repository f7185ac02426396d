package polymarket

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

const (
	usdcUnit    = 1e6
	zeroAddress = "0x0000000000000000000000000000000000000000"

	// Rounding of a 0.01 tick market: prices to cents, sizes to 2 decimals,
	// notional amounts to 4.
	priceDecimals  = 2
	sizeDecimals   = 2
	amountDecimals = 4
	tokenDecimals  = 6
)

// OrderBuilder turns limit order requests into signed CLOB orders.
type OrderBuilder struct {
	signer        *crypto.Signer
	maker         common.Address
	signatureType int
	feeRateBps    int
	salt          func() int64
}

// NewOrderBuilder creates a builder. funder is the proxy wallet that holds
// the funds; when empty the signing EOA is the maker and the signature type
// is forced to EOA.
func NewOrderBuilder(signer *crypto.Signer, funder string, signatureType, feeRateBps int) (*OrderBuilder, error) {
	b := &OrderBuilder{
		signer:        signer,
		maker:         signer.Address(),
		signatureType: signatureType,
		feeRateBps:    feeRateBps,
		salt:          func() int64 { return rand.Int64N(1 << 48) },
	}
	switch {
	case funder == "":
		b.signatureType = crypto.SignatureEOA
	case !common.IsHexAddress(funder):
		return nil, fmt.Errorf("polymarket/order: invalid funder address %q", funder)
	default:
		b.maker = common.HexToAddress(funder)
	}
	return b, nil
}

// Maker is the address that holds positions and collateral.
func (b *OrderBuilder) Maker() string {
	return b.maker.Hex()
}

// Amounts returns the maker and taker amounts in token units (6 decimals).
// For a BUY the maker gives collateral and takes shares; for a SELL the
// reverse.
func Amounts(side domain.OrderSide, price, size float64) (maker, taker int64, err error) {
	p := decimal.NewFromFloat(price).Round(priceDecimals)
	s := decimal.NewFromFloat(size).Truncate(sizeDecimals)
	if !s.IsPositive() || !p.IsPositive() {
		return 0, 0, fmt.Errorf("%w: size %s at price %s", domain.ErrInvalidOrder, s, p)
	}
	notional := s.Mul(p).Truncate(amountDecimals)

	shares := s.Shift(tokenDecimals).IntPart()
	usdc := notional.Shift(tokenDecimals).IntPart()
	switch side {
	case domain.OrderSideBuy:
		return usdc, shares, nil
	case domain.OrderSideSell:
		return shares, usdc, nil
	}
	return 0, 0, fmt.Errorf("%w: unknown side %q", domain.ErrInvalidOrder, side)
}

// Build validates, prices and signs req.
func (b *OrderBuilder) Build(req domain.OrderRequest) (APISignedOrder, error) {
	if err := req.Validate(); err != nil {
		return APISignedOrder{}, err
	}
	makerAmt, takerAmt, err := Amounts(req.Side, req.Price, req.Size)
	if err != nil {
		return APISignedOrder{}, err
	}
	side := 0
	if req.Side == domain.OrderSideSell {
		side = 1
	}

	salt := b.salt()
	payload := crypto.OrderPayload{
		Salt:          strconv.FormatInt(salt, 10),
		Maker:         b.maker.Hex(),
		Signer:        b.signer.Address().Hex(),
		Taker:         zeroAddress,
		TokenID:       req.TokenID,
		MakerAmount:   strconv.FormatInt(makerAmt, 10),
		TakerAmount:   strconv.FormatInt(takerAmt, 10),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    strconv.Itoa(b.feeRateBps),
		Side:          side,
		SignatureType: b.signatureType,
	}
	sig, err := b.signer.SignOrder(payload)
	if err != nil {
		return APISignedOrder{}, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	return APISignedOrder{
		Salt:          salt,
		Maker:         payload.Maker,
		Signer:        payload.Signer,
		Taker:         payload.Taker,
		TokenID:       payload.TokenID,
		MakerAmount:   payload.MakerAmount,
		TakerAmount:   payload.TakerAmount,
		Expiration:    payload.Expiration,
		Nonce:         payload.Nonce,
		FeeRateBps:    payload.FeeRateBps,
		Side:          string(req.Side),
		SignatureType: payload.SignatureType,
		Signature:     sig,
	}, nil
}
