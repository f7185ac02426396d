package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

func TestAmounts(t *testing.T) {
	tests := []struct {
		name      string
		side      domain.OrderSide
		price     float64
		size      float64
		maker     int64
		taker     int64
		expectErr bool
	}{
		{"buy", domain.OrderSideBuy, 0.82, 18, 14_760_000, 18_000_000, false},
		{"sell", domain.OrderSideSell, 0.97, 18, 18_000_000, 17_460_000, false},
		{"price rounded to tick", domain.OrderSideBuy, 0.8234, 10, 8_200_000, 10_000_000, false},
		{"size truncated", domain.OrderSideSell, 0.5, 3.999, 3_990_000, 1_995_000, false},
		{"zero size", domain.OrderSideBuy, 0.5, 0.001, 0, 0, true},
		{"bad side", domain.OrderSide("HOLD"), 0.5, 1, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maker, taker, err := Amounts(tt.side, tt.price, tt.size)
			if tt.expectErr {
				assert.ErrorIs(t, err, domain.ErrInvalidOrder)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.maker, maker)
			assert.Equal(t, tt.taker, taker)
		})
	}
}

func TestOrderBuilderSigns(t *testing.T) {
	signer, err := crypto.NewSigner(testKey, 137, "")
	require.NoError(t, err)
	b, err := NewOrderBuilder(signer, testFunder, crypto.SignaturePolyProxy, 0)
	require.NoError(t, err)
	b.salt = func() int64 { return 42 }

	o, err := b.Build(domain.OrderRequest{TokenID: "111", Side: domain.OrderSideBuy, Type: domain.OrderTypeFOK, Price: 0.82, Size: 18})
	require.NoError(t, err)
	assert.Equal(t, int64(42), o.Salt)
	assert.Equal(t, common.HexToAddress(testFunder).Hex(), o.Maker)
	assert.Equal(t, signer.Address().Hex(), o.Signer)
	assert.Equal(t, "14760000", o.MakerAmount)
	assert.Equal(t, "18000000", o.TakerAmount)
	assert.Equal(t, "BUY", o.Side)
	assert.Equal(t, crypto.SignaturePolyProxy, o.SignatureType)
	assert.Len(t, o.Signature, 132)

	_, err = b.Build(domain.OrderRequest{TokenID: "111", Side: domain.OrderSideBuy, Price: 1.2, Size: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestOrderBuilderWithoutFunderIsEOA(t *testing.T) {
	signer, err := crypto.NewSigner(testKey, 137, "")
	require.NoError(t, err)
	b, err := NewOrderBuilder(signer, "", crypto.SignaturePolyProxy, 0)
	require.NoError(t, err)
	assert.Equal(t, signer.Address().Hex(), b.Maker())
	assert.Equal(t, crypto.SignatureEOA, b.signatureType)

	_, err = NewOrderBuilder(signer, "0xnope", crypto.SignaturePolyProxy, 0)
	assert.Error(t, err)
}

func TestFillFromResult(t *testing.T) {
	fill, err := FillFromResult(domain.OrderSideBuy, APIOrderResult{OrderID: "o1", MakingAmount: "14.76", TakingAmount: "18"})
	require.NoError(t, err)
	assert.Equal(t, &domain.Fill{OrderID: "o1", Shares: 18, CostUSDC: 14.76}, fill)

	fill, err = FillFromResult(domain.OrderSideSell, APIOrderResult{OrderID: "o2", MakingAmount: "18", TakingAmount: "17.46"})
	require.NoError(t, err)
	assert.Equal(t, &domain.Fill{OrderID: "o2", Shares: 18, CostUSDC: 17.46}, fill)

	fill, err = FillFromResult(domain.OrderSideBuy, APIOrderResult{OrderID: "o3", Status: "delayed"})
	require.NoError(t, err)
	assert.Nil(t, fill)

	_, err = FillFromResult(domain.OrderSideBuy, APIOrderResult{MakingAmount: "abc"})
	assert.Error(t, err)
}

func TestExecutorBuyEndToEnd(t *testing.T) {
	var got APIOrderRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /order", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"success":true,"orderID":"o1","status":"matched","makingAmount":"14.76","takingAmount":"18"}`)
	})
	mux.HandleFunc("GET /positions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, common.HexToAddress(testFunder).Hex(), r.URL.Query().Get("user"))
		fmt.Fprint(w, `[{"asset":"111","conditionId":"0xc","size":18,"avgPrice":"0.82"},{"asset":"222","size":0,"avgPrice":0.1}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	clob := testClob(t, srv.URL, testAuth())
	b, err := NewOrderBuilder(clob.signer, testFunder, crypto.SignaturePolyProxy, 0)
	require.NoError(t, err)
	ex := NewExecutor(clob, b, NewDataClient(srv.URL), slog.New(slog.DiscardHandler))

	fill, err := ex.Buy(context.Background(), domain.OrderRequest{TokenID: "111", Price: 0.82, Size: 18.7})
	require.NoError(t, err)
	assert.Equal(t, 18.0, fill.Shares)
	assert.InDelta(t, 0.82, fill.AvgPrice(), 1e-9)

	assert.Equal(t, "FOK", got.OrderType)
	assert.Equal(t, "api-key", got.Owner)
	assert.Equal(t, "BUY", got.Order.Side)
	assert.Equal(t, "18000000", got.Order.TakerAmount)

	positions, err := ex.Positions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.ExchangePosition{{Asset: "111", ConditionID: "0xc", Size: 18, AvgPrice: 0.82}}, positions)
}
