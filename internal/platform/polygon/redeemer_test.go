package polygon

import (
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	sent     []*ethtypes.Transaction
	pending  int
	status   uint64
	receipts int
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 7, nil }
func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(30e9), nil
}
func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*ethtypes.Receipt, error) {
	f.receipts++
	if f.receipts <= f.pending {
		return nil, ethereum.NotFound
	}
	return &ethtypes.Receipt{Status: f.status}, nil
}

const (
	testKey  = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testCond = "0x5f65177b394277fd294cd75650044e32ba009a95022d88a0c1d565897d72f8f1"
)

func newTestRedeemer(t *testing.T, b *fakeBackend, poll time.Duration) *Redeemer {
	t.Helper()
	key, err := ethcrypto.HexToECDSA(testKey)
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.ReceiptPoll = poll
	r, err := NewRedeemer(b, key, cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return r
}

func TestBuildTxEncodesRedeemPositions(t *testing.T) {
	r := newTestRedeemer(t, &fakeBackend{}, 0)
	tx, err := r.BuildTx(context.Background(), testCond)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, common.HexToAddress(ConditionalTokensAddress), *tx.To())

	sender, err := ethtypes.Sender(ethtypes.NewEIP155Signer(big.NewInt(ChainID)), tx)
	require.NoError(t, err)
	assert.Equal(t, r.from, sender)

	method, err := r.abi.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "redeemPositions", method.Name)

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Len(t, args, 4)
	assert.Equal(t, common.HexToAddress(CollateralAddress), args[0])
	assert.Equal(t, [32]byte(common.HexToHash(testCond)), args[2])
	assert.Equal(t, []*big.Int{big.NewInt(1), big.NewInt(2)}, args[3])
}

func TestRedeemWaitsForReceipt(t *testing.T) {
	b := &fakeBackend{pending: 2, status: ethtypes.ReceiptStatusSuccessful}
	r := newTestRedeemer(t, b, time.Millisecond)

	hash, err := r.Redeem(context.Background(), testCond)
	require.NoError(t, err)
	require.Len(t, b.sent, 1)
	assert.Equal(t, b.sent[0].Hash().Hex(), hash)
	assert.Equal(t, 3, b.receipts)
}

func TestRedeemReverted(t *testing.T) {
	b := &fakeBackend{status: ethtypes.ReceiptStatusFailed}
	r := newTestRedeemer(t, b, time.Millisecond)

	_, err := r.Redeem(context.Background(), testCond)
	assert.ErrorContains(t, err, "reverted")
}

func TestRedeemRejectsEmptyCondition(t *testing.T) {
	b := &fakeBackend{}
	r := newTestRedeemer(t, b, 0)
	_, err := r.Redeem(context.Background(), "")
	assert.Error(t, err)
	assert.Empty(t, b.sent)
}
