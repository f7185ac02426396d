// Package polygon redeems resolved outcome tokens on the Conditional Tokens
// contract.
package polygon

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Polygon mainnet contracts.
const (
	ConditionalTokensAddress = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"
	CollateralAddress        = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	ChainID                  = 137
)

const redeemABI = `[{
	"inputs": [
		{"name": "collateralToken", "type": "address"},
		{"name": "parentCollectionId", "type": "bytes32"},
		{"name": "conditionId", "type": "bytes32"},
		{"name": "indexSets", "type": "uint256[]"}
	],
	"name": "redeemPositions",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// Backend is the slice of an Ethereum JSON-RPC client the redeemer needs.
// *ethclient.Client satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// Config selects contracts and how long to wait for the receipt. A zero
// ReceiptPoll returns right after broadcast.
type Config struct {
	ChainID           int64
	ConditionalTokens string
	Collateral        string
	ReceiptPoll       time.Duration
}

// DefaultConfig returns the Polygon mainnet settings.
func DefaultConfig() Config {
	return Config{
		ChainID:           ChainID,
		ConditionalTokens: ConditionalTokensAddress,
		Collateral:        CollateralAddress,
		ReceiptPoll:       2 * time.Second,
	}
}

// Redeemer is a domain.Redeemer that burns both outcome positions of a
// resolved binary condition for collateral. Only tokens held by the signing
// key's own address are redeemed.
type Redeemer struct {
	backend    Backend
	key        *ecdsa.PrivateKey
	from       common.Address
	ctf        common.Address
	collateral common.Address
	chainID    *big.Int
	poll       time.Duration
	abi        abi.ABI
	logger     *slog.Logger
}

// NewRedeemer creates a redeemer signing with key.
func NewRedeemer(backend Backend, key *ecdsa.PrivateKey, cfg Config, logger *slog.Logger) (*Redeemer, error) {
	parsed, err := abi.JSON(strings.NewReader(redeemABI))
	if err != nil {
		return nil, fmt.Errorf("polygon: parse abi: %w", err)
	}
	for _, a := range []string{cfg.ConditionalTokens, cfg.Collateral} {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("polygon: invalid contract address %q", a)
		}
	}
	return &Redeemer{
		backend:    backend,
		key:        key,
		from:       ethcrypto.PubkeyToAddress(key.PublicKey),
		ctf:        common.HexToAddress(cfg.ConditionalTokens),
		collateral: common.HexToAddress(cfg.Collateral),
		chainID:    big.NewInt(cfg.ChainID),
		poll:       cfg.ReceiptPoll,
		abi:        parsed,
		logger:     logger.With(slog.String("component", "redeemer")),
	}, nil
}

// Redeem sends redeemPositions for conditionID and returns the tx hash.
func (r *Redeemer) Redeem(ctx context.Context, conditionID string) (string, error) {
	tx, err := r.BuildTx(ctx, conditionID)
	if err != nil {
		return "", err
	}
	if err := r.backend.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("polygon: send redeem: %w", err)
	}
	hash := tx.Hash()
	r.logger.InfoContext(ctx, "redeem sent", slog.String("condition_id", conditionID), slog.String("tx", hash.Hex()))

	if r.poll <= 0 {
		return hash.Hex(), nil
	}
	if err := r.waitMined(ctx, hash); err != nil {
		return hash.Hex(), err
	}
	return hash.Hex(), nil
}

// BuildTx packs and signs the redeem transaction without sending it.
func (r *Redeemer) BuildTx(ctx context.Context, conditionID string) (*ethtypes.Transaction, error) {
	cond := common.HexToHash(conditionID)
	if cond == (common.Hash{}) {
		return nil, fmt.Errorf("polygon: invalid condition id %q", conditionID)
	}
	// Binary markets: index sets 0b01 and 0b10, no parent collection.
	data, err := r.abi.Pack("redeemPositions",
		r.collateral,
		common.Hash{},
		cond,
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
	)
	if err != nil {
		return nil, fmt.Errorf("polygon: pack redeemPositions: %w", err)
	}

	nonce, err := r.backend.PendingNonceAt(ctx, r.from)
	if err != nil {
		return nil, fmt.Errorf("polygon: nonce: %w", err)
	}
	gasPrice, err := r.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("polygon: gas price: %w", err)
	}
	gas, err := r.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  r.from,
		To:    &r.ctf,
		Data:  data,
		Value: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("polygon: estimate gas: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &r.ctf,
		Value:    big.NewInt(0),
		Gas:      gas + gas/5,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(r.chainID), r.key)
	if err != nil {
		return nil, fmt.Errorf("polygon: sign redeem: %w", err)
	}
	return signed, nil
}

func (r *Redeemer) waitMined(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		receipt, err := r.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return fmt.Errorf("polygon: redeem %s reverted", hash.Hex())
			}
			return nil
		case !errors.Is(err, ethereum.NotFound):
			return fmt.Errorf("polygon: receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("polygon: waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
