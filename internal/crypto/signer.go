package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ExchangeAddress is the Polygon mainnet CTF exchange the order domain is
// bound to by default.
const ExchangeAddress = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

var (
	authDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)
	orderDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	clobAuthTypeHash = ethcrypto.Keccak256(
		[]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"),
	)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

// clobAuthMessage is the fixed attestation text of the L1 auth struct.
const clobAuthMessage = "This message attests that I control the given wallet"

// Signature types understood by the exchange.
const (
	SignatureEOA        = 0
	SignaturePolyProxy  = 1
	SignatureGnosisSafe = 2
)

// OrderPayload is the signed part of an exchange order. Integers are decimal
// strings so they survive JSON unchanged.
type OrderPayload struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`
	SignatureType int    `json:"signatureType"`
}

// Signer signs L1 auth messages and exchange orders with one wallet key.
type Signer struct {
	privateKey  *ecdsa.PrivateKey
	address     common.Address
	chainID     int64
	authDomain  []byte
	orderDomain []byte
}

// NewSigner creates a Signer for chainID. exchange is the verifying contract
// of the order domain; empty means ExchangeAddress.
func NewSigner(privateKeyHex string, chainID int64, exchange string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	if exchange == "" {
		exchange = ExchangeAddress
	}
	if !common.IsHexAddress(exchange) {
		return nil, fmt.Errorf("crypto/signer: invalid exchange address %q", exchange)
	}

	chain := bigIntTo32Bytes(big.NewInt(chainID))
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
		authDomain: ethcrypto.Keccak256(concatBytes(
			authDomainTypeHash,
			ethcrypto.Keccak256([]byte("ClobAuthDomain")),
			ethcrypto.Keccak256([]byte("1")),
			chain,
		)),
		orderDomain: ethcrypto.Keccak256(concatBytes(
			orderDomainTypeHash,
			ethcrypto.Keccak256([]byte("Polymarket CTF Exchange")),
			ethcrypto.Keccak256([]byte("1")),
			chain,
			common.LeftPadBytes(common.HexToAddress(exchange).Bytes(), 32),
		)),
	}, nil
}

// Address is the EOA that signs.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID is the chain the domains are bound to.
func (s *Signer) ChainID() int64 { return s.chainID }

// PrivateKey exposes the key for transaction signing on the same chain.
func (s *Signer) PrivateKey() *ecdsa.PrivateKey { return s.privateKey }

// SignAuthMessage signs the ClobAuth struct that L1 endpoints expect.
func (s *Signer) SignAuthMessage(timestamp, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(concatBytes(
		clobAuthTypeHash,
		common.LeftPadBytes(s.address.Bytes(), 32),
		ethcrypto.Keccak256([]byte(fmt.Sprintf("%d", timestamp))),
		bigIntTo32Bytes(big.NewInt(nonce)),
		ethcrypto.Keccak256([]byte(clobAuthMessage)),
	))
	return s.signDigest(eip712Hash(s.authDomain, structHash))
}

// SignOrder signs an order under the exchange domain.
func (s *Signer) SignOrder(order OrderPayload) (string, error) {
	structHash, err := orderStructHash(order)
	if err != nil {
		return "", err
	}
	return s.signDigest(eip712Hash(s.orderDomain, structHash))
}

// OrderDigest returns the EIP-712 digest SignOrder signs.
func (s *Signer) OrderDigest(order OrderPayload) ([]byte, error) {
	structHash, err := orderStructHash(order)
	if err != nil {
		return nil, err
	}
	return eip712Hash(s.orderDomain, structHash), nil
}

// eip712Hash is keccak256("\x19\x01" || domainSeparator || structHash).
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, domainSep, structHash))
}

// signDigest returns r || s || v as hex with v in {27, 28}.
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func orderStructHash(o OrderPayload) ([]byte, error) {
	fields := []struct {
		name  string
		value string
	}{
		{"salt", o.Salt},
		{"tokenId", o.TokenID},
		{"makerAmount", o.MakerAmount},
		{"takerAmount", o.TakerAmount},
		{"expiration", o.Expiration},
		{"nonce", o.Nonce},
		{"feeRateBps", o.FeeRateBps},
	}
	ints := make(map[string][]byte, len(fields))
	for _, f := range fields {
		n, ok := new(big.Int).SetString(f.value, 10)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("crypto/signer: invalid %s %q", f.name, f.value)
		}
		ints[f.name] = bigIntTo32Bytes(n)
	}
	for _, a := range []string{o.Maker, o.Signer, o.Taker} {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("crypto/signer: invalid address %q", a)
		}
	}

	return ethcrypto.Keccak256(concatBytes(
		orderTypeHash,
		ints["salt"],
		common.LeftPadBytes(common.HexToAddress(o.Maker).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Signer).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Taker).Bytes(), 32),
		ints["tokenId"],
		ints["makerAmount"],
		ints["takerAmount"],
		ints["expiration"],
		ints["nonce"],
		ints["feeRateBps"],
		bigIntTo32Bytes(big.NewInt(int64(o.Side))),
		bigIntTo32Bytes(big.NewInt(int64(o.SignatureType))),
	)), nil
}

// bigIntTo32Bytes left-pads n to a 32-byte word.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
