package crypto

import (
	"encoding/hex"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testOrder(s *Signer) OrderPayload {
	return OrderPayload{
		Salt:          "123456789",
		Maker:         "0x00000000000000000000000000000000000000aa",
		Signer:        s.Address().Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		MakerAmount:   "8200000",
		TakerAmount:   "10000000",
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          0,
		SignatureType: SignaturePolyProxy,
	}
}

func recoverSigner(t *testing.T, digest []byte, sigHex string) string {
	t.Helper()
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])
	sig[64] -= 27
	pub, err := ethcrypto.SigToPub(digest, sig)
	require.NoError(t, err)
	return ethcrypto.PubkeyToAddress(*pub).Hex()
}

func TestNewSigner(t *testing.T) {
	s, err := NewSigner("0x"+testKey, 137, "")
	require.NoError(t, err)

	pk, err := ethcrypto.HexToECDSA(testKey)
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.PubkeyToAddress(pk.PublicKey), s.Address())
	assert.Equal(t, int64(137), s.ChainID())

	_, err = NewSigner("zz", 137, "")
	assert.Error(t, err)
	_, err = NewSigner(testKey, 137, "not-an-address")
	assert.Error(t, err)
}

func TestSignOrderRecoversToSigner(t *testing.T) {
	s, err := NewSigner(testKey, 137, ExchangeAddress)
	require.NoError(t, err)

	order := testOrder(s)
	sig, err := s.SignOrder(order)
	require.NoError(t, err)
	digest, err := s.OrderDigest(order)
	require.NoError(t, err)

	assert.Equal(t, s.Address().Hex(), recoverSigner(t, digest, sig))

	again, err := s.SignOrder(order)
	require.NoError(t, err)
	assert.Equal(t, sig, again, "RFC6979 signatures are deterministic")
}

func TestOrderDigestDependsOnDomain(t *testing.T) {
	polygon, err := NewSigner(testKey, 137, ExchangeAddress)
	require.NoError(t, err)
	amoy, err := NewSigner(testKey, 80002, ExchangeAddress)
	require.NoError(t, err)

	a, err := polygon.OrderDigest(testOrder(polygon))
	require.NoError(t, err)
	b, err := amoy.OrderDigest(testOrder(amoy))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSignOrderRejectsBadFields(t *testing.T) {
	s, err := NewSigner(testKey, 137, "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(o *OrderPayload)
	}{
		{"non numeric amount", func(o *OrderPayload) { o.MakerAmount = "8.2" }},
		{"negative salt", func(o *OrderPayload) { o.Salt = "-1" }},
		{"empty token", func(o *OrderPayload) { o.TokenID = "" }},
		{"bad maker", func(o *OrderPayload) { o.Maker = "0x1234" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testOrder(s)
			tt.mutate(&o)
			_, err := s.SignOrder(o)
			assert.Error(t, err)
		})
	}
}

func TestSignAuthMessage(t *testing.T) {
	s, err := NewSigner(testKey, 137, "")
	require.NoError(t, err)

	a, err := s.SignAuthMessage(1_760_000_000, 0)
	require.NoError(t, err)
	b, err := s.SignAuthMessage(1_760_000_000, 1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "0x"))
	assert.Len(t, a, 2+130)
}

func TestBigIntTo32Bytes(t *testing.T) {
	s, err := NewSigner(testKey, 1, "")
	require.NoError(t, err)
	assert.Len(t, bigIntTo32Bytes(s.privateKey.D), 32)
}
