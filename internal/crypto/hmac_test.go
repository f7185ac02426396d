package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestL2HeadersAt(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	auth := &HMACAuth{
		Key:        "key-1",
		Secret:     base64.URLEncoding.EncodeToString(secret),
		Passphrase: "pass",
	}
	h := auth.L2HeadersAt("0xabc", "POST", "/order", `{"a":1}`, 1_760_000_000)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(`1760000000POST/order{"a":1}`))
	want := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, h["POLY_SIGNATURE"])
	assert.Equal(t, "1760000000", h["POLY_TIMESTAMP"])
	assert.Equal(t, "key-1", h["POLY_API_KEY"])
	assert.Equal(t, "pass", h["POLY_PASSPHRASE"])
	assert.Equal(t, "0xabc", h["POLY_ADDRESS"])
}

func TestDecodeSecretAcceptsStandardBase64(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0xfe, 0x01}
	assert.Equal(t, raw, decodeSecret(base64.StdEncoding.EncodeToString(raw)))
	assert.Equal(t, raw, decodeSecret(base64.URLEncoding.EncodeToString(raw)))
	assert.Equal(t, []byte("%%%"), decodeSecret("%%%"))
}

func TestHMACAuthValidAndRedacted(t *testing.T) {
	var nilAuth *HMACAuth
	assert.False(t, nilAuth.Valid())
	assert.False(t, (&HMACAuth{Key: "k"}).Valid())

	auth := &HMACAuth{Key: "abcdefgh", Secret: "secretvalue", Passphrase: "p"}
	assert.True(t, auth.Valid())
	assert.Equal(t, "HMACAuth{key=abcd****, secret=secr****}", auth.String())
}

func TestL1Headers(t *testing.T) {
	h := L1Headers("0xabc", "0xsig", 1_760_000_000, 3)
	assert.Equal(t, map[string]string{
		"POLY_ADDRESS":   "0xabc",
		"POLY_SIGNATURE": "0xsig",
		"POLY_TIMESTAMP": "1760000000",
		"POLY_NONCE":     "3",
	}, h)
}
