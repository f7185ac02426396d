package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the L2 API credentials derived from the wallet key.
type HMACAuth struct {
	Key        string
	Secret     string // url-safe base64
	Passphrase string
}

// Valid reports whether all three credentials are present.
func (h *HMACAuth) Valid() bool {
	return h != nil && h.Key != "" && h.Secret != "" && h.Passphrase != ""
}

// L2Headers returns the authentication headers for a CLOB request signed
// at the current time.
func (h *HMACAuth) L2Headers(address, method, path, body string) map[string]string {
	return h.L2HeadersAt(address, method, path, body, time.Now().Unix())
}

// L2HeadersAt is L2Headers with a caller-supplied Unix timestamp. The
// signature is HMAC-SHA256 over timestamp+method+path+body, keyed with the
// decoded secret and encoded as url-safe base64.
func (h *HMACAuth) L2HeadersAt(address, method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    h.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": h.Passphrase,
		"POLY_SIGNATURE":  hmacSHA256(decodeSecret(h.Secret), ts+method+path+body),
	}
}

// L1Headers returns the headers of a wallet-signed request.
func L1Headers(address, signature string, unixTS, nonce int64) map[string]string {
	return map[string]string{
		"POLY_ADDRESS":   address,
		"POLY_SIGNATURE": signature,
		"POLY_TIMESTAMP": strconv.FormatInt(unixTS, 10),
		"POLY_NONCE":     strconv.FormatInt(nonce, 10),
	}
}

// decodeSecret accepts url-safe or standard base64 and falls back to the raw
// bytes, which yields a signature the server rejects rather than a panic.
func decodeSecret(secret string) []byte {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.StdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(secret); err == nil {
			return b
		}
	}
	return []byte(secret)
}

func hmacSHA256(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
