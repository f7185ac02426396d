package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

const (
	testKey    = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testFunder = "0x00000000000000000000000000000000000000aa"
)

func jsonUnmarshal(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}

func testAuth() *crypto.HMACAuth {
	return &crypto.HMACAuth{Key: "api-key", Secret: "c2VjcmV0c2VjcmV0c2VjcmV0", Passphrase: "pp"}
}

func testClob(t *testing.T, url string, auth *crypto.HMACAuth) *ClobClient {
	t.Helper()
	signer, err := crypto.NewSigner(testKey, 137, "")
	require.NoError(t, err)
	return NewClobClient(url, signer, auth, crypto.SignaturePolyProxy, slog.New(slog.DiscardHandler))
}

func TestQuotesSkipsFailedBooks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("token_id") {
		case "111":
			fmt.Fprint(w, `{"asset_id":"111","bids":[{"price":"0.48","size":"10"},{"price":"0.50","size":"5"}],"asks":[{"price":"0.55","size":"3"},{"price":"0.52","size":"9"}]}`)
		default:
			http.Error(w, "no book", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := testClob(t, srv.URL, nil)
	asks, bids, err := c.Quotes(context.Background(), map[domain.Outcome]string{
		domain.OutcomeUp:   "111",
		domain.OutcomeDown: "222",
	})
	require.NoError(t, err)
	assert.Equal(t, map[domain.Outcome]float64{domain.OutcomeUp: 0.52}, asks)
	assert.Equal(t, map[domain.Outcome]float64{domain.OutcomeUp: 0.50}, bids)

	_, _, err = c.Quotes(context.Background(), map[domain.Outcome]string{domain.OutcomeDown: "222"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBookBestOnEmptySides(t *testing.T) {
	b := APIBook{Asks: []APIBookLevel{{Price: "x"}}, Bids: nil}
	ask, bid := b.Best()
	assert.Zero(t, ask)
	assert.Zero(t, bid)
}

func TestBalanceSignsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/balance-allowance", r.URL.Path)
		assert.Equal(t, "COLLATERAL", r.URL.Query().Get("asset_type"))
		assert.Equal(t, "1", r.URL.Query().Get("signature_type"))
		assert.Equal(t, "api-key", r.Header.Get("POLY_API_KEY"))
		assert.Equal(t, "pp", r.Header.Get("POLY_PASSPHRASE"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		fmt.Fprint(w, `{"balance":"12500000"}`)
	}))
	defer srv.Close()

	bal, err := testClob(t, srv.URL, testAuth()).Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 12.5, bal, 1e-9)
}

func TestAuthenticatedCallsNeedCredentials(t *testing.T) {
	c := testClob(t, "http://127.0.0.1:0", nil)
	_, err := c.Balance(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = c.PostOrder(context.Background(), APISignedOrder{}, domain.OrderTypeFOK)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestPostOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"errorMsg":"order couldn't be fully filled"}`)
	}))
	defer srv.Close()

	_, err := testClob(t, srv.URL, testAuth()).PostOrder(context.Background(), APISignedOrder{}, domain.OrderTypeFOK)
	assert.ErrorIs(t, err, domain.ErrNoFill)
	assert.ErrorContains(t, err, "fully filled")
}

func TestCheckHTTPStatus(t *testing.T) {
	assert.NoError(t, checkHTTPStatus(204, nil))
	assert.ErrorIs(t, checkHTTPStatus(404, nil), domain.ErrNotFound)
	assert.ErrorIs(t, checkHTTPStatus(403, nil), domain.ErrUnauthorized)
	assert.ErrorIs(t, checkHTTPStatus(429, nil), domain.ErrRateLimited)
	assert.ErrorContains(t, checkHTTPStatus(500, []byte("oops")), "HTTP 500: oops")
}

func TestDeriveAPIKeyFallsBackToCreate(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		assert.Equal(t, "0", r.Header.Get("POLY_NONCE"))
		if r.URL.Path == "/auth/derive-api-key" {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"apiKey":"k","secret":"s","passphrase":"p"}`)
	}))
	defer srv.Close()

	c := testClob(t, srv.URL, nil)
	auth, err := c.DeriveAPIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k", auth.Key)
	assert.Same(t, auth, c.Auth())
	assert.Equal(t, []string{"GET /auth/derive-api-key", "POST /auth/api-key"}, paths)
}
