package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API: books, order placement, cancellation and balances.
type ClobClient struct {
	baseURL       string
	httpClient    *http.Client
	signer        *crypto.Signer
	signatureType int
	logger        *slog.Logger
	now           func() time.Time

	mu   sync.RWMutex
	auth *crypto.HMACAuth
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// signer signs the L1 auth message; auth may be nil until DeriveAPIKey runs.
// signatureType is the wallet type reported on balance queries. A nil signer
// gives a read-only client that can only fetch books.
func NewClobClient(baseURL string, signer *crypto.Signer, auth *crypto.HMACAuth, signatureType int, logger *slog.Logger) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		signer:        signer,
		signatureType: signatureType,
		logger:        logger.With(slog.String("component", "clob")),
		now:           time.Now,
		auth:          auth,
	}
}

// Auth returns the L2 credentials in use, or nil.
func (c *ClobClient) Auth() *crypto.HMACAuth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth
}

// Book fetches the order book of one token.
func (c *ClobClient) Book(ctx context.Context, tokenID string) (*APIBook, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)
	body, err := getJSON(ctx, c.httpClient, c.baseURL+"/book?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: get book: %w", err)
	}
	var book APIBook
	if err := json.Unmarshal(body, &book); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	return &book, nil
}

// Quotes fetches the best ask and bid of every token concurrently. A token
// whose book cannot be fetched is left out of the result; the call fails only
// when no book could be fetched at all.
func (c *ClobClient) Quotes(ctx context.Context, tokens map[domain.Outcome]string) (asks, bids map[domain.Outcome]float64, err error) {
	asks = make(map[domain.Outcome]float64, len(tokens))
	bids = make(map[domain.Outcome]float64, len(tokens))

	var (
		mu       sync.Mutex
		failures int
		lastErr  error
		g        errgroup.Group
	)
	for o, token := range tokens {
		g.Go(func() error {
			book, err := c.Book(ctx, token)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				lastErr = err
				c.logger.DebugContext(ctx, "book fetch failed", slog.String("outcome", string(o)), slog.String("error", err.Error()))
				return nil
			}
			ask, bid := book.Best()
			if ask > 0 {
				asks[o] = ask
			}
			if bid > 0 {
				bids[o] = bid
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(tokens) > 0 && failures == len(tokens) {
		return nil, nil, lastErr
	}
	return asks, bids, nil
}

// PostOrder submits a signed order and returns the exchange's answer. A
// response with success=false is returned as an error wrapping
// domain.ErrNoFill so callers can tell a killed order from a transport fault.
func (c *ClobClient) PostOrder(ctx context.Context, order APISignedOrder, orderType domain.OrderType) (APIOrderResult, error) {
	auth := c.Auth()
	if !auth.Valid() {
		return APIOrderResult{}, fmt.Errorf("polymarket/clob: post order: %w: no api credentials", domain.ErrUnauthorized)
	}
	body := APIOrderRequest{
		Order:     order,
		Owner:     auth.Key,
		OrderType: string(orderType),
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", nil, body)
	if err != nil {
		return APIOrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var result APIOrderResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return APIOrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	if !result.Success {
		return result, fmt.Errorf("polymarket/clob: order rejected: %w: %s", domain.ErrNoFill, result.ErrorMsg)
	}
	return result, nil
}

// CancelAll cancels all open orders for the authenticated wallet.
func (c *ClobClient) CancelAll(ctx context.Context) error {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/cancel-all", nil, nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel all: %w", err)
	}

	var result struct {
		Canceled    []string          `json:"canceled"`
		NotCanceled map[string]string `json:"not_canceled"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel-all response: %w", err)
	}
	if len(result.Canceled) > 0 || len(result.NotCanceled) > 0 {
		c.logger.InfoContext(ctx, "orders cancelled",
			slog.Int("canceled", len(result.Canceled)),
			slog.Int("not_canceled", len(result.NotCanceled)),
		)
	}
	return nil
}

// Balance returns the collateral balance in USDC.
func (c *ClobClient) Balance(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("asset_type", "COLLATERAL")
	q.Set("signature_type", strconv.Itoa(c.signatureType))

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, "/balance-allowance", q, nil)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: balance: %w", err)
	}
	var bal APIBalance
	if err := json.Unmarshal(respBody, &bal); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode balance: %w", err)
	}
	raw, err := strconv.ParseFloat(bal.Balance, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: parse balance %q: %w", bal.Balance, err)
	}
	return raw / usdcUnit, nil
}

// DeriveAPIKey obtains L2 credentials with a wallet-signed ClobAuth message.
// The existing key is derived first; when the wallet has none yet a new one
// is created. On success the credentials are installed on the client.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) (*crypto.HMACAuth, error) {
	if c.signer == nil {
		return nil, errors.New("polymarket/clob: derive api key: no signer")
	}
	creds, err := c.l1Request(ctx, http.MethodGet, "/auth/derive-api-key")
	if err != nil {
		c.logger.InfoContext(ctx, "derive api key failed, creating one", slog.String("error", err.Error()))
		creds, err = c.l1Request(ctx, http.MethodPost, "/auth/api-key")
		if err != nil {
			return nil, err
		}
	}

	auth := &crypto.HMACAuth{Key: creds.APIKey, Secret: creds.Secret, Passphrase: creds.Passphrase}
	if !auth.Valid() {
		return nil, fmt.Errorf("polymarket/clob: derive api key: %w: incomplete credentials", domain.ErrUnauthorized)
	}
	c.mu.Lock()
	c.auth = auth
	c.mu.Unlock()
	return auth, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *ClobClient) l1Request(ctx context.Context, method, path string) (APIKeyResponse, error) {
	timestamp := c.now().Unix()
	const nonce = int64(0)

	sig, err := c.signer.SignAuthMessage(timestamp, nonce)
	if err != nil {
		return APIKeyResponse{}, fmt.Errorf("polymarket/clob: %w: %v", domain.ErrSigningFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return APIKeyResponse{}, fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	for k, v := range crypto.L1Headers(c.signer.Address().Hex(), sig, timestamp, nonce) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return APIKeyResponse{}, fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return APIKeyResponse{}, fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return APIKeyResponse{}, fmt.Errorf("polymarket/clob: auth %s: %w", path, err)
	}

	var creds APIKeyResponse
	if err := json.Unmarshal(respBody, &creds); err != nil {
		return APIKeyResponse{}, fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}
	return creds, nil
}

// doAuthenticatedRequest builds, signs (HMAC), sends, and reads an HTTP
// request against the CLOB API. The signature covers the path without the
// query string.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	auth := c.Auth()
	if !auth.Valid() || c.signer == nil {
		return nil, fmt.Errorf("%w: no api credentials", domain.ErrUnauthorized)
	}

	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range auth.L2HeadersAt(c.signer.Address().Hex(), method, path, bodyStr, c.now().Unix()) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
