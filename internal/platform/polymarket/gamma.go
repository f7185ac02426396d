package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

const (
	// WindowSeconds is the length of one up/down market.
	WindowSeconds = 300

	slugPrefix = "btc-updown-5m-"

	// resolvedPrice is the outcome price at which a market counts as
	// resolved for that outcome.
	resolvedPrice = 0.90
)

// GammaClient is the REST client for the Polymarket Gamma API. It finds the
// live up/down window and reads resolved winners.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// WinnerAttempts and WinnerDelay bound the resolution poll.
	WinnerAttempts int
	WinnerDelay    time.Duration
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, logger *slog.Logger) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:         logger.With(slog.String("component", "gamma")),
		WinnerAttempts: 3,
		WinnerDelay:    2 * time.Second,
	}
}

// WindowStart floors t to the start of its five minute window.
func WindowStart(t time.Time) int64 {
	return t.Unix() / WindowSeconds * WindowSeconds
}

// SlugFor returns the event slug of the window starting at start.
func SlugFor(start int64) string {
	return slugPrefix + strconv.FormatInt(start, 10)
}

// CurrentWindow returns the window live at now. The slug of the current
// window is tried first, then the previous and next windows in case the
// clocks drift. Windows that already ended are skipped.
func (g *GammaClient) CurrentWindow(ctx context.Context, now time.Time) (*domain.MarketWindow, error) {
	start := WindowStart(now)
	for _, ts := range []int64{start, start - WindowSeconds, start + WindowSeconds} {
		slug := SlugFor(ts)
		w, err := g.WindowBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !w.EndTime.After(now) {
			continue
		}
		return w, nil
	}
	return nil, fmt.Errorf("polymarket/gamma: %w at %s", domain.ErrNoWindow, now.UTC().Format(time.RFC3339))
}

// WindowBySlug loads an up/down event and converts its market to a window.
func (g *GammaClient) WindowBySlug(ctx context.Context, slug string) (*domain.MarketWindow, error) {
	body, err := g.doGet(ctx, "/events/slug/"+url.PathEscape(slug))
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get event %s: %w", slug, err)
	}

	var event APIEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode event: %w", err)
	}
	if len(event.Markets) == 0 {
		return nil, fmt.Errorf("polymarket/gamma: %w: event %s has no markets", domain.ErrNotFound, slug)
	}

	m := &event.Markets[0]
	w := &domain.MarketWindow{
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Slug:        slug,
		Tokens:      make(map[domain.Outcome]string, 2),
		Asks:        make(map[domain.Outcome]float64, 2),
		Bids:        make(map[domain.Outcome]float64, 2),
	}
	if w.Question == "" {
		w.Question = event.Title
	}
	for label, i := range m.outcomeIndex() {
		o := domain.Outcome(label)
		if !o.Valid() || i >= len(m.ClobTokenIDs) {
			continue
		}
		w.Tokens[o] = m.ClobTokenIDs[i]
	}
	if _, ok := w.Token(domain.OutcomeUp); !ok {
		return nil, fmt.Errorf("polymarket/gamma: event %s: missing Up token", slug)
	}
	if _, ok := w.Token(domain.OutcomeDown); !ok {
		return nil, fmt.Errorf("polymarket/gamma: event %s: missing Down token", slug)
	}

	if end, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
		w.EndTime = end
	} else if start, err := strconv.ParseInt(slug[len(slugPrefix):], 10, 64); err == nil {
		w.EndTime = time.Unix(start+WindowSeconds, 0)
	} else {
		return nil, fmt.Errorf("polymarket/gamma: event %s: bad end date %q", slug, m.EndDate)
	}
	return w, nil
}

// Winner polls the market by slug until one outcome price reaches the
// resolution threshold. It returns ErrNotFound when the market has not
// resolved within the configured attempts.
func (g *GammaClient) Winner(ctx context.Context, slug string) (domain.Outcome, error) {
	params := url.Values{}
	params.Set("slug", slug)
	res, err := g.pollResolution(ctx, slug, params)
	if err != nil {
		return "", err
	}
	return res.Winner, nil
}

// Resolution is the settled state of one market.
type Resolution struct {
	Winner domain.Outcome
	Tokens map[domain.Outcome]string
}

// WinningToken returns the token id that pays out.
func (r Resolution) WinningToken() string {
	return r.Tokens[r.Winner]
}

// Resolve is Winner keyed by condition id. It also returns the token ids so
// holdings can be valued without a window at hand.
func (g *GammaClient) Resolve(ctx context.Context, conditionID string) (Resolution, error) {
	params := url.Values{}
	params.Set("condition_ids", conditionID)
	return g.pollResolution(ctx, conditionID, params)
}

func (g *GammaClient) pollResolution(ctx context.Context, label string, params url.Values) (Resolution, error) {
	attempts := max(1, g.WinnerAttempts)
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := g.resolutionOnce(ctx, params)
		switch {
		case err != nil:
			g.logger.DebugContext(ctx, "resolution poll failed",
				slog.String("market", label), slog.Int("attempt", attempt), slog.String("error", err.Error()))
		case res.Winner != "":
			g.logger.InfoContext(ctx, "resolved",
				slog.String("market", label), slog.String("winner", string(res.Winner)), slog.Int("attempt", attempt))
			return res, nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return Resolution{}, ctx.Err()
		case <-time.After(g.WinnerDelay):
		}
	}
	return Resolution{}, fmt.Errorf("polymarket/gamma: %w: %s unresolved after %d attempts", domain.ErrNotFound, label, attempts)
}

// resolutionOnce reads the market once. An unresolved market yields an
// empty Winner and no error.
func (g *GammaClient) resolutionOnce(ctx context.Context, params url.Values) (Resolution, error) {
	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return Resolution{}, err
	}

	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return Resolution{}, fmt.Errorf("decode markets: %w", err)
	}
	if len(markets) == 0 {
		return Resolution{}, nil
	}
	m := &markets[0]
	res := Resolution{Tokens: make(map[domain.Outcome]string, 2)}
	for i, id := range m.ClobTokenIDs {
		if i < len(m.Outcomes) {
			res.Tokens[domain.Outcome(m.Outcomes[i])] = id
		}
	}
	if len(m.Outcomes) < 2 || len(m.OutcomePrices) < 2 {
		return res, nil
	}

	// Prices are positional: index 0 is Up, index 1 is Down.
	up, err := strconv.ParseFloat(m.OutcomePrices[0], 64)
	if err != nil {
		return Resolution{}, fmt.Errorf("parse up price: %w", err)
	}
	down, err := strconv.ParseFloat(m.OutcomePrices[1], 64)
	if err != nil {
		return Resolution{}, fmt.Errorf("parse down price: %w", err)
	}
	switch {
	case up >= resolvedPrice:
		res.Winner = domain.OutcomeUp
	case down >= resolvedPrice:
		res.Winner = domain.OutcomeDown
	}
	return res, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	return getJSON(ctx, g.httpClient, g.baseURL+path)
}

// getJSON is the shared unauthenticated GET used by the Gamma, book and data
// API calls.
func getJSON(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}
