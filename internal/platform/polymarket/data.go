package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// DataClient reads wallet holdings from the public data API.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDataClient creates a data API client for baseURL, e.g.
// "https://data-api.polymarket.com".
func NewDataClient(baseURL string) *DataClient {
	return &DataClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Positions returns the non-empty holdings of user.
func (d *DataClient) Positions(ctx context.Context, user string) ([]domain.ExchangePosition, error) {
	params := url.Values{}
	params.Set("user", user)
	params.Set("sizeThreshold", "0")

	body, err := getJSON(ctx, d.httpClient, d.baseURL+"/positions?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: positions: %w", err)
	}
	var raw []APIPosition
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode positions: %w", err)
	}

	out := make([]domain.ExchangePosition, 0, len(raw))
	for _, p := range raw {
		if p.Size <= 0 {
			continue
		}
		out = append(out, domain.ExchangePosition{
			Asset:       p.Asset,
			ConditionID: p.ConditionID,
			Size:        float64(p.Size),
			AvgPrice:    float64(p.AvgPrice),
		})
	}
	return out, nil
}
