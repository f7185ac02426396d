package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether flags are sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// stringList decodes the Gamma habit of sending arrays as JSON-encoded
// strings ("[\"Up\",\"Down\"]") as well as plain arrays.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			return err
		}
		if encoded == "" {
			*l = nil
			return nil
		}
		if err := json.Unmarshal([]byte(encoded), &raw); err != nil {
			return fmt.Errorf("decode encoded list %q: %w", encoded, err)
		}
	}
	out := make(stringList, 0, len(raw))
	for _, v := range raw {
		switch v := v.(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	*l = out
	return nil
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIEvent is a Gamma event. An up/down event carries exactly one market.
type APIEvent struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Slug    string      `json:"slug"`
	Active  flexBool    `json:"active"`
	Closed  flexBool    `json:"closed"`
	Markets []APIMarket `json:"markets"`
}

// APIMarket is a Gamma market.
type APIMarket struct {
	ID            string     `json:"id"`
	Question      string     `json:"question"`
	ConditionID   string     `json:"conditionId"`
	Slug          string     `json:"slug"`
	EndDate       string     `json:"endDate"`
	Active        flexBool   `json:"active"`
	Closed        flexBool   `json:"closed"`
	Outcomes      stringList `json:"outcomes"`
	OutcomePrices stringList `json:"outcomePrices"`
	ClobTokenIDs  stringList `json:"clobTokenIds"`
}

// outcomeIndex maps each outcome label to its position in the parallel
// token and price lists.
func (m *APIMarket) outcomeIndex() map[string]int {
	idx := make(map[string]int, len(m.Outcomes))
	for i, o := range m.Outcomes {
		idx[o] = i
	}
	return idx
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIBookLevel is one price level of a /book response.
type APIBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// APIBook is the /book response for one token.
type APIBook struct {
	Market  string         `json:"market"`
	AssetID string         `json:"asset_id"`
	Bids    []APIBookLevel `json:"bids"`
	Asks    []APIBookLevel `json:"asks"`
}

// Best returns the lowest ask and the highest bid; zero means the side is
// empty. Levels are scanned rather than trusting the server's sort order.
func (b *APIBook) Best() (ask, bid float64) {
	for _, l := range b.Asks {
		p, err := strconv.ParseFloat(l.Price, 64)
		if err != nil || p <= 0 {
			continue
		}
		if ask == 0 || p < ask {
			ask = p
		}
	}
	for _, l := range b.Bids {
		p, err := strconv.ParseFloat(l.Price, 64)
		if err != nil || p <= 0 {
			continue
		}
		if p > bid {
			bid = p
		}
	}
	return ask, bid
}

// APIOrderRequest is the body of POST /order.
type APIOrderRequest struct {
	Order     APISignedOrder `json:"order"`
	Owner     string         `json:"owner"`
	OrderType string         `json:"orderType"`
}

// APISignedOrder is the order struct as the CLOB expects it on the wire.
type APISignedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// APIOrderResult is the response from placing an order. Amounts are decimal
// strings: for a BUY, makingAmount is the collateral paid and takingAmount the
// shares received; for a SELL it is the other way round.
type APIOrderResult struct {
	Success      bool     `json:"success"`
	ErrorMsg     string   `json:"errorMsg,omitempty"`
	OrderID      string   `json:"orderID,omitempty"`
	Status       string   `json:"status,omitempty"`
	MakingAmount string   `json:"makingAmount,omitempty"`
	TakingAmount string   `json:"takingAmount,omitempty"`
	TxHashes     []string `json:"transactionsHashes,omitempty"`
}

// APIBalance is the /balance-allowance response. Balance is in micro-USDC.
type APIBalance struct {
	Balance string `json:"balance"`
}

// APIKeyResponse is returned by the API key derivation endpoints.
type APIKeyResponse struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APIPosition is one wallet holding from the data API.
type APIPosition struct {
	Asset       string    `json:"asset"`
	ConditionID string    `json:"conditionId"`
	Size        flexFloat `json:"size"`
	AvgPrice    flexFloat `json:"avgPrice"`
	Outcome     string    `json:"outcome"`
	Slug        string    `json:"slug"`
}
