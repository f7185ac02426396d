package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// QuoteCache implements domain.QuoteCache with one hash per token at
// "quote:{tokenID}" holding "bid", "ask" and "ts" (Unix nanoseconds). Keys
// expire after ttl so a stopped bot does not leave stale quotes behind.
type QuoteCache struct {
	c   *Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache. A zero ttl keeps keys forever.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{c: c, ttl: ttl}
}

// SetQuote stores the top of book for a token.
func (qc *QuoteCache) SetQuote(ctx context.Context, tokenID string, q domain.Quote) error {
	key := qc.c.key("quote", tokenID)
	_, err := qc.c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, quoteFields(q))
		if qc.ttl > 0 {
			pipe.Expire(ctx, key, qc.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: set quote %s: %w", tokenID, err)
	}
	return nil
}

// GetQuote returns the cached quote or domain.ErrNotFound.
func (qc *QuoteCache) GetQuote(ctx context.Context, tokenID string) (domain.Quote, error) {
	vals, err := qc.c.rdb.HGetAll(ctx, qc.c.key("quote", tokenID)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", tokenID, err)
	}
	q, err := parseQuote(vals)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", tokenID, err)
	}
	return q, nil
}

func quoteFields(q domain.Quote) map[string]any {
	return map[string]any{
		"bid": strconv.FormatFloat(q.Bid, 'f', -1, 64),
		"ask": strconv.FormatFloat(q.Ask, 'f', -1, 64),
		"ts":  strconv.FormatInt(q.UpdatedAt.UnixNano(), 10),
	}
}

func parseQuote(vals map[string]string) (domain.Quote, error) {
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}
	var q domain.Quote
	for _, f := range []struct {
		name string
		dst  *float64
	}{{"bid", &q.Bid}, {"ask", &q.Ask}} {
		s, ok := vals[f.name]
		if !ok {
			return domain.Quote{}, domain.ErrNotFound
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = v
	}
	if s, ok := vals["ts"]; ok {
		ns, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("parse ts: %w", err)
		}
		q.UpdatedAt = time.Unix(0, ns)
	}
	return q, nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
