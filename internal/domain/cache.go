package domain

import (
	"context"
	"time"
)

// Quote is a cached top of book for one outcome token.
type Quote struct {
	Bid       float64
	Ask       float64
	UpdatedAt time.Time
}

// QuoteCache stores the latest top of book per token for external readers.
type QuoteCache interface {
	SetQuote(ctx context.Context, tokenID string, q Quote) error
	GetQuote(ctx context.Context, tokenID string) (Quote, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// Lease is a held distributed lock.
type Lease interface {
	Refresh(ctx context.Context) error
	Release()
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// EventBus publishes ephemeral notifications and appends to durable streams.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
