package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest bond prices.
type PriceCache interface {
	SetPrice(ctx context.Context, bondID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, bondID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, bondIDs []string) (map[string]float64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed mutual exclusion. Acquire returns
// ErrLockHeld when another holder owns key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Channels published on the SignalBus.
const (
	ChannelTransactions = "transactions"
	ChannelAnalytics    = "analytics"
	ChannelPrices       = "prices"
	ChannelMetrics      = "metrics"
	ChannelToasts       = "toasts"
	ChannelScenario     = "scenario"
)
