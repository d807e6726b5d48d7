package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each bond is
// stored at "bondsim:price:{bondID}" with fields "price" and "ts" (Unix
// nanoseconds).
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache. A zero ttl keeps entries forever.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(bondID string) string {
	return keyPrefix + "price:" + bondID
}

// SetPrice stores the latest price and timestamp for a bond.
func (pc *PriceCache) SetPrice(ctx context.Context, bondID string, price float64, ts time.Time) error {
	key := priceKey(bondID)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	})
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", bondID, err)
	}
	return nil
}

// GetPrice returns domain.ErrNotFound when the bond has no cached price.
func (pc *PriceCache) GetPrice(ctx context.Context, bondID string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(bondID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", bondID, err)
	}
	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", bondID, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", bondID, err)
	}
	return price, time.Unix(0, tsNano), nil
}

// GetPrices fetches several bonds in one pipeline. Bonds without a cached
// price are omitted.
func (pc *PriceCache) GetPrices(ctx context.Context, bondIDs []string) (map[string]float64, error) {
	if len(bondIDs) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(bondIDs))
	for _, id := range bondIDs {
		cmds[id] = pipe.HGet(ctx, priceKey(id), "price")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(bondIDs))
	for id, cmd := range cmds {
		price, err := cmd.Float64()
		if err != nil {
			continue
		}
		result[id] = price
	}
	return result, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
