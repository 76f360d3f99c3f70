// Package cache holds the optional redis-backed price cache sitting between
// the oracle and Binance REST. It is strictly best-effort: any redis failure
// reads as a miss and writes are fire-and-forget.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"papertrade/internal/config"
)

const priceKeyPrefix = "pt:price:"

type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPriceCache(cfg config.RedisConfig) *PriceCache {
	ttl := cfg.PriceTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &PriceCache{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		ttl: ttl,
	}
}

func (c *PriceCache) Get(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	if c == nil || c.rdb == nil {
		return decimal.Decimal{}, false
	}
	raw, err := c.rdb.Get(ctx, priceKeyPrefix+symbol).Result()
	if err != nil {
		return decimal.Decimal{}, false
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return price, true
}

func (c *PriceCache) Set(ctx context.Context, symbol string, price decimal.Decimal) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Set(ctx, priceKeyPrefix+symbol, price.String(), c.ttl)
}

func (c *PriceCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
