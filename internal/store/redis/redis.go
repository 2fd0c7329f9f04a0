// Package redis is the real-time side of persistence: pub/sub broadcasts for
// candle subscribers, "latest candle" keys, and a short-TTL read-through
// cache for historical queries.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"pricestreamv1/internal/model"
)

const (
	latestTTL     = 30 * time.Minute
	queryCacheTTL = time.Minute
)

// Config configures the Redis client.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Client wraps the Redis connection used for broadcast and caching.
type Client struct {
	rdb *goredis.Client

	// OnPublish is called after each closed-candle pipeline with the
	// publish duration (optional, metrics hook).
	OnPublish func(d time.Duration)
}

// New creates a Client and pings the server.
func New(cfg Config) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Client{rdb: rdb}, nil
}

// Redis returns the underlying client for health checks.
func (c *Client) Redis() *goredis.Client { return c.rdb }

// Publish sends one payload to a pub/sub topic. Used by the broadcast
// scheduler for in-progress candle snapshots; no keys are written.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	return c.rdb.Publish(ctx, topic, string(payload)).Err()
}

// RunClosedCandles consumes closed candles from the fan-out and runs the full
// pipeline per candle: PUBLISH to the candle topic, SET the latest-candle key,
// and invalidate the query cache for that (symbol, resolution).
// Blocks until ctx is cancelled or the channel is closed.
func (c *Client) RunClosedCandles(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-candleCh:
			if !ok {
				return
			}
			c.writeClosedCandle(ctx, candle)
		}
	}
}

func (c *Client) writeClosedCandle(ctx context.Context, candle model.Candle) {
	start := time.Now()
	payload := string(candle.JSON())

	pipe := c.rdb.Pipeline()
	pipe.Publish(ctx, candle.Topic(), payload)
	pipe.Set(ctx, latestKey(candle.Symbol, candle.Resolution), payload, latestTTL)

	// Stale query-cache entries for this key are dropped; the registry set
	// tracks which limits have been cached.
	reg := cacheRegistryKey(candle.Symbol, candle.Resolution)
	keys, err := c.rdb.SMembers(ctx, reg).Result()
	if err == nil && len(keys) > 0 {
		pipe.Del(ctx, keys...)
		pipe.Del(ctx, reg)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] closed-candle pipeline error for %s: %v", candle.Key(), err)
		return
	}
	if c.OnPublish != nil {
		c.OnPublish(time.Since(start))
	}
}

// GetCachedCandles returns a cached historical-query result, or nil on miss.
func (c *Client) GetCachedCandles(ctx context.Context, symbol string, res model.Resolution, limit int) ([]model.Candle, error) {
	data, err := c.rdb.Get(ctx, queryCacheKey(symbol, res, limit)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis cache get: %w", err)
	}
	var candles []model.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("redis cache decode: %w", err)
	}
	return candles, nil
}

// SetCachedCandles stores a historical-query result with a short TTL.
// Price data changes every broadcast cycle, so the cache only shields the
// database from repeated chart loads, not from real-time updates.
func (c *Client) SetCachedCandles(ctx context.Context, symbol string, res model.Resolution, limit int, candles []model.Candle) error {
	data, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("redis cache encode: %w", err)
	}
	key := queryCacheKey(symbol, res, limit)
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, key, data, queryCacheTTL)
	pipe.SAdd(ctx, cacheRegistryKey(symbol, res), key)
	pipe.Expire(ctx, cacheRegistryKey(symbol, res), queryCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

func latestKey(symbol string, res model.Resolution) string {
	return "candle:latest:" + string(res) + ":" + symbol
}

func queryCacheKey(symbol string, res model.Resolution, limit int) string {
	return "candles:q:" + symbol + ":" + string(res) + ":" + strconv.Itoa(limit)
}

func cacheRegistryKey(symbol string, res model.Resolution) string {
	return "candles:qkeys:" + symbol + ":" + string(res)
}

// Close closes the Redis client.
func (c *Client) Close() error {
	return c.rdb.Close()
}
