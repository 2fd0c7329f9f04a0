// Package store defines the persistence gateway for closed candles.
// Implementations live in subpackages; the aggregation core only sees this
// interface.
package store

import (
	"context"
	"time"

	"pricestreamv1/internal/model"
)

// Gateway persists closed candles and serves historical queries.
// UpsertCandle is idempotent on the natural key (symbol, resolution,
// openTime): writing the same candle twice leaves exactly one row.
type Gateway interface {
	// UpsertCandle inserts or replaces one closed candle.
	UpsertCandle(ctx context.Context, c model.Candle) error

	// FindClosedCandles returns closed candles for (symbol, resolution)
	// whose openTime falls in [startMs, endMs), ascending by openTime.
	FindClosedCandles(ctx context.Context, symbol string, res model.Resolution, startMs, endMs int64) ([]model.Candle, error)

	// GetCandles returns the most recent `limit` candles for
	// (symbol, resolution), ascending by openTime.
	GetCandles(ctx context.Context, symbol string, res model.Resolution, limit int) ([]model.Candle, error)

	// DeleteOlderThan removes candles stored before the cutoff and
	// returns the number of rows deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
