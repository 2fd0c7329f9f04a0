package model

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Candle holds OHLCV state for one (symbol, resolution, openTime) bucket.
// OpenTime is always a multiple of the resolution's duration;
// CloseTime = OpenTime + duration. The triple (Symbol, Resolution, OpenTime)
// is the natural key in persistent storage.
type Candle struct {
	Symbol     string          `json:"symbol"`
	Resolution Resolution      `json:"resolution"`
	OpenTime   int64           `json:"open_time"`  // epoch ms, bucket-aligned
	CloseTime  int64           `json:"close_time"` // epoch ms
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     decimal.Decimal `json:"volume"`
	TradeCount int             `json:"trade_count"`
	Closed     bool            `json:"closed"`
}

// NewCandle starts a fresh candle from the first tick of a bucket.
func NewCandle(t Tick, res Resolution) Candle {
	openTime := res.Bucket(t.TradeTS)
	return Candle{
		Symbol:     t.Symbol,
		Resolution: res,
		OpenTime:   openTime,
		CloseTime:  openTime + res.DurationMs(),
		Open:       t.Price,
		High:       t.Price,
		Low:        t.Price,
		Close:      t.Price,
		Volume:     t.Quantity,
		TradeCount: 1,
	}
}

// Apply absorbs a same-bucket tick into the candle.
func (c *Candle) Apply(t Tick) {
	c.Close = t.Price
	if t.Price.GreaterThan(c.High) {
		c.High = t.Price
	}
	if t.Price.LessThan(c.Low) {
		c.Low = t.Price
	}
	c.Volume = c.Volume.Add(t.Quantity)
	c.TradeCount++
}

// Key returns "symbol:resolution".
func (c *Candle) Key() string {
	return c.Symbol + ":" + string(c.Resolution)
}

// Topic returns the pub/sub topic for this candle:
// "candles.<resolution>.<lowercased symbol>".
func (c *Candle) Topic() string {
	return "candles." + string(c.Resolution) + "." + strings.ToLower(c.Symbol)
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Snapshot is the lightweight per-broadcast view of an open candle.
type Snapshot struct {
	Symbol   string          `json:"symbol"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
	OpenTime int64           `json:"open_time"`
}

// Snapshot extracts the broadcast view of the candle.
func (c *Candle) Snapshot() Snapshot {
	return Snapshot{
		Symbol:   c.Symbol,
		Open:     c.Open,
		High:     c.High,
		Low:      c.Low,
		Close:    c.Close,
		Volume:   c.Volume,
		OpenTime: c.OpenTime,
	}
}

// JSON returns the JSON-encoded snapshot.
func (s Snapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
