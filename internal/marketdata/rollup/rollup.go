// Package rollup derives large-resolution candles from already-closed
// small-resolution candles. It runs on its own schedule against the
// persistence gateway, independent of the live tick path, so it also repairs
// windows the live aggregator missed while the feed was disconnected.
// Re-rolling the same window is idempotent: the result is upserted on the
// candle's natural key.
package rollup

import (
	"context"
	"log"
	"time"

	"pricestreamv1/internal/model"
	"pricestreamv1/internal/store"
)

// Engine rolls closed source-resolution candles into target resolutions.
type Engine struct {
	gw      store.Gateway
	symbols []string
	source  model.Resolution
	targets []model.Resolution

	// Metrics hooks (optional, set externally).
	OnRollup func(target model.Resolution, d time.Duration)
}

// New creates a rollup Engine. source is the resolution rolled from
// (typically 1m); each target gets its own scheduled task.
func New(gw store.Gateway, symbols []string, source model.Resolution, targets []model.Resolution) *Engine {
	return &Engine{gw: gw, symbols: symbols, source: source, targets: targets}
}

// Run starts one scheduled task per target resolution and blocks until ctx
// is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for _, target := range e.targets {
		go e.runTarget(ctx, target)
	}
	<-ctx.Done()
}

// runTarget rolls the most recently completed window for one target, firing
// just after each window boundary. An immediate first run repairs the
// previous window after a restart.
func (e *Engine) runTarget(ctx context.Context, target model.Resolution) {
	durMs := target.DurationMs()
	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			e.rollCompletedWindow(ctx, target)
			// Next fire: one second past the next window boundary.
			untilNext := time.Duration(durMs-time.Now().UnixMilli()%durMs) * time.Millisecond
			timer.Reset(untilNext + time.Second)
		}
	}
}

// rollCompletedWindow rolls the last fully-closed window for every symbol.
func (e *Engine) rollCompletedWindow(ctx context.Context, target model.Resolution) {
	durMs := target.DurationMs()
	windowStart := target.Bucket(time.Now().UnixMilli()) - durMs

	start := time.Now()
	for _, symbol := range e.symbols {
		if err := e.RollWindow(ctx, symbol, target, windowStart); err != nil {
			log.Printf("[rollup] %s %s window=%d: %v", symbol, target, windowStart, err)
		}
	}
	if e.OnRollup != nil {
		e.OnRollup(target, time.Since(start))
	}
}

// RollWindow aggregates the closed source candles of [windowStart,
// windowStart+duration) into one target candle and upserts it. A window with
// no source candles is skipped. Idempotent: re-rolling produces the
// identical aggregate.
func (e *Engine) RollWindow(ctx context.Context, symbol string, target model.Resolution, windowStart int64) error {
	windowEnd := windowStart + target.DurationMs()

	sources, err := e.gw.FindClosedCandles(ctx, symbol, e.source, windowStart, windowEnd)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return nil
	}

	// FindClosedCandles returns ascending openTime: first candle supplies
	// the open, last supplies the close.
	rolled := model.Candle{
		Symbol:     symbol,
		Resolution: target,
		OpenTime:   windowStart,
		CloseTime:  windowEnd,
		Open:       sources[0].Open,
		High:       sources[0].High,
		Low:        sources[0].Low,
		Close:      sources[len(sources)-1].Close,
		Volume:     sources[0].Volume,
		TradeCount: sources[0].TradeCount,
		Closed:     true,
	}
	for _, c := range sources[1:] {
		if c.High.GreaterThan(rolled.High) {
			rolled.High = c.High
		}
		if c.Low.LessThan(rolled.Low) {
			rolled.Low = c.Low
		}
		rolled.Volume = rolled.Volume.Add(c.Volume)
		rolled.TradeCount += c.TradeCount
	}

	return e.gw.UpsertCandle(ctx, rolled)
}
