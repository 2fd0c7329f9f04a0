// Package broadcast publishes in-progress candle snapshots to real-time
// subscribers on a fixed cadence. It is purely observational: it reads
// aggregator state, never mutates it, and keys without an open candle are
// skipped rather than published as stale data.
package broadcast

import (
	"context"
	"log"
	"time"

	"pricestreamv1/internal/marketdata/agg"
)

const defaultInterval = 500 * time.Millisecond

// Publisher is the pub/sub sink. Topic naming is part of the contract:
// "candles.<resolution>.<lowercased symbol>".
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Scheduler periodically publishes every open candle's snapshot.
type Scheduler struct {
	agg      *agg.Aggregator
	pub      Publisher
	interval time.Duration

	// OnPublish is called once per published snapshot (optional).
	OnPublish func()
	// OnError is called once per failed publish (optional).
	OnError func()
}

// New creates a Scheduler. interval <= 0 selects the default 500ms.
func New(a *agg.Aggregator, pub Publisher, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{agg: a, pub: pub, interval: interval}
}

// Run publishes on the fixed cadence until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishAll(ctx)
		}
	}
}

// publishAll pushes one snapshot per currently open candle. A publish
// failure is logged and the remaining keys still go out.
func (s *Scheduler) publishAll(ctx context.Context) {
	for _, c := range s.agg.Snapshots() {
		snap := c.Snapshot()
		if err := s.pub.Publish(ctx, c.Topic(), snap.JSON()); err != nil {
			log.Printf("[broadcast] publish %s: %v", c.Topic(), err)
			if s.OnError != nil {
				s.OnError()
			}
			continue
		}
		if s.OnPublish != nil {
			s.OnPublish()
		}
	}
}
