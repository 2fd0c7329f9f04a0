// Package agg maintains the in-progress OHLCV candle per (symbol, resolution).
// It is the only owner of that state: ticks drained from the buffer are
// applied here, bucket boundaries are detected here, and closed candles are
// handed off to the persistence path. Keys are sharded by symbol so updates
// to different symbols never contend, and no I/O happens while a shard lock
// is held.
package agg

import (
	"context"
	"log"
	"sync"
	"time"

	"pricestreamv1/internal/marketdata/tickbuf"
	"pricestreamv1/internal/model"
)

const (
	defaultCycle  = 500 * time.Millisecond
	defaultShards = 16
)

type stateKey struct {
	symbol string
	res    model.Resolution
}

type aggShard struct {
	mu     sync.Mutex
	states map[stateKey]*model.Candle
}

// Aggregator applies ticks to per-key candle state across all configured
// resolutions and emits closed candles when a tick crosses a bucket boundary.
type Aggregator struct {
	resolutions []model.Resolution
	shards      []*aggShard
	cycle       time.Duration

	// Metrics hooks (optional, set externally).
	OnLateTick     func()
	OnCandleClosed func(res model.Resolution)
	OnFlushDropped func()
}

// New creates an Aggregator for the given resolutions.
func New(resolutions []model.Resolution) *Aggregator {
	shards := make([]*aggShard, defaultShards)
	for i := range shards {
		shards[i] = &aggShard{states: make(map[stateKey]*model.Candle)}
	}
	return &Aggregator{
		resolutions: resolutions,
		shards:      shards,
		cycle:       defaultCycle,
	}
}

// SetCycle overrides the aggregation cycle (default 500ms). Call before Run.
func (a *Aggregator) SetCycle(d time.Duration) { a.cycle = d }

func (a *Aggregator) shardFor(symbol string) *aggShard {
	// Same symbol always lands on the same shard; a cheap byte sum is
	// enough since the symbol set is small and fixed per deployment.
	var h uint32
	for i := 0; i < len(symbol); i++ {
		h = h*31 + uint32(symbol[i])
	}
	return a.shards[h%uint32(len(a.shards))]
}

// Run drains the buffer on a fixed cycle and applies the ticks.
// Closed candles are sent to closedCh. Blocks until ctx is cancelled.
// Open state is not flushed on shutdown: it is rebuildable from the
// next ticks after restart.
func (a *Aggregator) Run(ctx context.Context, buf *tickbuf.Buffer, closedCh chan<- model.Candle) {
	ticker := time.NewTicker(a.cycle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch := buf.DrainAll()
			for symbol, ticks := range batch {
				a.ApplySymbol(symbol, ticks, closedCh)
			}
		}
	}
}

// ApplySymbol applies one symbol's drained ticks, in arrival order, across
// all configured resolutions. Candles closed by bucket crossings are sent
// to closedCh without holding the shard lock.
func (a *Aggregator) ApplySymbol(symbol string, ticks []model.Tick, closedCh chan<- model.Candle) {
	s := a.shardFor(symbol)
	var closed []model.Candle

	s.mu.Lock()
	for _, t := range ticks {
		for _, res := range a.resolutions {
			bucketOpen := res.Bucket(t.TradeTS)
			key := stateKey{symbol: symbol, res: res}
			cur, exists := s.states[key]

			if exists && bucketOpen < cur.OpenTime {
				// Late tick — its bucket already advanced. Discard:
				// never reopen or retroactively mutate a closed candle.
				if a.OnLateTick != nil {
					a.OnLateTick()
				}
				continue
			}

			if exists && bucketOpen > cur.OpenTime {
				cur.Closed = true
				closed = append(closed, *cur)
				delete(s.states, key)
				exists = false
			}

			if !exists {
				c := model.NewCandle(t, res)
				s.states[key] = &c
				continue
			}

			cur.Apply(t)
		}
	}
	s.mu.Unlock()

	for _, c := range closed {
		a.emit(c, closedCh)
	}
}

// emit hands a closed candle to the persistence path. Non-blocking: a full
// queue is logged and counted rather than stalling aggregation.
func (a *Aggregator) emit(c model.Candle, closedCh chan<- model.Candle) {
	if a.OnCandleClosed != nil {
		a.OnCandleClosed(c.Resolution)
	}
	select {
	case closedCh <- c:
	default:
		log.Printf("[agg] closed-candle queue full, dropping %s openTime=%d", c.Key(), c.OpenTime)
		if a.OnFlushDropped != nil {
			a.OnFlushDropped()
		}
	}
}

// Snapshots returns a copy of every currently open candle. Safe to call
// concurrently with ApplySymbol; each candle is copied under its shard lock
// so readers never observe partial updates.
func (a *Aggregator) Snapshots() []model.Candle {
	var out []model.Candle
	for _, s := range a.shards {
		s.mu.Lock()
		for _, c := range s.states {
			out = append(out, *c)
		}
		s.mu.Unlock()
	}
	return out
}

// OpenCandle returns a copy of the open candle for (symbol, resolution),
// or false if none exists.
func (a *Aggregator) OpenCandle(symbol string, res model.Resolution) (model.Candle, bool) {
	s := a.shardFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.states[stateKey{symbol: symbol, res: res}]
	if !ok {
		return model.Candle{}, false
	}
	return *c, true
}
