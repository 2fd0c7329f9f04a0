// Package tickbuf provides a per-symbol tick queue that decouples the feed
// ingest rate from the aggregation cadence. Symbols are sharded across a
// fixed set of locks so concurrent feed readers on different symbols rarely
// contend. DrainAll is atomic per symbol: no tick is lost or duplicated
// across a drain boundary.
package tickbuf

import (
	"hash/fnv"
	"sync"

	"pricestreamv1/internal/model"
)

const (
	defaultShards       = 16
	defaultMaxPerSymbol = 10000
)

// shard holds the queues for the symbols hashed into it.
type shard struct {
	mu     sync.Mutex
	queues map[string][]model.Tick
}

// Buffer is a sharded, bounded per-symbol tick queue.
// Add is safe to call concurrently; DrainAll is called once per
// aggregation cycle by a single consumer.
type Buffer struct {
	shards       []*shard
	maxPerSymbol int

	// OnDrop is called when a queue overflows and its oldest tick is
	// discarded (optional, metrics hook).
	OnDrop func(symbol string)
}

// New creates a Buffer. maxPerSymbol caps each symbol's queue depth;
// zero or negative selects the default.
func New(maxPerSymbol int) *Buffer {
	if maxPerSymbol <= 0 {
		maxPerSymbol = defaultMaxPerSymbol
	}
	shards := make([]*shard, defaultShards)
	for i := range shards {
		shards[i] = &shard{queues: make(map[string][]model.Tick)}
	}
	return &Buffer{shards: shards, maxPerSymbol: maxPerSymbol}
}

func (b *Buffer) shardFor(symbol string) *shard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return b.shards[h.Sum32()%uint32(len(b.shards))]
}

// Add appends a tick to its symbol's queue. If the queue is at capacity the
// oldest tick is dropped so the feed reader never blocks.
func (b *Buffer) Add(t model.Tick) {
	s := b.shardFor(t.Symbol)

	s.mu.Lock()
	q := s.queues[t.Symbol]
	dropped := false
	if len(q) >= b.maxPerSymbol {
		copy(q, q[1:])
		q = q[:len(q)-1]
		dropped = true
	}
	s.queues[t.Symbol] = append(q, t)
	s.mu.Unlock()

	if dropped && b.OnDrop != nil {
		b.OnDrop(t.Symbol)
	}
}

// DrainAll removes and returns the full contents of every symbol's queue,
// resetting each to empty. Within a symbol, ticks keep arrival order;
// no ordering is guaranteed across symbols.
func (b *Buffer) DrainAll() map[string][]model.Tick {
	out := make(map[string][]model.Tick)
	for _, s := range b.shards {
		s.mu.Lock()
		for sym, q := range s.queues {
			if len(q) > 0 {
				out[sym] = q
			}
			delete(s.queues, sym)
		}
		s.mu.Unlock()
	}
	return out
}

// Len returns the total number of buffered ticks across all symbols.
func (b *Buffer) Len() int {
	n := 0
	for _, s := range b.shards {
		s.mu.Lock()
		for _, q := range s.queues {
			n += len(q)
		}
		s.mu.Unlock()
	}
	return n
}
