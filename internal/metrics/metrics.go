package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the candle engine.
type Metrics struct {
	// Feed
	TicksTotal     prometheus.Counter
	KlinesIgnored  prometheus.Counter
	ParseErrors    prometheus.Counter
	FeedReconnects prometheus.Counter

	// Tick buffer
	BufferDrops prometheus.Counter

	// Aggregator
	LateTicks     prometheus.Counter
	CandlesClosed *prometheus.CounterVec // labels: resolution
	FlushDrops    prometheus.Counter

	// Persistence
	SQLiteCommitDur prometheus.Histogram
	RedisPublishDur prometheus.Histogram
	FanoutDrops     *prometheus.CounterVec // labels: subscriber
	QueueSaturation *prometheus.GaugeVec   // labels: channel_name

	// Broadcast
	BroadcastsTotal prometheus.Counter
	BroadcastErrors prometheus.Counter

	// Rollup + retention
	RollupRuns       *prometheus.CounterVec // labels: resolution
	RollupDur        prometheus.Histogram
	RetentionDeleted prometheus.Counter
}

// New registers and returns all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "priceengine_ticks_total",
			Help: "Total trade ticks received from the feed",
		}),
		KlinesIgnored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "priceengine_klines_ignored_total",
			Help: "Kline events received and ignored (trades are authoritative)",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "priceengine_feed_parse_errors_total",
			Help: "Malformed feed messages dropped",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "priceengine_feed_reconnects_total",
			Help: "Feed reconnection attempts scheduled",
		}),
		BufferDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "priceengine_tick_buffer_drops_total",
			Help: "Ticks dropped by the buffer's per-symbol depth cap",
		}),
		LateTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "priceengine_late_ticks_total",
			Help: "Ticks discarded for belonging to an already-advanced bucket",
		}),
		CandlesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "priceengine_candles_closed_total",
			Help: "Closed candles emitted (by resolution)",
		}, []string{"resolution"}),
		FlushDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "priceengine_flush_drops_total",
			Help: "Closed candles dropped because the flush queue was full",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "priceengine_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "priceengine_redis_publish_duration_seconds",
			Help:    "Redis closed-candle pipeline latency",
			Buckets: prometheus.DefBuckets,
		}),
		FanoutDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "priceengine_fanout_drops_total",
			Help: "Closed candles dropped by the fan-out per subscriber",
		}, []string{"subscriber"}),
		QueueSaturation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "priceengine_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "priceengine_broadcasts_total",
			Help: "Open-candle snapshots published",
		}),
		BroadcastErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "priceengine_broadcast_errors_total",
			Help: "Snapshot publish failures",
		}),
		RollupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "priceengine_rollup_runs_total",
			Help: "Rollup windows processed (by target resolution)",
		}, []string{"resolution"}),
		RollupDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "priceengine_rollup_duration_seconds",
			Help:    "Rollup pass latency across all symbols",
			Buckets: prometheus.DefBuckets,
		}),
		RetentionDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "priceengine_retention_deleted_total",
			Help: "Candles removed by the retention janitor",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal, m.KlinesIgnored, m.ParseErrors, m.FeedReconnects,
		m.BufferDrops, m.LateTicks, m.CandlesClosed, m.FlushDrops,
		m.SQLiteCommitDur, m.RedisPublishDur, m.FanoutDrops, m.QueueSaturation,
		m.BroadcastsTotal, m.BroadcastErrors,
		m.RollupRuns, m.RollupDur, m.RetentionDeleted,
	)
	return m
}
