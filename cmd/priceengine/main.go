// cmd/priceengine — tick→candle aggregation engine.
//
// Pipeline: feed supervisor → tick buffer → aggregator → fan-out →
// {SQLite gateway, Redis publisher}; broadcast scheduler and rollup engine
// run on their own timers.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"pricestreamv1/config"
	"pricestreamv1/internal/marketdata/agg"
	"pricestreamv1/internal/marketdata/broadcast"
	"pricestreamv1/internal/marketdata/bus"
	"pricestreamv1/internal/marketdata/feed"
	"pricestreamv1/internal/marketdata/rollup"
	"pricestreamv1/internal/marketdata/tickbuf"
	"pricestreamv1/internal/metrics"
	"pricestreamv1/internal/model"
	redisstore "pricestreamv1/internal/store/redis"
	sqlitestore "pricestreamv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[priceengine] starting...")

	// ---- Load config from env ----
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[priceengine] config: %v", err)
	}
	symbols, _ := cfg.ParseSymbols()
	resolutions, _ := cfg.ParseResolutions()
	rollupTargets, _ := cfg.ParseRollupTargets()
	log.Printf("[priceengine] symbols=%v resolutions=%v rollup=%v", symbols, resolutions, rollupTargets)

	// ---- Metrics & health ----
	prom := metrics.New()
	health := metrics.NewHealthStatus()
	health.SetTracked(symbols, resolutions)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context & signals ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite gateway ----
	os.MkdirAll("data", 0o755)
	sqlStore, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[priceengine] sqlite init failed: %v", err)
	}
	defer sqlStore.Close()
	sqlStore.OnCommit = func(n int, d time.Duration) {
		prom.SQLiteCommitDur.Observe(d.Seconds())
	}
	health.SetSQLiteOK(true)

	// ---- Redis (broadcast sink + latest keys + query cache) ----
	redisClient, err := redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[priceengine] WARNING: redis init failed: %v (continuing without broadcast)", err)
		health.SetRedisConnected(false)
	} else {
		defer redisClient.Close()
		redisClient.OnPublish = func(d time.Duration) {
			prom.RedisPublishDur.Observe(d.Seconds())
		}
		health.SetRedisConnected(true)
	}

	if redisClient != nil {
		health.StartLivenessChecker(ctx, redisClient.Redis(), sqlStore.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlStore.DB(), 10*time.Second)
	}

	// ---- Tick buffer ----
	buf := tickbuf.New(cfg.TickBufferDepth)
	buf.OnDrop = func(string) { prom.BufferDrops.Inc() }

	// ---- Aggregator ----
	aggregator := agg.New(resolutions)
	aggregator.SetCycle(cfg.AggregateInterval)
	aggregator.OnLateTick = func() { prom.LateTicks.Inc() }
	aggregator.OnCandleClosed = func(res model.Resolution) {
		prom.CandlesClosed.WithLabelValues(string(res)).Inc()
	}
	aggregator.OnFlushDropped = func() { prom.FlushDrops.Inc() }

	// ---- Closed-candle fan-out to persistence consumers ----
	closedCh := make(chan model.Candle, 5000)
	fanout := bus.New(5000)
	fanout.OnDrop = func(subscriberIdx int) {
		prom.FanoutDrops.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}

	sqliteCh := fanout.Subscribe()
	var redisCh <-chan model.Candle
	if redisClient != nil {
		redisCh = fanout.Subscribe()
	}

	go fanout.Run(ctx, closedCh)
	go sqlStore.Run(ctx, sqliteCh)
	if redisClient != nil {
		go redisClient.RunClosedCandles(ctx, redisCh)
	}

	// Channel saturation reporter
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prom.QueueSaturation.WithLabelValues("closed_candles").
					Set(float64(len(closedCh)) / float64(cap(closedCh)) * 100)
				for i, s := range fanout.ChannelStats() {
					if s.Cap > 0 {
						prom.QueueSaturation.WithLabelValues("fanout_"+strconv.Itoa(i)).
							Set(float64(s.Len) / float64(s.Cap) * 100)
					}
				}
			}
		}
	}()

	// ---- Aggregation cycle ----
	go aggregator.Run(ctx, buf, closedCh)

	// ---- Broadcast scheduler ----
	if redisClient != nil {
		bcast := broadcast.New(aggregator, redisClient, cfg.BroadcastInterval)
		bcast.OnPublish = func() { prom.BroadcastsTotal.Inc() }
		bcast.OnError = func() { prom.BroadcastErrors.Inc() }
		go bcast.Run(ctx)
	}

	// ---- Rollup engine ----
	if len(rollupTargets) > 0 {
		eng := rollup.New(sqlStore, symbols, model.Res1m, rollupTargets)
		eng.OnRollup = func(target model.Resolution, d time.Duration) {
			prom.RollupRuns.WithLabelValues(string(target)).Inc()
			prom.RollupDur.Observe(d.Seconds())
		}
		go eng.Run(ctx)
	}

	// ---- Retention janitor ----
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-cfg.RetentionMaxAge)
				n, err := sqlStore.DeleteOlderThan(ctx, cutoff)
				if err != nil {
					log.Printf("[priceengine] retention: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("[priceengine] retention: deleted %d candles older than %v", n, cutoff)
					prom.RetentionDeleted.Add(float64(n))
				}
			}
		}
	}()

	// ---- Feed supervisor ----
	supervisor, err := feed.New(feed.Config{
		URL:     cfg.FeedWSURL,
		Symbols: symbols,
		Backoff: feed.FixedBackoff{Delay: cfg.ReconnectDelay},
	})
	if err != nil {
		log.Fatalf("[priceengine] feed init failed: %v", err)
	}
	supervisor.OnConnect = func() { health.SetFeedConnected(true) }
	supervisor.OnDisconnect = func() {
		health.SetFeedConnected(false)
		prom.FeedReconnects.Inc()
	}
	supervisor.OnTick = func(model.Tick) {
		prom.TicksTotal.Inc()
		health.SetLastTickTime(time.Now())
	}
	supervisor.OnKline = func() { prom.KlinesIgnored.Inc() }
	supervisor.OnParseError = func() { prom.ParseErrors.Inc() }
	go supervisor.Start(ctx, buf)

	log.Println("[priceengine] pipeline running")

	// ---- Wait for shutdown ----
	<-sigCh
	log.Println("[priceengine] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	// Give the store writers a moment to flush their current batch.
	time.Sleep(500 * time.Millisecond)
	log.Println("[priceengine] bye")
}
