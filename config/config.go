// Package config loads engine configuration from the environment (with an
// optional .env file). Validation happens here, once: an unknown resolution
// or empty symbol list is fatal at load time, never at per-tick time.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"pricestreamv1/internal/model"
)

// Config holds all application configuration.
type Config struct {
	// Upstream feed
	FeedWSURL      string        `env:"FEED_WS_URL" envDefault:"wss://stream.binance.com:9443/stream?streams="`
	Symbols        string        `env:"PRICE_SYMBOLS" envDefault:"btcusdt,ethusdt"`
	ReconnectDelay time.Duration `env:"FEED_RECONNECT_DELAY" envDefault:"5s"`

	// Aggregation
	Resolutions       string        `env:"RESOLUTIONS" envDefault:"1m,3m,5m,15m,30m,1h"`
	AggregateInterval time.Duration `env:"AGGREGATE_INTERVAL" envDefault:"500ms"`
	BroadcastInterval time.Duration `env:"BROADCAST_INTERVAL" envDefault:"500ms"`
	TickBufferDepth   int           `env:"TICK_BUFFER_DEPTH" envDefault:"10000"`

	// Rollup: targets derived from closed 1m candles
	RollupTargets string `env:"ROLLUP_TARGETS" envDefault:"30m,1h"`

	// Retention
	RetentionMaxAge time.Duration `env:"RETENTION_MAX_AGE" envDefault:"168h"`

	// Infrastructure
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"data/candles.db"`
	MetricsAddr   string `env:"METRICS_ADDR" envDefault:":9090"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present.
func Load() (*Config, error) {
	// Missing .env is fine; env vars win either way.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	if _, err := cfg.ParseSymbols(); err != nil {
		return nil, err
	}
	if _, err := cfg.ParseResolutions(); err != nil {
		return nil, err
	}
	if _, err := cfg.ParseRollupTargets(); err != nil {
		return nil, err
	}
	if cfg.AggregateInterval <= 0 || cfg.BroadcastInterval <= 0 {
		return nil, fmt.Errorf("config: intervals must be positive")
	}
	return cfg, nil
}

// ParseSymbols returns the normalized (uppercase) symbol list.
func (c *Config) ParseSymbols() ([]string, error) {
	parts := strings.Split(c.Symbols, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		symbols = append(symbols, strings.ToUpper(p))
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("config: PRICE_SYMBOLS is empty")
	}
	return symbols, nil
}

// ParseResolutions validates and returns the live aggregation resolutions.
func (c *Config) ParseResolutions() ([]model.Resolution, error) {
	return parseResolutionList("RESOLUTIONS", c.Resolutions)
}

// ParseRollupTargets validates and returns the rollup target resolutions.
// An empty value disables the rollup engine.
func (c *Config) ParseRollupTargets() ([]model.Resolution, error) {
	if strings.TrimSpace(c.RollupTargets) == "" {
		return nil, nil
	}
	return parseResolutionList("ROLLUP_TARGETS", c.RollupTargets)
}

func parseResolutionList(name, value string) ([]model.Resolution, error) {
	parts := strings.Split(value, ",")
	out := make([]model.Resolution, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		res, err := model.ParseResolution(p)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", name, err)
		}
		out = append(out, res)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("config: %s is empty", name)
	}
	return out, nil
}
