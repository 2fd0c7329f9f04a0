package config

import (
	"testing"
	"time"

	"pricestreamv1/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with defaults: %v", err)
	}

	symbols, err := cfg.ParseSymbols()
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 2 || symbols[0] != "BTCUSDT" || symbols[1] != "ETHUSDT" {
		t.Errorf("default symbols = %v", symbols)
	}

	resolutions, err := cfg.ParseResolutions()
	if err != nil {
		t.Fatal(err)
	}
	if len(resolutions) != 6 {
		t.Errorf("default resolutions = %v, want all six", resolutions)
	}

	if cfg.AggregateInterval != 500*time.Millisecond || cfg.BroadcastInterval != 500*time.Millisecond {
		t.Errorf("default intervals = %v / %v, want 500ms", cfg.AggregateInterval, cfg.BroadcastInterval)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Errorf("default reconnect delay = %v, want 5s", cfg.ReconnectDelay)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PRICE_SYMBOLS", "solusdt, bnbusdt")
	t.Setenv("RESOLUTIONS", "1m,5m")
	t.Setenv("ROLLUP_TARGETS", "1h")
	t.Setenv("FEED_RECONNECT_DELAY", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	symbols, _ := cfg.ParseSymbols()
	if len(symbols) != 2 || symbols[0] != "SOLUSDT" || symbols[1] != "BNBUSDT" {
		t.Errorf("symbols = %v, want uppercased trimmed pair", symbols)
	}
	resolutions, _ := cfg.ParseResolutions()
	if len(resolutions) != 2 || resolutions[0] != model.Res1m || resolutions[1] != model.Res5m {
		t.Errorf("resolutions = %v", resolutions)
	}
	targets, _ := cfg.ParseRollupTargets()
	if len(targets) != 1 || targets[0] != model.Res1h {
		t.Errorf("rollup targets = %v", targets)
	}
	if cfg.ReconnectDelay != 2*time.Second {
		t.Errorf("reconnect delay = %v", cfg.ReconnectDelay)
	}
}

func TestLoadRejectsBadResolution(t *testing.T) {
	t.Setenv("RESOLUTIONS", "1m,2m")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown resolution 2m")
	}
}

func TestLoadRejectsEmptySymbols(t *testing.T) {
	t.Setenv("PRICE_SYMBOLS", " , ")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for empty symbol list")
	}
}

func TestEmptyRollupTargetsDisablesRollup(t *testing.T) {
	t.Setenv("ROLLUP_TARGETS", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	targets, err := cfg.ParseRollupTargets()
	if err != nil {
		t.Fatal(err)
	}
	if targets != nil {
		t.Errorf("targets = %v, want nil (disabled)", targets)
	}
}
