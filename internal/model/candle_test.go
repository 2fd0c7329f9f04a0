package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestNewCandleSeedsAllPricesFromFirstTick(t *testing.T) {
	tick := Tick{Symbol: "BTCUSDT", Price: dec("67000.5"), Quantity: dec("0.25"), TradeTS: 1_700_000_040_500}
	c := NewCandle(tick, Res1m)

	if c.OpenTime != 1_700_000_040_000 {
		t.Fatalf("OpenTime = %d, want 1700000040000", c.OpenTime)
	}
	if c.CloseTime != c.OpenTime+60_000 {
		t.Fatalf("CloseTime = %d, want %d", c.CloseTime, c.OpenTime+60_000)
	}
	for _, p := range []decimal.Decimal{c.Open, c.High, c.Low, c.Close} {
		if !p.Equal(tick.Price) {
			t.Fatalf("price fields not seeded from first tick: %+v", c)
		}
	}
	if !c.Volume.Equal(tick.Quantity) || c.TradeCount != 1 {
		t.Fatalf("volume=%s count=%d, want volume=0.25 count=1", c.Volume, c.TradeCount)
	}
	if c.Closed {
		t.Fatal("new candle should not be closed")
	}
}

func TestCandleApplyUpdatesExtremesAndVolume(t *testing.T) {
	c := NewCandle(Tick{Symbol: "ETHUSDT", Price: dec("3200"), Quantity: dec("1"), TradeTS: 1_700_000_040_000}, Res1m)

	c.Apply(Tick{Price: dec("3250"), Quantity: dec("2"), TradeTS: 1_700_000_041_000})
	c.Apply(Tick{Price: dec("3180"), Quantity: dec("0.5"), TradeTS: 1_700_000_042_000})
	c.Apply(Tick{Price: dec("3210"), Quantity: dec("1.5"), TradeTS: 1_700_000_043_000})

	if !c.Open.Equal(dec("3200")) {
		t.Errorf("open changed: %s", c.Open)
	}
	if !c.High.Equal(dec("3250")) {
		t.Errorf("high = %s, want 3250", c.High)
	}
	if !c.Low.Equal(dec("3180")) {
		t.Errorf("low = %s, want 3180", c.Low)
	}
	if !c.Close.Equal(dec("3210")) {
		t.Errorf("close = %s, want 3210 (last trade)", c.Close)
	}
	if !c.Volume.Equal(dec("5")) {
		t.Errorf("volume = %s, want 5", c.Volume)
	}
	if c.TradeCount != 4 {
		t.Errorf("trade count = %d, want 4", c.TradeCount)
	}
	if c.High.LessThan(c.Open) || c.High.LessThan(c.Close) || c.Low.GreaterThan(c.Open) || c.Low.GreaterThan(c.Close) {
		t.Errorf("low <= open,close <= high violated: %+v", c)
	}
}

func TestCandleTopic(t *testing.T) {
	c := Candle{Symbol: "BTCUSDT", Resolution: Res5m}
	if got := c.Topic(); got != "candles.5m.btcusdt" {
		t.Errorf("Topic() = %q, want candles.5m.btcusdt", got)
	}
}

func TestCandleSnapshotJSON(t *testing.T) {
	c := NewCandle(Tick{Symbol: "BTCUSDT", Price: dec("100.10"), Quantity: dec("0.5"), TradeTS: 1_700_000_040_123}, Res1m)
	c.Apply(Tick{Price: dec("101"), Quantity: dec("0.5"), TradeTS: 1_700_000_050_000})

	var decoded map[string]any
	if err := json.Unmarshal(c.Snapshot().JSON(), &decoded); err != nil {
		t.Fatalf("snapshot JSON invalid: %v", err)
	}
	if decoded["symbol"] != "BTCUSDT" {
		t.Errorf("symbol = %v", decoded["symbol"])
	}
	if decoded["open"] != "100.1" {
		t.Errorf("open = %v, want \"100.1\"", decoded["open"])
	}
	if decoded["open_time"] != float64(1_700_000_040_000) {
		t.Errorf("open_time = %v", decoded["open_time"])
	}
}
