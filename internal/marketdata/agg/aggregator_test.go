package agg

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricestreamv1/internal/marketdata/tickbuf"
	"pricestreamv1/internal/model"
)

// 10:00:00 UTC on 2023-11-14, 1m- and 1h-aligned.
const tenAM = int64(1_699_956_000_000)

func tick(symbol, price string, ts int64) model.Tick {
	p, err := decimal.NewFromString(price)
	if err != nil {
		panic(err)
	}
	return model.Tick{Symbol: symbol, Price: p, Quantity: decimal.NewFromInt(1), TradeTS: ts}
}

func collect(ch chan model.Candle) []model.Candle {
	var out []model.Candle
	for {
		select {
		case c := <-ch:
			out = append(out, c)
		default:
			return out
		}
	}
}

func TestBucketCrossingClosesCandle(t *testing.T) {
	a := New([]model.Resolution{model.Res1m})
	closedCh := make(chan model.Candle, 16)

	// Two ticks inside the 10:00 bucket, one at 10:01:05 that crosses it.
	a.ApplySymbol("BTCUSDT", []model.Tick{
		tick("BTCUSDT", "100", tenAM+200),
		tick("BTCUSDT", "105", tenAM+30_000),
		tick("BTCUSDT", "95", tenAM+65_000),
	}, closedCh)

	closed := collect(closedCh)
	if len(closed) != 1 {
		t.Fatalf("closed %d candles, want 1", len(closed))
	}
	c := closed[0]
	if c.OpenTime != tenAM {
		t.Errorf("closed openTime = %d, want %d", c.OpenTime, tenAM)
	}
	if !c.Open.Equal(decimal.NewFromInt(100)) || !c.High.Equal(decimal.NewFromInt(105)) ||
		!c.Low.Equal(decimal.NewFromInt(100)) || !c.Close.Equal(decimal.NewFromInt(105)) {
		t.Errorf("closed OHLC = %s/%s/%s/%s, want 100/105/100/105", c.Open, c.High, c.Low, c.Close)
	}
	if !c.Closed {
		t.Error("emitted candle not marked closed")
	}
	if c.TradeCount != 2 {
		t.Errorf("closed trade count = %d, want 2", c.TradeCount)
	}

	// The crossing tick seeded a fresh open candle at 10:01.
	open, ok := a.OpenCandle("BTCUSDT", model.Res1m)
	if !ok {
		t.Fatal("no open candle after crossing")
	}
	if open.OpenTime != tenAM+60_000 {
		t.Errorf("open candle openTime = %d, want %d", open.OpenTime, tenAM+60_000)
	}
	p95 := decimal.NewFromInt(95)
	if !open.Open.Equal(p95) || !open.High.Equal(p95) || !open.Low.Equal(p95) || !open.Close.Equal(p95) {
		t.Errorf("open candle OHLC = %s/%s/%s/%s, want all 95", open.Open, open.High, open.Low, open.Close)
	}
}

func TestLateTickDiscarded(t *testing.T) {
	a := New([]model.Resolution{model.Res1m})
	lateCount := 0
	a.OnLateTick = func() { lateCount++ }
	closedCh := make(chan model.Candle, 16)

	a.ApplySymbol("BTCUSDT", []model.Tick{
		tick("BTCUSDT", "100", tenAM),
		tick("BTCUSDT", "110", tenAM+60_000), // closes the 10:00 bucket
		tick("BTCUSDT", "1", tenAM+30_000),   // late, belongs to the closed bucket
	}, closedCh)

	if lateCount != 1 {
		t.Fatalf("OnLateTick fired %d times, want 1", lateCount)
	}
	closed := collect(closedCh)
	if len(closed) != 1 {
		t.Fatalf("closed %d candles, want 1", len(closed))
	}
	// The closed candle must not reflect the late tick.
	if !closed[0].Close.Equal(decimal.NewFromInt(100)) || closed[0].TradeCount != 1 {
		t.Errorf("closed candle mutated by late tick: close=%s count=%d", closed[0].Close, closed[0].TradeCount)
	}
	// Neither may the open candle.
	open, _ := a.OpenCandle("BTCUSDT", model.Res1m)
	if !open.Low.Equal(decimal.NewFromInt(110)) || open.TradeCount != 1 {
		t.Errorf("open candle mutated by late tick: low=%s count=%d", open.Low, open.TradeCount)
	}
}

func TestMultiResolutionIndependentBuckets(t *testing.T) {
	a := New([]model.Resolution{model.Res1m, model.Res5m})
	closedCh := make(chan model.Candle, 16)

	// Ticks at 10:00 and 10:01: crosses the 1m boundary but stays inside
	// the 10:00 5m bucket.
	a.ApplySymbol("ETHUSDT", []model.Tick{
		tick("ETHUSDT", "3200", tenAM+1000),
		tick("ETHUSDT", "3210", tenAM+61_000),
	}, closedCh)

	closed := collect(closedCh)
	if len(closed) != 1 || closed[0].Resolution != model.Res1m {
		t.Fatalf("closed = %+v, want exactly one 1m candle", closed)
	}

	fiveMin, ok := a.OpenCandle("ETHUSDT", model.Res5m)
	if !ok {
		t.Fatal("no open 5m candle")
	}
	if fiveMin.TradeCount != 2 || !fiveMin.Close.Equal(decimal.NewFromInt(3210)) {
		t.Errorf("5m candle should hold both ticks: count=%d close=%s", fiveMin.TradeCount, fiveMin.Close)
	}
	if fiveMin.OpenTime != tenAM {
		t.Errorf("5m openTime = %d, want %d", fiveMin.OpenTime, tenAM)
	}
}

func TestSymbolsDoNotInterfere(t *testing.T) {
	a := New([]model.Resolution{model.Res1m})
	closedCh := make(chan model.Candle, 16)

	a.ApplySymbol("BTCUSDT", []model.Tick{tick("BTCUSDT", "100", tenAM)}, closedCh)
	a.ApplySymbol("ETHUSDT", []model.Tick{tick("ETHUSDT", "3200", tenAM)}, closedCh)
	a.ApplySymbol("BTCUSDT", []model.Tick{tick("BTCUSDT", "101", tenAM+5000)}, closedCh)

	btc, _ := a.OpenCandle("BTCUSDT", model.Res1m)
	eth, _ := a.OpenCandle("ETHUSDT", model.Res1m)
	if btc.TradeCount != 2 || eth.TradeCount != 1 {
		t.Errorf("counts btc=%d eth=%d, want 2 and 1", btc.TradeCount, eth.TradeCount)
	}
	if !eth.Close.Equal(decimal.NewFromInt(3200)) {
		t.Errorf("eth close = %s, want 3200", eth.Close)
	}
	if len(collect(closedCh)) != 0 {
		t.Error("no candle should have closed")
	}
}

func TestFullQueueDropsWithoutBlocking(t *testing.T) {
	a := New([]model.Resolution{model.Res1m})
	drops := 0
	a.OnFlushDropped = func() { drops++ }
	closedCh := make(chan model.Candle, 1)

	// Three bucket crossings against a queue of capacity 1.
	a.ApplySymbol("BTCUSDT", []model.Tick{
		tick("BTCUSDT", "100", tenAM),
		tick("BTCUSDT", "101", tenAM+60_000),
		tick("BTCUSDT", "102", tenAM+120_000),
		tick("BTCUSDT", "103", tenAM+180_000),
	}, closedCh)

	if drops != 2 {
		t.Errorf("dropped %d candles, want 2", drops)
	}
	if len(closedCh) != 1 {
		t.Errorf("queue holds %d, want 1", len(closedCh))
	}
}

func TestRunDrainsBufferOnCycle(t *testing.T) {
	a := New([]model.Resolution{model.Res1m})
	a.SetCycle(10 * time.Millisecond)
	buf := tickbuf.New(0)
	closedCh := make(chan model.Candle, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx, buf, closedCh)

	buf.Add(tick("BTCUSDT", "100", tenAM))
	buf.Add(tick("BTCUSDT", "105", tenAM+30_000))

	deadline := time.After(2 * time.Second)
	for {
		if c, ok := a.OpenCandle("BTCUSDT", model.Res1m); ok {
			if c.TradeCount != 2 {
				t.Fatalf("trade count = %d, want 2", c.TradeCount)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("aggregator never consumed buffered ticks")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// The split of a tick sequence into drain batches must not change the
// resulting candle: one batch of N ticks and N batches of one tick are
// equivalent.
func TestDrainSplitDoesNotChangeCandle(t *testing.T) {
	ticks := []model.Tick{
		tick("BTCUSDT", "100", tenAM+1000),
		tick("BTCUSDT", "104", tenAM+12_000),
		tick("BTCUSDT", "98", tenAM+25_000),
		tick("BTCUSDT", "101", tenAM+40_000),
		tick("BTCUSDT", "103", tenAM+59_000),
	}

	oneBatch := New([]model.Resolution{model.Res1m})
	perTick := New([]model.Resolution{model.Res1m})
	closedCh := make(chan model.Candle, 16)

	oneBatch.ApplySymbol("BTCUSDT", ticks, closedCh)
	for _, tk := range ticks {
		perTick.ApplySymbol("BTCUSDT", []model.Tick{tk}, closedCh)
	}

	a, okA := oneBatch.OpenCandle("BTCUSDT", model.Res1m)
	b, okB := perTick.OpenCandle("BTCUSDT", model.Res1m)
	if !okA || !okB {
		t.Fatal("missing open candle")
	}
	if !a.Open.Equal(b.Open) || !a.High.Equal(b.High) || !a.Low.Equal(b.Low) ||
		!a.Close.Equal(b.Close) || !a.Volume.Equal(b.Volume) || a.TradeCount != b.TradeCount {
		t.Errorf("batch split changed the candle:\n one batch: %+v\n per tick:  %+v", a, b)
	}
	if !a.Volume.Equal(decimal.NewFromInt(5)) {
		t.Errorf("volume = %s, want exact sum 5", a.Volume)
	}
}

func TestSnapshotsReturnsAllOpenCandles(t *testing.T) {
	a := New([]model.Resolution{model.Res1m, model.Res1h})
	closedCh := make(chan model.Candle, 16)

	a.ApplySymbol("BTCUSDT", []model.Tick{tick("BTCUSDT", "100", tenAM)}, closedCh)
	a.ApplySymbol("ETHUSDT", []model.Tick{tick("ETHUSDT", "3200", tenAM)}, closedCh)

	snaps := a.Snapshots()
	if len(snaps) != 4 {
		t.Fatalf("got %d snapshots, want 4 (2 symbols x 2 resolutions)", len(snaps))
	}
	for _, c := range snaps {
		if c.Closed {
			t.Errorf("snapshot %s marked closed", c.Key())
		}
	}
}
