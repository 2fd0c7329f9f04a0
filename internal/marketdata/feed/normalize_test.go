package feed

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeEnvelopedTrade(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"67000.12","q":"0.004","T":1699956000123}}`)

	tick, kind, err := Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != KindTrade {
		t.Fatalf("kind = %v, want KindTrade", kind)
	}
	if tick.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q", tick.Symbol)
	}
	if !tick.Price.Equal(decimal.RequireFromString("67000.12")) {
		t.Errorf("price = %s", tick.Price)
	}
	if !tick.Quantity.Equal(decimal.RequireFromString("0.004")) {
		t.Errorf("quantity = %s", tick.Quantity)
	}
	if tick.TradeTS != 1699956000123 {
		t.Errorf("tradeTS = %d", tick.TradeTS)
	}
	if tick.Source != "binance" {
		t.Errorf("source = %q", tick.Source)
	}
}

func TestNormalizeBareTrade(t *testing.T) {
	raw := []byte(`{"e":"trade","s":"ethusdt","p":"3200.5","q":"1.25","T":1699956000500}`)

	tick, kind, err := Normalize(raw)
	if err != nil || kind != KindTrade {
		t.Fatalf("err=%v kind=%v", err, kind)
	}
	if tick.Symbol != "ETHUSDT" {
		t.Errorf("symbol not uppercased: %q", tick.Symbol)
	}
}

func TestNormalizeKlineRecognizedNotTicked(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@kline_1m","data":{"e":"kline","s":"BTCUSDT","k":{"t":1699956000000,"o":"100","h":"105","l":"99","c":"104","v":"12.5"}}}`)

	_, kind, err := Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != KindKline {
		t.Fatalf("kind = %v, want KindKline", kind)
	}
}

func TestNormalizeUnknownEventIsOther(t *testing.T) {
	raw := []byte(`{"e":"aggTrade","s":"BTCUSDT","p":"100"}`)
	_, kind, err := Normalize(raw)
	if err != nil || kind != KindOther {
		t.Fatalf("err=%v kind=%v, want nil/KindOther", err, kind)
	}
}

func TestNormalizeMalformedInputs(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `garbage{{`},
		{"missing symbol", `{"e":"trade","p":"100","q":"1","T":1699956000000}`},
		{"missing trade time", `{"e":"trade","s":"BTCUSDT","p":"100","q":"1"}`},
		{"bad price", `{"e":"trade","s":"BTCUSDT","p":"abc","q":"1","T":1699956000000}`},
		{"bad quantity", `{"e":"trade","s":"BTCUSDT","p":"100","q":"","T":1699956000000}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := Normalize([]byte(tc.raw)); err == nil {
				t.Errorf("Normalize(%s) expected error", tc.raw)
			}
		})
	}
}
