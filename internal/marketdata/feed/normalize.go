package feed

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pricestreamv1/internal/model"
)

// sourceTag identifies the upstream exchange on every normalized tick.
const sourceTag = "binance"

// Kind classifies a normalized upstream message.
type Kind int

const (
	// KindTrade is a raw trade event carrying a Tick.
	KindTrade Kind = iota
	// KindKline is an exchange-side candle event. Trades are the
	// authoritative source for aggregation; klines are recognized so they
	// can be counted, then ignored by this path.
	KindKline
	// KindOther is any message that is neither (subscription acks,
	// unknown event types).
	KindOther
)

// envelope is the combined-stream wrapper:
// {"stream":"btcusdt@trade","data":{...}}.
type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// tradeEvent is the Binance raw trade payload.
type tradeEvent struct {
	EventType string `json:"e"` // "trade"
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"` // epoch ms
}

// eventHeader is used to peek at the event type only.
type eventHeader struct {
	EventType string `json:"e"`
}

// Normalize parses one raw upstream message into zero or one Tick.
// Combined-stream envelopes and bare payloads are both accepted.
// Any malformed input returns an error for the caller to log and drop;
// a single bad message never interrupts the stream.
func Normalize(raw []byte) (model.Tick, Kind, error) {
	payload := raw

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		payload = env.Data
	}

	var hdr eventHeader
	if err := json.Unmarshal(payload, &hdr); err != nil {
		return model.Tick{}, KindOther, fmt.Errorf("feed: decode message: %w", err)
	}

	switch hdr.EventType {
	case "trade":
		return normalizeTrade(payload)
	case "kline":
		return model.Tick{}, KindKline, nil
	default:
		return model.Tick{}, KindOther, nil
	}
}

func normalizeTrade(payload []byte) (model.Tick, Kind, error) {
	var ev tradeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return model.Tick{}, KindTrade, fmt.Errorf("feed: decode trade: %w", err)
	}
	if ev.Symbol == "" {
		return model.Tick{}, KindTrade, fmt.Errorf("feed: trade missing symbol")
	}
	if ev.TradeTime <= 0 {
		return model.Tick{}, KindTrade, fmt.Errorf("feed: trade %s missing trade time", ev.Symbol)
	}

	price, err := decimal.NewFromString(ev.Price)
	if err != nil {
		return model.Tick{}, KindTrade, fmt.Errorf("feed: trade %s bad price %q: %w", ev.Symbol, ev.Price, err)
	}
	qty, err := decimal.NewFromString(ev.Quantity)
	if err != nil {
		return model.Tick{}, KindTrade, fmt.Errorf("feed: trade %s bad quantity %q: %w", ev.Symbol, ev.Quantity, err)
	}

	return model.Tick{
		Symbol:   strings.ToUpper(ev.Symbol),
		Price:    price,
		Quantity: qty,
		TradeTS:  ev.TradeTime,
		Source:   sourceTag,
	}, KindTrade, nil
}
