package model

import "github.com/shopspring/decimal"

// Tick represents a single executed trade from the upstream feed.
// Prices and quantities are decimal to avoid float drift; TradeTS is the
// exchange-reported trade time in epoch milliseconds. Immutable once built.
type Tick struct {
	Symbol   string          `json:"symbol"` // normalized uppercase, e.g. "BTCUSDT"
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"qty"`
	TradeTS  int64           `json:"trade_ts"` // epoch ms
	Source   string          `json:"source"`   // exchange tag, e.g. "binance"
}
