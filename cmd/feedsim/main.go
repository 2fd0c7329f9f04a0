// cmd/feedsim — demo combined-stream WebSocket server.
// Broadcasts simulated Binance-shaped trade envelopes so priceengine can run
// without upstream connectivity. Point the engine at it with:
//
//	FEED_WS_URL="ws://localhost:9001/stream?streams="
//
// Message shape matches the upstream combined stream:
//
//	{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"67000.12","q":"0.004","T":1700000000123}}
//
// Config (env vars):
//
//	FEEDSIM_ADDR         — listen address (default ":9001")
//	FEEDSIM_SYMBOLS      — comma-separated symbols (default "btcusdt,ethusdt")
//	FEEDSIM_INTERVAL_MS  — trade interval milliseconds (default "100")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// tradeData mirrors the upstream raw trade payload.
type tradeData struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// streamMsg is the combined-stream envelope.
type streamMsg struct {
	Stream string    `json:"stream"`
	Data   tradeData `json:"data"`
}

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol string  // uppercase
	Price  float64 // current simulated price
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop trade
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[feedsim] upgrade error: %v", err)
			return
		}
		log.Printf("[feedsim] client connected: %s streams=%s", r.RemoteAddr, r.URL.RawQuery)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[feedsim] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump: sends trade envelopes to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Trade generator ──────────────────────────────────────────────────────────

// walkPrice applies a tiny random walk (±0.1%) to simulate price movement.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	newPrice := price * (1 + pct)
	if newPrice < 0.01 {
		newPrice = 0.01
	}
	return newPrice
}

func runGenerator(h *hub, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for i := range instruments {
			instruments[i].Price = walkPrice(instruments[i].Price)
			msg := streamMsg{
				Stream: strings.ToLower(instruments[i].Symbol) + "@trade",
				Data: tradeData{
					EventType: "trade",
					Symbol:    instruments[i].Symbol,
					Price:     strconv.FormatFloat(instruments[i].Price, 'f', 2, 64),
					Quantity:  strconv.FormatFloat(rand.Float64()*2+0.001, 'f', 4, 64),
					TradeTime: time.Now().UnixMilli(),
				},
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedsim] starting demo feed server...")

	addr := envOrDefault("FEEDSIM_ADDR", ":9001")
	symbolsEnv := envOrDefault("FEEDSIM_SYMBOLS", "btcusdt,ethusdt")
	intervalMs := envIntOrDefault("FEEDSIM_INTERVAL_MS", 100)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[feedsim] no symbols configured via FEEDSIM_SYMBOLS")
	}
	log.Printf("[feedsim] symbols: %+v", instruments)
	log.Printf("[feedsim] trade interval: %dms", intervalMs)

	h := newHub()
	go runGenerator(h, instruments, intervalMs)

	// The engine dials "<base>/stream?streams=<names>"; the stream list is
	// informational here — every client gets all symbols.
	http.HandleFunc("/stream", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})

	log.Printf("[feedsim] listening on %s  (WebSocket: ws://localhost%s/stream)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[feedsim] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) []instrument {
	defaultPrices := map[string]float64{
		"BTCUSDT": 67000,
		"ETHUSDT": 3200,
		"BNBUSDT": 580,
		"SOLUSDT": 150,
	}

	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		price := defaultPrices[part]
		if price == 0 {
			price = 100
		}
		result = append(result, instrument{Symbol: part, Price: price})
	}
	return result
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
