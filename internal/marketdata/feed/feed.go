// Package feed owns the upstream WebSocket connection. One combined-stream
// connection covers every configured symbol; on close or error the
// supervisor schedules a single delayed reconnect and retries indefinitely.
// Normalized ticks are pushed into the tick buffer; kline events and
// malformed messages are counted and dropped without touching the
// aggregation path.
package feed

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"pricestreamv1/internal/marketdata/tickbuf"
	"pricestreamv1/internal/model"
)

const defaultReconnectDelay = 5 * time.Second

// Config holds configuration for the feed supervisor.
type Config struct {
	// URL is the combined-stream base, e.g.
	// "wss://stream.binance.com:9443/stream?streams=". Stream names are
	// appended joined with "/".
	URL string

	// Symbols to subscribe (any case; stream names are lowercased).
	Symbols []string

	// Backoff controls the reconnect delay. Nil selects a fixed 5s delay.
	Backoff Backoff
}

// Supervisor runs the Disconnected → Connecting → Connected state machine
// for the upstream connection.
type Supervisor struct {
	cfg Config

	// Hooks (optional, set externally).
	OnConnect    func()
	OnDisconnect func()
	OnTick       func(t model.Tick)
	OnKline      func()
	OnParseError func()
}

// New creates a Supervisor. Returns an error for an empty symbol set.
func New(cfg Config) (*Supervisor, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("feed: no symbols configured")
	}
	if cfg.Backoff == nil {
		cfg.Backoff = FixedBackoff{Delay: defaultReconnectDelay}
	}
	return &Supervisor{cfg: cfg}, nil
}

// streamURL builds the combined-stream URL subscribing every symbol's raw
// trade stream: <base><sym1>@trade/<sym2>@trade/...
func (s *Supervisor) streamURL() string {
	names := make([]string, 0, len(s.cfg.Symbols))
	for _, sym := range s.cfg.Symbols {
		names = append(names, strings.ToLower(sym)+"@trade")
	}
	return s.cfg.URL + strings.Join(names, "/")
}

// Start connects and streams ticks into buf until ctx is cancelled.
// Every disconnect — including dial errors — schedules exactly one
// reconnect attempt after the backoff delay. There is no retry cap.
func (s *Supervisor) Start(ctx context.Context, buf *tickbuf.Buffer) {
	url := s.streamURL()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := s.runOnce(ctx, url, buf)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("[feed] connection lost: %v", err)
		}
		if s.OnDisconnect != nil {
			s.OnDisconnect()
		}

		delay := s.cfg.Backoff.Next()
		log.Printf("[feed] reconnecting in %v", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// runOnce dials, then reads messages until the connection drops or ctx is
// cancelled. Returns nil only on context cancellation.
func (s *Supervisor) runOnce(ctx context.Context, url string, buf *tickbuf.Buffer) error {
	log.Printf("[feed] connecting to %s", url)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("feed: dial: %w", err)
	}
	defer conn.Close()

	log.Printf("[feed] connected, %d symbols subscribed", len(s.cfg.Symbols))
	s.cfg.Backoff.Reset()
	if s.OnConnect != nil {
		s.OnConnect()
	}

	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("feed: read: %w", err)
		}

		tick, kind, err := Normalize(raw)
		if err != nil {
			// Soft failure: one bad message must not interrupt the stream.
			log.Printf("[feed] drop message: %v", err)
			if s.OnParseError != nil {
				s.OnParseError()
			}
			continue
		}

		switch kind {
		case KindTrade:
			buf.Add(tick)
			if s.OnTick != nil {
				s.OnTick(tick)
			}
		case KindKline:
			if s.OnKline != nil {
				s.OnKline()
			}
		}
	}
}
