// Package query serves historical candle reads for presentation-layer
// collaborators: the most recent N candles for a (symbol, resolution),
// ascending by openTime, behind a short-TTL Redis read-through cache.
package query

import (
	"context"
	"log"
	"strings"

	"pricestreamv1/internal/model"
	"pricestreamv1/internal/store"
)

// Cache is the read-through cache for query results. A nil cache is valid;
// every read then goes to the gateway.
type Cache interface {
	GetCachedCandles(ctx context.Context, symbol string, res model.Resolution, limit int) ([]model.Candle, error)
	SetCachedCandles(ctx context.Context, symbol string, res model.Resolution, limit int, candles []model.Candle) error
}

// Service answers historical candle queries.
type Service struct {
	gw    store.Gateway
	cache Cache
}

// New creates a query Service. cache may be nil.
func New(gw store.Gateway, cache Cache) *Service {
	return &Service{gw: gw, cache: cache}
}

// GetCandles returns the most recent `limit` candles for the symbol and
// resolution, ascending by openTime. Cache errors fall through to the
// gateway; the last successfully persisted candles are always reachable.
func (s *Service) GetCandles(ctx context.Context, symbol string, res model.Resolution, limit int) ([]model.Candle, error) {
	symbol = strings.ToUpper(symbol)

	if s.cache != nil {
		cached, err := s.cache.GetCachedCandles(ctx, symbol, res, limit)
		if err != nil {
			log.Printf("[query] cache read %s %s: %v", symbol, res, err)
		} else if cached != nil {
			return cached, nil
		}
	}

	candles, err := s.gw.GetCandles(ctx, symbol, res, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && len(candles) > 0 {
		if err := s.cache.SetCachedCandles(ctx, symbol, res, limit, candles); err != nil {
			log.Printf("[query] cache write %s %s: %v", symbol, res, err)
		}
	}
	return candles, nil
}
