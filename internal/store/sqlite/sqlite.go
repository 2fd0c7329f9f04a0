// Package sqlite implements the candle persistence gateway on SQLite with a
// single-writer connection, WAL mode, and transaction batching for the
// closed-candle stream.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	_ "github.com/mattn/go-sqlite3"

	"pricestreamv1/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/candles.db"
}

// Store is the SQLite-backed persistence gateway.
type Store struct {
	db *sql.DB

	// OnCommit is called after each batched commit with the batch size
	// and commit duration (optional, metrics hook).
	OnCommit func(n int, d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database, enables WAL mode, and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol      TEXT    NOT NULL,
			resolution  TEXT    NOT NULL,
			open_time   INTEGER NOT NULL,
			close_time  INTEGER NOT NULL,
			open        TEXT    NOT NULL,
			high        TEXT    NOT NULL,
			low         TEXT    NOT NULL,
			close       TEXT    NOT NULL,
			volume      TEXT    NOT NULL,
			trade_count INTEGER NOT NULL,
			created_at  INTEGER NOT NULL,
			PRIMARY KEY (symbol, resolution, open_time)
		);
	`)
	return err
}

// Run reads closed candles from candleCh and upserts them in batched
// transactions. Flushes every batchSize candles OR every flushDelay,
// whichever comes first. Blocks until ctx is cancelled or candleCh closes.
func (s *Store) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.upsertBatch(batch); err != nil {
			// Persistence errors never propagate: the in-memory candle
			// remains the source of truth until the next flush.
			log.Printf("[sqlite] batch upsert error (%d candles): %v", len(batch), err)
		} else if s.OnCommit != nil {
			s.OnCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case c, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, c)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

const upsertSQL = `
	INSERT OR REPLACE INTO candles
		(symbol, resolution, open_time, close_time, open, high, low, close, volume, trade_count, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// upsertBatch writes a batch of candles in one transaction.
func (s *Store) upsertBatch(candles []model.Candle) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(upsertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, c := range candles {
		_, err := stmt.Exec(
			c.Symbol, string(c.Resolution), c.OpenTime, c.CloseTime,
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(),
			c.Volume.String(), c.TradeCount, now,
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// UpsertCandle inserts or replaces one candle. Idempotent on
// (symbol, resolution, open_time).
func (s *Store) UpsertCandle(ctx context.Context, c model.Candle) error {
	_, err := s.db.ExecContext(ctx, upsertSQL,
		c.Symbol, string(c.Resolution), c.OpenTime, c.CloseTime,
		c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(),
		c.Volume.String(), c.TradeCount, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite upsert %s: %w", c.Key(), err)
	}
	return nil
}

// FindClosedCandles returns candles with openTime in [startMs, endMs),
// ascending by openTime.
func (s *Store) FindClosedCandles(ctx context.Context, symbol string, res model.Resolution, startMs, endMs int64) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, resolution, open_time, close_time, open, high, low, close, volume, trade_count
		FROM candles
		WHERE symbol = ? AND resolution = ? AND open_time >= ? AND open_time < ?
		ORDER BY open_time ASC
	`, symbol, string(res), startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("sqlite find candles: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

// GetCandles returns the most recent `limit` candles, ascending by openTime.
func (s *Store) GetCandles(ctx context.Context, symbol string, res model.Resolution, limit int) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, resolution, open_time, close_time, open, high, low, close, volume, trade_count
		FROM candles
		WHERE symbol = ? AND resolution = ?
		ORDER BY open_time DESC
		LIMIT ?
	`, symbol, string(res), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite get candles: %w", err)
	}
	defer rows.Close()

	candles, err := scanCandles(rows)
	if err != nil {
		return nil, err
	}
	// Query is newest-first for the LIMIT; callers get oldest-first.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// DeleteOlderThan removes candles stored before the cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM candles WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite delete old candles: %w", err)
	}
	return res.RowsAffected()
}

func scanCandles(rows *sql.Rows) ([]model.Candle, error) {
	var out []model.Candle
	for rows.Next() {
		var (
			c                            model.Candle
			resStr                       string
			open, high, low, cls, volume string
		)
		if err := rows.Scan(&c.Symbol, &resStr, &c.OpenTime, &c.CloseTime,
			&open, &high, &low, &cls, &volume, &c.TradeCount); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}
		c.Resolution = model.Resolution(resStr)
		var err error
		if c.Open, err = decimal.NewFromString(open); err != nil {
			return nil, fmt.Errorf("sqlite decode open: %w", err)
		}
		if c.High, err = decimal.NewFromString(high); err != nil {
			return nil, fmt.Errorf("sqlite decode high: %w", err)
		}
		if c.Low, err = decimal.NewFromString(low); err != nil {
			return nil, fmt.Errorf("sqlite decode low: %w", err)
		}
		if c.Close, err = decimal.NewFromString(cls); err != nil {
			return nil, fmt.Errorf("sqlite decode close: %w", err)
		}
		if c.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("sqlite decode volume: %w", err)
		}
		c.Closed = true
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
