package clickhouse

import (
	"context"
	"fmt"

	"binarybot/internal/domain"
	"binarybot/internal/storage"
)

// TickArchiveStore implements storage.TickArchive using ClickHouse. Both
// streams append-only; duplicate epochs are collapsed by the
// ReplacingMergeTree tables at merge time.
type TickArchiveStore struct {
	conn *Conn
}

// NewTickArchiveStore creates a new TickArchiveStore.
func NewTickArchiveStore(conn *Conn) *TickArchiveStore {
	return &TickArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TickArchive = (*TickArchiveStore)(nil)

// InsertTicks appends tick points.
func (s *TickArchiveStore) InsertTicks(ctx context.Context, ticks []domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ticks (symbol, epoch, quote, pip_size)
	`)
	if err != nil {
		return fmt.Errorf("prepare tick batch: %w", err)
	}

	for _, t := range ticks {
		if err := batch.Append(t.Symbol, uint64(t.Epoch), t.Quote, uint8(t.PipSize)); err != nil {
			return fmt.Errorf("append to tick batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send tick batch: %w", err)
	}
	return nil
}

// InsertCandles appends candle points.
func (s *TickArchiveStore) InsertCandles(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (symbol, epoch, open, high, low, close, interval_sec)
	`)
	if err != nil {
		return fmt.Errorf("prepare candle batch: %w", err)
	}

	for _, c := range candles {
		if err := batch.Append(
			c.Symbol, uint64(c.Epoch),
			c.Open, c.High, c.Low, c.Close,
			uint32(c.Interval),
		); err != nil {
			return fmt.Errorf("append to candle batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send candle batch: %w", err)
	}
	return nil
}

// GetTicks retrieves archived ticks for a symbol within [start, end],
// ordered by epoch ASC.
func (s *TickArchiveStore) GetTicks(ctx context.Context, symbol string, start, end int64) ([]domain.Tick, error) {
	query := `
		SELECT symbol, epoch, quote, pip_size
		FROM ticks FINAL
		WHERE symbol = ? AND epoch >= ? AND epoch <= ?
		ORDER BY epoch ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []domain.Tick
	for rows.Next() {
		var t domain.Tick
		var epoch uint64
		var pipSize uint8
		if err := rows.Scan(&t.Symbol, &epoch, &t.Quote, &pipSize); err != nil {
			return nil, fmt.Errorf("scan tick row: %w", err)
		}
		t.Epoch = int64(epoch)
		t.PipSize = int(pipSize)
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tick rows: %w", err)
	}
	return ticks, nil
}

// GetCandles retrieves archived candles for a symbol and interval within
// [start, end], ordered by epoch ASC.
func (s *TickArchiveStore) GetCandles(ctx context.Context, symbol string, interval int, start, end int64) ([]domain.Candle, error) {
	query := `
		SELECT symbol, epoch, open, high, low, close, interval_sec
		FROM candles FINAL
		WHERE symbol = ? AND interval_sec = ? AND epoch >= ? AND epoch <= ?
		ORDER BY epoch ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, uint32(interval), uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		var c domain.Candle
		var epoch uint64
		var iv uint32
		if err := rows.Scan(&c.Symbol, &epoch, &c.Open, &c.High, &c.Low, &c.Close, &iv); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		c.Epoch = int64(epoch)
		c.Interval = int(iv)
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}
	return candles, nil
}
