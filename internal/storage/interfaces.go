package storage

import (
	"context"

	"binarybot/internal/domain"
)

// TradeRecordStore persists settled contracts. The engine writes through
// on settlement; the dashboard layer reads.
type TradeRecordStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, r *domain.TradeRecord) error

	// GetByID retrieves a record by trade id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// GetBySymbol retrieves all records for a symbol, ordered by sell time ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.TradeRecord, error)
}

// TotalsStore persists lifetime totals per account so they survive
// process restarts. Session-scoped counters are never stored.
type TotalsStore interface {
	// Load retrieves the lifetime totals for an account. Returns
	// ErrNotFound for a never-seen account.
	Load(ctx context.Context, account string) (*domain.SessionTotals, error)

	// Save upserts the lifetime totals for an account.
	Save(ctx context.Context, account string, totals *domain.SessionTotals) error
}

// TickArchive receives the normalized tick and candle streams for offline
// analysis. Writes are best-effort; feed managers log and continue on error.
type TickArchive interface {
	// InsertTicks appends tick points.
	InsertTicks(ctx context.Context, ticks []domain.Tick) error

	// InsertCandles appends candle points.
	InsertCandles(ctx context.Context, candles []domain.Candle) error
}
