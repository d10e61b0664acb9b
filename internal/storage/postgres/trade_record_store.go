package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"binarybot/internal/domain"
	"binarybot/internal/storage"
)

// TradeRecordStore implements storage.TradeRecordStore using PostgreSQL.
type TradeRecordStore struct {
	pool *Pool
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(pool *Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

const tradeRecordColumns = `
	trade_id, contract_id, contract_type, symbol, currency,
	buy_price, sell_price, payout, profit,
	entry_spot, exit_spot, date_start, date_sold,
	transaction_id_buy, transaction_id_sell, session_run, total_run
`

// Insert adds a new record. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeRecordStore) Insert(ctx context.Context, r *domain.TradeRecord) error {
	if r == nil || r.TradeID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trade_records (` + tradeRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := s.pool.Exec(ctx, query,
		r.TradeID,
		r.ContractID,
		r.ContractType,
		r.Symbol,
		r.Currency,
		r.BuyPrice,
		r.SellPrice,
		r.Payout,
		r.Profit,
		r.EntrySpot,
		r.ExitSpot,
		r.DateStart,
		r.DateSold,
		r.TransactionIDBuy,
		r.TransactionIDSell,
		r.SessionRun,
		r.TotalRun,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

// GetByID retrieves a record by trade id. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	query := `
		SELECT ` + tradeRecordColumns + `
		FROM trade_records
		WHERE trade_id = $1
	`

	row := s.pool.QueryRow(ctx, query, tradeID)
	r, err := scanTradeRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade record by id: %w", err)
	}
	return r, nil
}

// GetBySymbol retrieves all records for a symbol, ordered by sell time ASC.
func (s *TradeRecordStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.TradeRecord, error) {
	query := `
		SELECT ` + tradeRecordColumns + `
		FROM trade_records
		WHERE symbol = $1
		ORDER BY date_sold ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("get trade records by symbol: %w", err)
	}
	defer rows.Close()

	var result []*domain.TradeRecord
	for rows.Next() {
		r, err := scanTradeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade record rows: %w", err)
	}
	return result, nil
}

// scanTradeRecord scans a single row.
func scanTradeRecord(row pgx.Row) (*domain.TradeRecord, error) {
	var r domain.TradeRecord
	err := row.Scan(
		&r.TradeID,
		&r.ContractID,
		&r.ContractType,
		&r.Symbol,
		&r.Currency,
		&r.BuyPrice,
		&r.SellPrice,
		&r.Payout,
		&r.Profit,
		&r.EntrySpot,
		&r.ExitSpot,
		&r.DateStart,
		&r.DateSold,
		&r.TransactionIDBuy,
		&r.TransactionIDSell,
		&r.SessionRun,
		&r.TotalRun,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
