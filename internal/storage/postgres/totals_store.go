package postgres

import (
	"context"
	"fmt"

	"binarybot/internal/domain"
	"binarybot/internal/storage"
)

// TotalsStore implements storage.TotalsStore using PostgreSQL.
type TotalsStore struct {
	pool *Pool
}

// NewTotalsStore creates a new TotalsStore.
func NewTotalsStore(pool *Pool) *TotalsStore {
	return &TotalsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TotalsStore = (*TotalsStore)(nil)

// Load retrieves the lifetime totals for an account.
func (s *TotalsStore) Load(ctx context.Context, account string) (*domain.SessionTotals, error) {
	if account == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT total_profit, total_wins, total_losses, total_stake, total_payout, total_runs
		FROM account_totals
		WHERE account = $1
	`

	var t domain.SessionTotals
	err := s.pool.QueryRow(ctx, query, account).Scan(
		&t.TotalProfit,
		&t.TotalWins,
		&t.TotalLosses,
		&t.TotalStake,
		&t.TotalPayout,
		&t.TotalRuns,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load totals: %w", err)
	}
	return &t, nil
}

// Save upserts the lifetime totals for an account. Session counters are
// never stored.
func (s *TotalsStore) Save(ctx context.Context, account string, totals *domain.SessionTotals) error {
	if account == "" || totals == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO account_totals (
			account, total_profit, total_wins, total_losses, total_stake, total_payout, total_runs
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account) DO UPDATE SET
			total_profit = EXCLUDED.total_profit,
			total_wins   = EXCLUDED.total_wins,
			total_losses = EXCLUDED.total_losses,
			total_stake  = EXCLUDED.total_stake,
			total_payout = EXCLUDED.total_payout,
			total_runs   = EXCLUDED.total_runs,
			updated_at   = now()
	`

	_, err := s.pool.Exec(ctx, query,
		account,
		totals.TotalProfit,
		totals.TotalWins,
		totals.TotalLosses,
		totals.TotalStake,
		totals.TotalPayout,
		totals.TotalRuns,
	)
	if err != nil {
		return fmt.Errorf("save totals: %w", err)
	}
	return nil
}
