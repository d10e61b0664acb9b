package engine

import (
	"context"
	"errors"
	"testing"

	"binarybot/internal/domain"
	"binarybot/internal/storage/memory"
)

func settledContract(id int64, buy, sell float64) *domain.OpenContract {
	return &domain.OpenContract{
		ContractID: id,
		BuyPrice:   buy,
		SellPrice:  &sell,
		IsSold:     true,
	}
}

func TestTracker_UpdateCommitsOnce(t *testing.T) {
	tracker := NewTracker(nil, "CR1001")

	contract := settledContract(1, 1.00, 1.95)
	profit, committed := tracker.Update(contract)
	if !committed {
		t.Fatal("first delivery must commit")
	}
	if profit != 0.95 {
		t.Errorf("profit = %v, want 0.95", profit)
	}

	// Duplicate settlement delivery for the same contract id.
	if _, committed := tracker.Update(contract); committed {
		t.Error("duplicate delivery must not commit")
	}

	totals := tracker.Snapshot()
	if totals.TotalProfit != 0.95 || totals.TotalWins != 1 {
		t.Errorf("totals = %+v", totals)
	}
}

func TestTracker_ZeroProfitCountsNeither(t *testing.T) {
	tracker := NewTracker(nil, "CR1001")

	if _, committed := tracker.Update(settledContract(1, 1.00, 1.00)); !committed {
		t.Fatal("commit expected")
	}

	totals := tracker.Snapshot()
	if totals.TotalWins != 0 || totals.TotalLosses != 0 {
		t.Errorf("zero profit counted as win or loss: %+v", totals)
	}
	if totals.TotalStake != 1.00 || totals.TotalPayout != 1.00 {
		t.Errorf("stake/payout not accumulated: %+v", totals)
	}
}

func TestTracker_NotSettledIsIgnored(t *testing.T) {
	tracker := NewTracker(nil, "CR1001")

	if _, committed := tracker.Update(&domain.OpenContract{ContractID: 1, IsSold: true}); committed {
		t.Error("contract without sell price must not commit")
	}
	if _, committed := tracker.Update(nil); committed {
		t.Error("nil contract must not commit")
	}
}

func TestTracker_CheckLimits(t *testing.T) {
	opt := func(maxLoss float64, maxTrades int) *domain.TradeOption {
		return &domain.TradeOption{Limitations: &domain.Limitations{MaxLoss: maxLoss, MaxTrades: maxTrades}}
	}

	t.Run("no limitations", func(t *testing.T) {
		tracker := NewTracker(nil, "CR1001")
		if err := tracker.CheckLimits(&domain.TradeOption{}); err != nil {
			t.Errorf("err = %v, want nil", err)
		}
	})

	t.Run("only one limit configured", func(t *testing.T) {
		tracker := NewTracker(nil, "CR1001")
		tracker.IncrementRuns()
		if err := tracker.CheckLimits(opt(0, 1)); err != nil {
			t.Errorf("maxTrades alone must not enforce: %v", err)
		}
		if err := tracker.CheckLimits(opt(10, 0)); err != nil {
			t.Errorf("maxLoss alone must not enforce: %v", err)
		}
	})

	t.Run("max trades", func(t *testing.T) {
		tracker := NewTracker(nil, "CR1001")
		tracker.IncrementRuns()
		tracker.IncrementRuns()

		var limits *LimitsError
		err := tracker.CheckLimits(opt(10, 2))
		if !errors.As(err, &limits) || limits.Reason != "maxTrades" {
			t.Errorf("err = %v, want maxTrades LimitsError", err)
		}
	})

	t.Run("max loss", func(t *testing.T) {
		tracker := NewTracker(nil, "CR1001")
		tracker.Update(settledContract(1, 10.00, 0))

		var limits *LimitsError
		err := tracker.CheckLimits(opt(10, 5))
		if !errors.As(err, &limits) || limits.Reason != "maxLoss" {
			t.Errorf("err = %v, want maxLoss LimitsError", err)
		}
	})

	t.Run("under both limits", func(t *testing.T) {
		tracker := NewTracker(nil, "CR1001")
		tracker.IncrementRuns()
		tracker.Update(settledContract(1, 1.00, 0))
		if err := tracker.CheckLimits(opt(10, 5)); err != nil {
			t.Errorf("err = %v, want nil", err)
		}
	})
}

func TestTracker_ResetSessionKeepsLifetime(t *testing.T) {
	tracker := NewTracker(nil, "CR1001")
	tracker.IncrementRuns()
	tracker.Update(settledContract(1, 1.00, 1.95))

	tracker.ResetSession()

	totals := tracker.Snapshot()
	if totals.SessionRuns != 0 || totals.SessionProfit != 0 {
		t.Errorf("session counters not reset: %+v", totals)
	}
	if totals.TotalRuns != 1 || totals.TotalProfit != 0.95 {
		t.Errorf("lifetime totals must survive reset: %+v", totals)
	}
}

func TestTracker_PersistAndRestore(t *testing.T) {
	store := memory.NewTotalsStore()
	ctx := context.Background()

	first := NewTracker(store, "CR1001")
	first.IncrementRuns()
	first.Update(settledContract(1, 1.00, 1.95))

	// A new tracker for the same account picks up lifetime totals only.
	second := NewTracker(store, "CR1001")
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	totals := second.Snapshot()
	if totals.TotalProfit != 0.95 || totals.TotalRuns != 1 {
		t.Errorf("lifetime totals not restored: %+v", totals)
	}
	if totals.SessionRuns != 0 || totals.SessionProfit != 0 {
		t.Errorf("session counters must start fresh: %+v", totals)
	}
}

func TestTracker_RestoreUnknownAccount(t *testing.T) {
	tracker := NewTracker(memory.NewTotalsStore(), "CR9999")
	if err := tracker.Restore(context.Background()); err != nil {
		t.Errorf("fresh account restore = %v, want nil", err)
	}
}

func TestRoundFixed(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0.956, 0.96},
		{0.954, 0.95},
		{-0.956, -0.96},
		{2, 2},
	}
	for _, c := range cases {
		if got := roundFixed(c.in); got != c.want {
			t.Errorf("roundFixed(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
