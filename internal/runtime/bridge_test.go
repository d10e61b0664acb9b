package runtime

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"binarybot/internal/api/stub"
	"binarybot/internal/engine"
	"binarybot/internal/events"
)

func newTestBridge(t *testing.T) (*Bridge, *stub.Client) {
	t.Helper()
	observer := events.New()
	client := stub.New(observer)
	eng := engine.New(client, observer, engine.Options{Symbol: "R_100"})
	if err := eng.Init(context.Background(), "token-a"); err != nil {
		t.Fatalf("init: %v", err)
	}
	return New(eng), client
}

func TestQuotes_ProjectsTickWindow(t *testing.T) {
	bridge, _ := newTestBridge(t)

	quotes := bridge.Quotes()
	if len(quotes) != 3 {
		t.Fatalf("got %d quotes, want 3 from history", len(quotes))
	}
	if quotes[0] != 100 || quotes[2] != 102 {
		t.Errorf("quotes = %v, want chronological [100 101 102]", quotes)
	}
}

func TestTable_IndicatorsOverQuotes(t *testing.T) {
	bridge, _ := newTestBridge(t)
	table := bridge.Table()

	got := table.SMA(3)
	if math.Abs(got-101) > 1e-9 {
		t.Errorf("SMA(3) = %v, want 101", got)
	}
	if !math.IsNaN(table.SMA(10)) {
		t.Error("SMA over a period longer than the window must be NaN")
	}
}

func TestSleep_ZeroAndNegativeAreImmediate(t *testing.T) {
	bridge, _ := newTestBridge(t)

	start := time.Now()
	if err := bridge.Sleep(context.Background(), 0); err != nil {
		t.Fatalf("sleep(0): %v", err)
	}
	if err := bridge.Sleep(context.Background(), -1); err != nil {
		t.Fatalf("sleep(-1): %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("non-positive sleep must return immediately")
	}
}

func TestSleep_CancelledContext(t *testing.T) {
	bridge, _ := newTestBridge(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := bridge.Sleep(ctx, 60)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("sleep on cancelled context = %v, want context.Canceled", err)
	}
}

func TestSleep_FractionalSeconds(t *testing.T) {
	bridge, _ := newTestBridge(t)

	var slept time.Duration
	bridge.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}
	if err := bridge.Sleep(context.Background(), 1.5); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	if slept != 1500*time.Millisecond {
		t.Errorf("slept %v, want 1.5s", slept)
	}
}

func TestSellAtMarket_Unavailable(t *testing.T) {
	bridge, _ := newTestBridge(t)

	if _, err := bridge.SellAtMarket(context.Background()); err == nil {
		t.Error("sell with no held contract must fail")
	}
}
