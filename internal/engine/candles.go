package engine

import (
	"context"
	"log"
	"sync"

	"binarybot/internal/api"
	"binarybot/internal/domain"
	"binarybot/internal/storage"
)

const defaultCandleWindow = 5000

// candleFeed maintains the rolling OHLC window. A candle whose epoch
// matches the newest stored entry is the same bar still forming and
// replaces it; only a new epoch grows the window.
type candleFeed struct {
	client   api.Client
	retrier  *Retrier
	capacity int
	archive  storage.TickArchive

	mu          sync.Mutex
	symbol      string
	granularity int
	window      []domain.Candle
}

func newCandleFeed(client api.Client, retrier *Retrier, capacity int, archive storage.TickArchive) *candleFeed {
	if capacity <= 0 {
		capacity = defaultCandleWindow
	}
	return &candleFeed{
		client:   client,
		retrier:  retrier,
		capacity: capacity,
		archive:  archive,
	}
}

// Subscribe starts the candle stream. A repeat call with the same symbol
// and granularity is a no-op.
func (f *candleFeed) Subscribe(ctx context.Context, symbol string, granularity int) error {
	if granularity <= 0 {
		granularity = 60
	}

	f.mu.Lock()
	if f.symbol == symbol && f.granularity == granularity {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	_ = f.client.ForgetAll(ctx, "candles")

	var history *api.HistoryResult
	err := f.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		history, err = f.client.History(ctx, symbol, api.HistoryRequest{
			End:         "latest",
			Count:       f.capacity,
			Granularity: granularity,
			Style:       "candles",
			Subscribe:   true,
		})
		return err
	})
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.symbol = symbol
	f.granularity = granularity
	f.window = append([]domain.Candle(nil), history.Candles...)
	if len(f.window) > f.capacity {
		f.window = f.window[len(f.window)-f.capacity:]
	}
	f.mu.Unlock()
	return nil
}

// Handle merges one streamed candle into the window.
func (f *candleFeed) Handle(candle domain.Candle) {
	f.mu.Lock()
	if f.symbol != "" && candle.Symbol != f.symbol {
		f.mu.Unlock()
		return
	}
	if n := len(f.window); n > 0 && f.window[n-1].Epoch == candle.Epoch {
		// Same bar still forming.
		f.window[n-1] = candle
	} else {
		f.window = append(f.window, candle)
		if len(f.window) > f.capacity {
			f.window = f.window[1:]
		}
	}
	f.mu.Unlock()

	if f.archive != nil {
		if err := f.archive.InsertCandles(context.Background(), []domain.Candle{candle}); err != nil {
			log.Printf("[candles] archive write failed: %v", err)
		}
	}
}

// Window returns a copy of the current candle window.
func (f *candleFeed) Window() []domain.Candle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Candle(nil), f.window...)
}
