package engine

import (
	"context"
	"log"
	"sync"

	"binarybot/internal/api"
	"binarybot/internal/domain"
	"binarybot/internal/storage"
)

// defaultTickWindow is the rolling window capacity, matching the history
// fetch size.
const defaultTickWindow = 5000

// tickFeed maintains the rolling tick window for the active symbol. A
// symbol change resets the window through a fresh history subscription.
type tickFeed struct {
	client   api.Client
	retrier  *Retrier
	capacity int
	archive  storage.TickArchive

	onTick func(ticks []domain.Tick, direction string)

	mu      sync.Mutex
	symbol  string
	pipSize int
	window  []domain.Tick
}

func newTickFeed(client api.Client, retrier *Retrier, capacity int, archive storage.TickArchive) *tickFeed {
	if capacity <= 0 {
		capacity = defaultTickWindow
	}
	return &tickFeed{
		client:   client,
		retrier:  retrier,
		capacity: capacity,
		archive:  archive,
	}
}

// Subscribe starts the tick stream for symbol. Re-subscribing to the
// current symbol is a no-op; a new symbol drops the old stream and
// rebuilds the window from history.
func (f *tickFeed) Subscribe(ctx context.Context, symbol string) error {
	f.mu.Lock()
	if f.symbol == symbol {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	// Best-effort drop of the previous stream; the new history
	// subscription supersedes it.
	_ = f.client.ForgetAll(ctx, "ticks")

	var history *api.HistoryResult
	err := f.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		history, err = f.client.History(ctx, symbol, api.HistoryRequest{
			End:       "latest",
			Count:     f.capacity,
			Style:     "ticks",
			Subscribe: true,
		})
		return err
	})
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.symbol = symbol
	f.window = append([]domain.Tick(nil), history.Ticks...)
	if len(f.window) > f.capacity {
		f.window = f.window[len(f.window)-f.capacity:]
	}
	if len(f.window) > 0 {
		f.pipSize = f.window[len(f.window)-1].PipSize
	}
	f.mu.Unlock()
	return nil
}

// Handle appends one streamed tick to the window, evicting the oldest
// beyond capacity.
func (f *tickFeed) Handle(tick domain.Tick) {
	f.mu.Lock()
	if f.symbol != "" && tick.Symbol != f.symbol {
		f.mu.Unlock()
		return
	}
	f.window = append(f.window, tick)
	if len(f.window) > f.capacity {
		f.window = f.window[1:]
	}
	if tick.PipSize > 0 {
		f.pipSize = tick.PipSize
	}
	ticks := append([]domain.Tick(nil), f.window...)
	f.mu.Unlock()

	if f.archive != nil {
		if err := f.archive.InsertTicks(context.Background(), []domain.Tick{tick}); err != nil {
			log.Printf("[ticks] archive write failed: %v", err)
		}
	}

	if f.onTick != nil {
		f.onTick(ticks, domain.TickDirection(ticks))
	}
}

// Window returns a copy of the current tick window.
func (f *tickFeed) Window() []domain.Tick {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Tick(nil), f.window...)
}

// Direction compares the last two quotes.
func (f *tickFeed) Direction() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.TickDirection(f.window)
}

// PipSize returns the pip size reported by the stream.
func (f *tickFeed) PipSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pipSize == 0 {
		return 2
	}
	return f.pipSize
}

// Symbol returns the active symbol.
func (f *tickFeed) Symbol() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.symbol
}
