package engine

import (
	"context"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"binarybot/internal/api"
)

// balanceFeed subscribes to account balance updates and keeps both the
// raw numeric balance and a display string.
type balanceFeed struct {
	client  api.Client
	retrier *Retrier
	printer *message.Printer

	onUpdate func(balance float64, display string)

	mu         sync.Mutex
	subscribed bool
	balance    float64
	currency   string
	display    string
}

func newBalanceFeed(client api.Client, retrier *Retrier) *balanceFeed {
	return &balanceFeed{
		client:  client,
		retrier: retrier,
		printer: message.NewPrinter(language.English),
	}
}

// Subscribe starts the balance stream. Idempotent: a second call is a
// no-op so session restarts cannot double-subscribe.
func (b *balanceFeed) Subscribe(ctx context.Context) error {
	b.mu.Lock()
	if b.subscribed {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	var initial *api.BalanceUpdate
	err := b.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		initial, err = b.client.Balance(ctx)
		return err
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.subscribed = true
	b.mu.Unlock()

	b.Handle(*initial)
	return nil
}

// Handle normalizes one balance update.
func (b *balanceFeed) Handle(update api.BalanceUpdate) {
	display := b.printer.Sprintf("%.2f %s", update.Balance, update.Currency)

	b.mu.Lock()
	b.balance = update.Balance
	b.currency = update.Currency
	b.display = display
	b.mu.Unlock()

	if b.onUpdate != nil {
		b.onUpdate(update.Balance, display)
	}
}

// Balance returns the raw numeric balance.
func (b *balanceFeed) Balance() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance
}

// Display returns the formatted balance string, e.g. "10,000.00 USD".
func (b *balanceFeed) Display() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.display
}

// Currency returns the account currency code.
func (b *balanceFeed) Currency() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currency
}

// reset clears the subscription flag after a stop so the next Init
// re-subscribes.
func (b *balanceFeed) reset() {
	b.mu.Lock()
	b.subscribed = false
	b.mu.Unlock()
}
