package memory

import (
	"context"
	"sync"

	"binarybot/internal/domain"
	"binarybot/internal/storage"
)

// TickArchive is an in-memory implementation of storage.TickArchive.
type TickArchive struct {
	mu      sync.RWMutex
	ticks   []domain.Tick
	candles []domain.Candle
}

// NewTickArchive creates a new in-memory tick archive.
func NewTickArchive() *TickArchive {
	return &TickArchive{}
}

// Compile-time interface check.
var _ storage.TickArchive = (*TickArchive)(nil)

// InsertTicks appends tick points.
func (a *TickArchive) InsertTicks(_ context.Context, ticks []domain.Tick) error {
	a.mu.Lock()
	a.ticks = append(a.ticks, ticks...)
	a.mu.Unlock()
	return nil
}

// InsertCandles appends candle points.
func (a *TickArchive) InsertCandles(_ context.Context, candles []domain.Candle) error {
	a.mu.Lock()
	a.candles = append(a.candles, candles...)
	a.mu.Unlock()
	return nil
}

// Ticks returns a copy of every archived tick.
func (a *TickArchive) Ticks() []domain.Tick {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]domain.Tick(nil), a.ticks...)
}

// Candles returns a copy of every archived candle.
func (a *TickArchive) Candles() []domain.Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]domain.Candle(nil), a.candles...)
}
