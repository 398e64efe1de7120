package database

import (
	"context"
	"fmt"
	"sync"

	"spotarb/internal/model"
)

// MemoryRepository keeps trade history for the lifetime of the process.
type MemoryRepository struct {
	mu     sync.RWMutex
	trades []model.Trade
	index  map[string]int
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{index: make(map[string]int)}
}

func (r *MemoryRepository) Append(_ context.Context, trade model.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[trade.ID]; ok {
		return fmt.Errorf("database: append trade %s: %w", trade.ID, model.ErrDuplicateTrade)
	}
	r.index[trade.ID] = len(r.trades)
	r.trades = append(r.trades, trade)
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, trade model.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[trade.ID]
	if !ok {
		return fmt.Errorf("database: update trade %s: %w", trade.ID, model.ErrNotFound)
	}
	if r.trades[i].Status.Terminal() {
		return fmt.Errorf("database: update trade %s: %w", trade.ID, model.ErrTerminalTrade)
	}
	r.trades[i] = trade
	return nil
}

// List returns all trades, newest first.
func (r *MemoryRepository) List(_ context.Context) ([]model.Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Trade, 0, len(r.trades))
	for i := len(r.trades) - 1; i >= 0; i-- {
		out = append(out, r.trades[i])
	}
	return out, nil
}

var _ Repository = (*MemoryRepository)(nil)
