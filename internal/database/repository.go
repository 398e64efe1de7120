package database

import (
	"context"

	"spotarb/internal/model"
)

// Repository defines the standard interface for trade history storage.
// Append records a new pending trade; Update replaces a pending trade with
// its terminal state and refuses to touch terminal records.
type Repository interface {
	Append(ctx context.Context, trade model.Trade) error
	Update(ctx context.Context, trade model.Trade) error
	List(ctx context.Context) ([]model.Trade, error)
}
