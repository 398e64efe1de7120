package exchange

import (
	"context"

	"github.com/shopspring/decimal"
	"spotarb/internal/model"
)

// ExchangeClient defines the standard interface for all exchange clients.
// Order and balance calls never return Go errors: every failure is reported
// as a classified descriptor inside the result.
type ExchangeClient interface {
	GetName() string
	PlaceMarketOrder(ctx context.Context, symbol string, side model.Side, amount decimal.Decimal) model.OrderResult
	AvailableBalance(ctx context.Context, asset string) model.BalanceResult
	// Tickers returns the last price of every USDT spot pair keyed by base asset.
	Tickers(ctx context.Context) (map[string]decimal.Decimal, error)
}
