package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"spotarb/internal/model"
	"spotarb/internal/trade"
)

// ScanSource supplies the latest scan result.
type ScanSource interface {
	Latest() (model.ScanResult, bool)
}

// Executor runs a trade.
type Executor interface {
	Execute(ctx context.Context, req trade.Request) (trade.Result, error)
}

// AutoTrader executes the top-ranked opportunity of each new scan while
// enabled. A scan is traded at most once.
type AutoTrader struct {
	logger   *slog.Logger
	scans    ScanSource
	executor Executor

	mu         sync.Mutex
	enabled    bool
	lastTraded time.Time
}

// NewAutoTrader creates an AutoTrader, initially enabled or not.
func NewAutoTrader(logger *slog.Logger, scans ScanSource, executor Executor, enabled bool) *AutoTrader {
	return &AutoTrader{
		logger:   logger.With(slog.String("component", "autotrade")),
		scans:    scans,
		executor: executor,
		enabled:  enabled,
	}
}

func (a *AutoTrader) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

func (a *AutoTrader) SetEnabled(on bool) {
	a.mu.Lock()
	a.enabled = on
	a.mu.Unlock()
	a.logger.Info("auto-trade toggled", slog.Bool("enabled", on))
}

func (a *AutoTrader) Name() string {
	return "autotrade"
}

// Run trades the best opportunity of the latest scan, if it is new.
func (a *AutoTrader) Run(ctx context.Context) error {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return nil
	}
	scan, ok := a.scans.Latest()
	if !ok || len(scan.Opportunities) == 0 || !scan.ScannedAt.After(a.lastTraded) {
		a.mu.Unlock()
		return nil
	}
	a.lastTraded = scan.ScannedAt
	a.mu.Unlock()

	best := scan.Opportunities[0]
	res, err := a.executor.Execute(ctx, trade.Request{
		Symbol:    best.Symbol,
		BuyVenue:  best.BuyVenue,
		SellVenue: best.SellVenue,
		BuyPrice:  best.BuyPrice,
		SellPrice: best.SellPrice,
		Amount:    best.TradeAmount,
	})
	if err != nil {
		return fmt.Errorf("autotrade: %w", err)
	}
	a.logger.Info("auto trade finished",
		slog.String("trade_id", res.Trade.ID),
		slog.String("symbol", best.Symbol),
		slog.String("status", string(res.Trade.Status)),
	)
	return nil
}
