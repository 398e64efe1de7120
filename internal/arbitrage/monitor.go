package arbitrage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"spotarb/internal/model"
)

// TickerSource is the part of a venue client the monitor needs.
type TickerSource interface {
	GetName() string
	Tickers(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Monitor polls both venues, scans their prices and keeps the latest result.
// It has no timer of its own; callers decide the cadence.
type Monitor struct {
	logger   *slog.Logger
	scanner  *Scanner
	venues   [2]TickerSource
	maxPrice decimal.Decimal
	now      func() time.Time

	mu          sync.RWMutex
	latest      model.ScanResult
	hasLatest   bool
	subscribers []func(model.ScanResult)
}

// NewMonitor creates a Monitor. Symbols priced above maxPrice are dropped
// before scanning; a zero maxPrice disables the ceiling.
func NewMonitor(logger *slog.Logger, scanner *Scanner, a, b TickerSource, maxPrice decimal.Decimal) *Monitor {
	return &Monitor{
		logger:   logger.With(slog.String("component", "monitor")),
		scanner:  scanner,
		venues:   [2]TickerSource{a, b},
		maxPrice: maxPrice,
		now:      time.Now,
	}
}

// Subscribe registers fn to receive every scan result. fn must not block.
func (m *Monitor) Subscribe(fn func(model.ScanResult)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Scan fetches both venues concurrently and runs one scan cycle.
func (m *Monitor) Scan(ctx context.Context) model.ScanResult {
	var quotes [2]VenueQuotes
	var g errgroup.Group
	for i, venue := range m.venues {
		g.Go(func() error {
			prices, err := venue.Tickers(ctx)
			quotes[i] = NewVenueQuotes(venue.GetName(), m.priceQuotes(venue.GetName(), prices), err)
			return nil
		})
	}
	_ = g.Wait()

	result := m.scanner.Scan(quotes[0], quotes[1])

	m.mu.Lock()
	m.latest = result
	m.hasLatest = true
	subs := append([]func(model.ScanResult){}, m.subscribers...)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(result)
	}

	m.logger.Info("scan cycle",
		slog.Int("opportunities", len(result.Opportunities)),
		slog.Any("availability", result.VenueAvailability),
	)
	return result
}

// Latest returns the most recent scan result, if any scan has run.
func (m *Monitor) Latest() (model.ScanResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.hasLatest
}

// Run scans once. It lets the monitor be driven by the scheduler.
func (m *Monitor) Run(ctx context.Context) error {
	m.Scan(ctx)
	return ctx.Err()
}

// Name identifies the monitor as a scheduled task.
func (m *Monitor) Name() string {
	return "scan"
}

// priceQuotes stamps one poll's tickers, dropping symbols above the ceiling.
func (m *Monitor) priceQuotes(venue string, prices map[string]decimal.Decimal) []model.PriceQuote {
	if prices == nil {
		return nil
	}
	observedAt := m.now()
	quotes := make([]model.PriceQuote, 0, len(prices))
	for symbol, p := range prices {
		if !m.maxPrice.IsZero() && p.GreaterThan(m.maxPrice) {
			continue
		}
		quotes = append(quotes, model.PriceQuote{Symbol: symbol, Venue: venue, Price: p, ObservedAt: observedAt})
	}
	return quotes
}
