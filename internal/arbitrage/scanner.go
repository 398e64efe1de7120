package arbitrage

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"spotarb/internal/config"
	"spotarb/internal/model"
)

var hundred = decimal.NewFromInt(100)

// VenueQuotes is one venue's contribution to a scan: its last prices keyed by
// base asset, or the error that prevented fetching them.
type VenueQuotes struct {
	Venue  string
	Prices map[string]decimal.Decimal
	Err    error
}

// NewVenueQuotes collects one poll's quotes from a venue into VenueQuotes.
// Quotes for other venues are ignored.
func NewVenueQuotes(venue string, quotes []model.PriceQuote, err error) VenueQuotes {
	q := VenueQuotes{Venue: venue, Err: err}
	if quotes == nil {
		return q
	}
	q.Prices = make(map[string]decimal.Decimal, len(quotes))
	for _, pq := range quotes {
		if pq.Venue == venue {
			q.Prices[pq.Symbol] = pq.Price
		}
	}
	return q
}

// Available reports whether the venue contributed any prices.
func (q VenueQuotes) Available() bool {
	return q.Err == nil && len(q.Prices) > 0
}

// Thresholds are the eligibility filters applied to every candidate.
type Thresholds struct {
	MinProfitPercent decimal.Decimal
	MaxProfitPercent decimal.Decimal
	MinPriceDiff     decimal.Decimal
	MinNetProfit     decimal.Decimal
	MaxResults       int
}

// Scanner turns two price maps into a ranked list of opportunities.
// It keeps no state between calls.
type Scanner struct {
	logger     *slog.Logger
	thresholds Thresholds
	sizing     *AmountPolicy
	feeRates   map[string]decimal.Decimal
	now        func() time.Time
}

// NewScanner creates a Scanner from the arbitrage and exchange settings.
func NewScanner(logger *slog.Logger, cfg *config.Config) (*Scanner, error) {
	sizing, err := NewAmountPolicy(cfg.Arbitrage.TradeAmountBands)
	if err != nil {
		return nil, fmt.Errorf("arbitrage: sizing: %w", err)
	}
	return &Scanner{
		logger: logger.With(slog.String("component", "scanner")),
		thresholds: Thresholds{
			MinProfitPercent: decimal.NewFromFloat(cfg.Arbitrage.MinProfitPercent),
			MaxProfitPercent: decimal.NewFromFloat(cfg.Arbitrage.MaxProfitPercent),
			MinPriceDiff:     decimal.NewFromFloat(cfg.Arbitrage.MinPriceDiff),
			MinNetProfit:     decimal.NewFromFloat(cfg.Arbitrage.MinNetProfit),
			MaxResults:       cfg.Arbitrage.MaxResults,
		},
		sizing:   sizing,
		feeRates: cfg.FeeRates(),
		now:      time.Now,
	}, nil
}

// Scan compares the symbols both venues quote and returns the eligible
// opportunities, best first. A venue that errored or returned nothing is
// reported as unavailable and the list is empty.
func (s *Scanner) Scan(a, b VenueQuotes) model.ScanResult {
	result := model.ScanResult{
		Opportunities: []model.Opportunity{},
		VenueAvailability: map[string]bool{
			a.Venue: a.Available(),
			b.Venue: b.Available(),
		},
		VenueSymbolCounts: map[string]int{
			a.Venue: len(a.Prices),
			b.Venue: len(b.Prices),
		},
		ScannedAt: s.now(),
	}
	for _, q := range []VenueQuotes{a, b} {
		if q.Err != nil {
			s.logger.Warn("venue unavailable", slog.String("venue", q.Venue), slog.Any("error", q.Err))
		}
	}
	if !a.Available() || !b.Available() {
		return result
	}

	var candidates, suspicious int
	for symbol, priceA := range a.Prices {
		priceB, ok := b.Prices[symbol]
		if !ok {
			continue
		}
		candidates++
		opp, ok := s.evaluate(symbol, a.Venue, priceA, b.Venue, priceB)
		if !ok {
			continue
		}
		if opp.ProfitPercent.GreaterThan(s.thresholds.MaxProfitPercent) {
			suspicious++
			continue
		}
		if s.eligible(opp) {
			result.Opportunities = append(result.Opportunities, opp)
		}
	}

	sort.Slice(result.Opportunities, func(i, j int) bool {
		oi, oj := result.Opportunities[i], result.Opportunities[j]
		if c := oi.ProfitPercent.Cmp(oj.ProfitPercent); c != 0 {
			return c > 0
		}
		return oi.Symbol < oj.Symbol
	})
	if len(result.Opportunities) > s.thresholds.MaxResults {
		result.Opportunities = result.Opportunities[:s.thresholds.MaxResults]
	}

	s.logger.Debug("scan complete",
		slog.Int("common_symbols", candidates),
		slog.Int("suspicious", suspicious),
		slog.Int("opportunities", len(result.Opportunities)),
	)
	return result
}

// evaluate builds the opportunity for one symbol, buying on whichever venue
// quotes lower.
func (s *Scanner) evaluate(symbol, venueA string, priceA decimal.Decimal, venueB string, priceB decimal.Decimal) (model.Opportunity, bool) {
	if !priceA.IsPositive() || !priceB.IsPositive() {
		return model.Opportunity{}, false
	}

	buyVenue, buyPrice, sellVenue, sellPrice := venueA, priceA, venueB, priceB
	if priceB.LessThan(priceA) {
		buyVenue, buyPrice, sellVenue, sellPrice = venueB, priceB, venueA, priceA
	}

	diff := sellPrice.Sub(buyPrice)
	avg := buyPrice.Add(sellPrice).Div(decimal.NewFromInt(2))
	amount := s.sizing.Amount(buyPrice)
	buyFee := buyPrice.Mul(amount).Mul(s.feeRates[buyVenue])
	sellFee := sellPrice.Mul(amount).Mul(s.feeRates[sellVenue])

	return model.Opportunity{
		Symbol:        symbol,
		BuyVenue:      buyVenue,
		SellVenue:     sellVenue,
		BuyPrice:      buyPrice,
		SellPrice:     sellPrice,
		PriceDiff:     diff,
		ProfitPercent: diff.Div(avg).Mul(hundred),
		TradeAmount:   amount,
		BuyFee:        buyFee,
		SellFee:       sellFee,
		NetProfit:     diff.Mul(amount).Sub(buyFee).Sub(sellFee),
	}, true
}

func (s *Scanner) eligible(o model.Opportunity) bool {
	t := s.thresholds
	return o.ProfitPercent.GreaterThanOrEqual(t.MinProfitPercent) &&
		o.ProfitPercent.LessThanOrEqual(t.MaxProfitPercent) &&
		o.PriceDiff.GreaterThanOrEqual(t.MinPriceDiff) &&
		o.NetProfit.GreaterThan(t.MinNetProfit)
}
