package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteAsset is the only quote currency the bot trades against.
const QuoteAsset = "USDT"

// Side is the direction of a market order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known order side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// PriceQuote is a single last-traded price observed on a venue.
type PriceQuote struct {
	Symbol     string          `json:"symbol"`
	Venue      string          `json:"venue"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observedAt"`
}

// Opportunity is a fee-aware buy-low/sell-high candidate for one symbol.
// BuyPrice is never above SellPrice.
type Opportunity struct {
	Symbol        string          `json:"symbol"`
	BuyVenue      string          `json:"buyVenue"`
	SellVenue     string          `json:"sellVenue"`
	BuyPrice      decimal.Decimal `json:"buyPrice"`
	SellPrice     decimal.Decimal `json:"sellPrice"`
	PriceDiff     decimal.Decimal `json:"priceDiff"`
	ProfitPercent decimal.Decimal `json:"profitPercent"`
	TradeAmount   decimal.Decimal `json:"tradeAmount"`
	BuyFee        decimal.Decimal `json:"buyFee"`
	SellFee       decimal.Decimal `json:"sellFee"`
	NetProfit     decimal.Decimal `json:"netProfit"`
}

// ScanResult is the output of one scan cycle. It replaces the previous
// cycle's result wholesale.
type ScanResult struct {
	Opportunities     []Opportunity   `json:"opportunities"`
	VenueAvailability map[string]bool `json:"venueAvailability"`
	VenueSymbolCounts map[string]int  `json:"venueSymbolCounts"`
	ScannedAt         time.Time       `json:"scannedAt"`
}

// Find returns the opportunity for symbol, if the scan produced one.
func (r ScanResult) Find(symbol string) (Opportunity, bool) {
	for _, o := range r.Opportunities {
		if o.Symbol == symbol {
			return o, true
		}
	}
	return Opportunity{}, false
}

// Balance is the available quote balance reported by a venue.
type Balance struct {
	Venue     string          `json:"venue"`
	Asset     string          `json:"asset"`
	Available decimal.Decimal `json:"available"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// OrderResult is the normalized outcome of one market order call.
type OrderResult struct {
	Success     bool             `json:"success"`
	OrderID     string           `json:"orderId,omitempty"`
	Error       *ErrorDescriptor `json:"error,omitempty"`
	RawResponse string           `json:"rawResponse,omitempty"`
}

// BalanceResult is the normalized outcome of one balance query.
type BalanceResult struct {
	Success     bool             `json:"success"`
	Available   decimal.Decimal  `json:"available"`
	Error       *ErrorDescriptor `json:"error,omitempty"`
	RawResponse string           `json:"rawResponse,omitempty"`
}
