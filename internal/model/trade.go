package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus is the lifecycle state of a Trade.
type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeCompleted TradeStatus = "completed"
	TradeFailed    TradeStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s TradeStatus) Terminal() bool {
	return s == TradeCompleted || s == TradeFailed
}

// LegErrors holds the descriptor of each failed leg.
type LegErrors struct {
	Buy  *ErrorDescriptor `json:"buy,omitempty"`
	Sell *ErrorDescriptor `json:"sell,omitempty"`
}

// Trade is the audit record of one two-leg execution attempt.
type Trade struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	BuyVenue     string          `json:"buyVenue"`
	SellVenue    string          `json:"sellVenue"`
	BuyPrice     decimal.Decimal `json:"buyPrice"`
	SellPrice    decimal.Decimal `json:"sellPrice"`
	Amount       decimal.Decimal `json:"amount"`
	BuyFee       decimal.Decimal `json:"buyFee"`
	SellFee      decimal.Decimal `json:"sellFee"`
	NetProfit    decimal.Decimal `json:"netProfit"`
	Status       TradeStatus     `json:"status"`
	BuyExecuted  bool            `json:"buyExecuted"`
	SellExecuted bool            `json:"sellExecuted"`
	BuyOrderID   string          `json:"buyOrderId,omitempty"`
	SellOrderID  string          `json:"sellOrderId,omitempty"`
	Errors       LegErrors       `json:"errors"`
	CreatedAt    time.Time       `json:"createdAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

// Unhedged reports whether the bot bought but failed to sell, i.e. it now
// holds inventory it did not intend to keep.
func (t Trade) Unhedged() bool {
	return t.BuyExecuted && !t.SellExecuted
}

// Finish moves a pending trade to its terminal state. The status is derived
// from the leg flags: completed only if both legs executed.
func (t *Trade) Finish(at time.Time) error {
	if t.Status.Terminal() {
		return fmt.Errorf("finish trade %s: %w", t.ID, ErrTerminalTrade)
	}
	if t.BuyExecuted && t.SellExecuted {
		t.Status = TradeCompleted
	} else {
		t.Status = TradeFailed
	}
	t.CompletedAt = &at
	return nil
}
