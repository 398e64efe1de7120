package trade

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"spotarb/internal/config"
	"spotarb/internal/database"
	"spotarb/internal/model"
)

// amountPrecision is the number of decimals a shrunk order is floored to.
const amountPrecision = 6

// Venue is the part of a venue client the executor needs.
type Venue interface {
	GetName() string
	PlaceMarketOrder(ctx context.Context, symbol string, side model.Side, amount decimal.Decimal) model.OrderResult
	AvailableBalance(ctx context.Context, asset string) model.BalanceResult
}

// Alerter is told when a trade leaves the bot holding unhedged inventory.
type Alerter interface {
	AlertUnhedged(ctx context.Context, trade model.Trade) error
}

// Recorder observes finished trades.
type Recorder interface {
	ObserveTrade(trade model.Trade, elapsed time.Duration)
}

// Request asks for one buy-low/sell-high execution. ID is optional.
type Request struct {
	ID        string          `json:"tradeId,omitempty"`
	Symbol    string          `json:"symbol"`
	BuyVenue  string          `json:"buyVenue"`
	SellVenue string          `json:"sellVenue"`
	BuyPrice  decimal.Decimal `json:"buyPrice"`
	SellPrice decimal.Decimal `json:"sellPrice"`
	Amount    decimal.Decimal `json:"amount"`
}

// Result is the final trade plus the raw outcome of each call made for it.
type Result struct {
	Trade   model.Trade          `json:"trade"`
	Balance *model.BalanceResult `json:"balance,omitempty"`
	Buy     *model.OrderResult   `json:"buy,omitempty"`
	Sell    *model.OrderResult   `json:"sell,omitempty"`
}

// Settings holds the executor's sizing and timing limits.
type Settings struct {
	MinBalance         decimal.Decimal
	MaxBalanceFraction decimal.Decimal
	SettlementDelay    time.Duration
	FeeRates           map[string]decimal.Decimal
}

// SettingsFromConfig derives Settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MinBalance:         decimal.NewFromFloat(cfg.Execution.MinBalance),
		MaxBalanceFraction: decimal.NewFromFloat(cfg.Execution.MaxBalanceFraction),
		SettlementDelay:    cfg.Execution.SettlementDelay,
		FeeRates:           cfg.FeeRates(),
	}
}

// Option customizes an Executor.
type Option func(*Executor)

// WithLocker replaces the in-process venue lock.
func WithLocker(l Locker) Option {
	return func(e *Executor) { e.locker = l }
}

// WithAlerter registers the unhedged-inventory alert target.
func WithAlerter(a Alerter) Option {
	return func(e *Executor) { e.alerter = a }
}

// WithRecorder registers a trade metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// WithRefresh registers a hook run after every finished trade, typically a
// balance refresh.
func WithRefresh(fn func(ctx context.Context)) Option {
	return func(e *Executor) { e.refresh = fn }
}

// WithClock sets the time source for trade timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// Executor runs two-leg trades: check balance, buy, wait, sell. The sell is
// only sent after a confirmed buy, and no leg is ever retried.
type Executor struct {
	logger   *slog.Logger
	store    database.Repository
	venues   map[string]Venue
	settings Settings
	locker   Locker
	alerter  Alerter
	recorder Recorder
	refresh  func(ctx context.Context)
	now      func() time.Time
}

// NewExecutor creates an Executor for the given venues.
func NewExecutor(logger *slog.Logger, store database.Repository, venues []Venue, settings Settings, opts ...Option) *Executor {
	e := &Executor{
		logger:   logger.With(slog.String("component", "executor")),
		store:    store,
		venues:   make(map[string]Venue, len(venues)),
		settings: settings,
		locker:   NewLocalLocker(),
		now:      time.Now,
	}
	for _, v := range venues {
		e.venues[v.GetName()] = v
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one trade to a terminal state. Venue failures are recorded
// on the trade's legs; an error is returned only when the request itself is
// invalid or the pending record cannot be stored.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	buy, sell, err := e.validate(req)
	if err != nil {
		return Result{}, err
	}
	start := time.Now()

	t := model.Trade{
		ID:        req.ID,
		Symbol:    req.Symbol,
		BuyVenue:  req.BuyVenue,
		SellVenue: req.SellVenue,
		BuyPrice:  req.BuyPrice,
		SellPrice: req.SellPrice,
		Status:    model.TradePending,
		CreatedAt: e.now(),
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	e.size(&t, req.Amount)

	if err := e.store.Append(ctx, t); err != nil {
		return Result{}, fmt.Errorf("trade: record pending %s: %w", t.ID, err)
	}

	logger := e.logger.With(slog.String("trade_id", t.ID), slog.String("symbol", t.Symbol))
	logger.Info("trade started",
		slog.String("buy_venue", t.BuyVenue),
		slog.String("sell_venue", t.SellVenue),
		slog.String("amount", t.Amount.String()),
	)

	res := Result{}
	e.run(ctx, logger, &t, &res, buy, sell)

	if err := t.Finish(e.now()); err != nil {
		return Result{}, fmt.Errorf("trade: %w", err)
	}
	res.Trade = t

	// The outcome must be recorded even if the caller has gone away.
	if err := e.store.Update(context.WithoutCancel(ctx), t); err != nil {
		logger.Error("failed to record trade outcome", slog.Any("error", err))
	}

	e.afterTrade(ctx, logger, t, time.Since(start))
	return res, nil
}

// run performs the balance check and both legs, filling in t and res.
func (e *Executor) run(ctx context.Context, logger *slog.Logger, t *model.Trade, res *Result, buy, sell Venue) {
	unlock, err := e.locker.Lock(ctx, t.BuyVenue)
	if err != nil {
		e.failBuy(t, model.NewDescriptor(model.KindUnknown, t.BuyVenue, model.StagePrecondition,
			fmt.Sprintf("acquire venue lock: %v", err)))
		return
	}
	buyRes, ok := e.checkAndBuy(ctx, logger, t, res, buy)
	unlock()
	if !ok {
		return
	}
	t.BuyExecuted = true
	t.BuyOrderID = buyRes.OrderID
	logger.Info("buy leg filled", slog.String("order_id", buyRes.OrderID))

	// Bought inventory is always offered for sale, even once the caller is
	// gone. Only the venue call timeout bounds the sell.
	sellCtx := context.WithoutCancel(ctx)
	e.settle()

	sellRes := sell.PlaceMarketOrder(sellCtx, t.Symbol, model.SideSell, t.Amount)
	res.Sell = &sellRes
	if sellRes.Success && sellRes.OrderID != "" {
		t.SellExecuted = true
		t.SellOrderID = sellRes.OrderID
		logger.Info("sell leg filled", slog.String("order_id", sellRes.OrderID))
		return
	}
	t.Errors.Sell = legError(sellRes, t.SellVenue)
	logger.Error("sell leg failed", slog.Any("error", t.Errors.Sell))
}

// checkAndBuy verifies the buy venue's balance, shrinks the order to fit and
// sends the buy. It reports whether the buy was confirmed.
func (e *Executor) checkAndBuy(ctx context.Context, logger *slog.Logger, t *model.Trade, res *Result, buy Venue) (model.OrderResult, bool) {
	bal := buy.AvailableBalance(ctx, model.QuoteAsset)
	res.Balance = &bal
	if !bal.Success {
		e.failBuy(t, legBalanceError(bal, t.BuyVenue))
		logger.Warn("balance check failed", slog.Any("error", t.Errors.Buy))
		return model.OrderResult{}, false
	}
	if bal.Available.LessThan(e.settings.MinBalance) {
		e.failBuy(t, model.NewDescriptor(model.KindInsufficientBalance, t.BuyVenue, model.StagePrecondition,
			fmt.Sprintf("available %s %s is below the %s minimum", bal.Available, model.QuoteAsset, e.settings.MinBalance)))
		logger.Warn("balance below minimum", slog.String("available", bal.Available.String()))
		return model.OrderResult{}, false
	}

	limit := bal.Available.Mul(e.settings.MaxBalanceFraction)
	if t.Amount.Mul(t.BuyPrice).GreaterThan(limit) {
		shrunk := limit.Div(t.BuyPrice).RoundFloor(amountPrecision)
		if !shrunk.IsPositive() {
			e.failBuy(t, model.NewDescriptor(model.KindInsufficientBalance, t.BuyVenue, model.StagePrecondition,
				fmt.Sprintf("available %s %s cannot fund any amount at %s", bal.Available, model.QuoteAsset, t.BuyPrice)))
			return model.OrderResult{}, false
		}
		logger.Info("order shrunk to fit balance",
			slog.String("requested", t.Amount.String()),
			slog.String("amount", shrunk.String()),
		)
		e.size(t, shrunk)
	}

	buyRes := buy.PlaceMarketOrder(ctx, t.Symbol, model.SideBuy, t.Amount)
	res.Buy = &buyRes
	if buyRes.Success && buyRes.OrderID != "" {
		return buyRes, true
	}
	e.failBuy(t, legError(buyRes, t.BuyVenue))
	logger.Warn("buy leg failed", slog.Any("error", t.Errors.Buy))
	return buyRes, false
}

// failBuy records the buy error and the gated sell slot.
func (e *Executor) failBuy(t *model.Trade, desc *model.ErrorDescriptor) {
	t.Errors.Buy = desc
	t.Errors.Sell = &model.ErrorDescriptor{
		Kind:    desc.Kind,
		Venue:   t.SellVenue,
		Stage:   model.StageGate,
		Message: "not executed because buy failed: " + desc.Message,
	}
}

// settle waits for the bought asset to become sellable. Cancellation does
// not shorten the wait.
func (e *Executor) settle() {
	if e.settings.SettlementDelay > 0 {
		time.Sleep(e.settings.SettlementDelay)
	}
}

// size sets the amount and the fees and profit that follow from it.
func (e *Executor) size(t *model.Trade, amount decimal.Decimal) {
	t.Amount = amount
	t.BuyFee = t.BuyPrice.Mul(amount).Mul(e.settings.FeeRates[t.BuyVenue])
	t.SellFee = t.SellPrice.Mul(amount).Mul(e.settings.FeeRates[t.SellVenue])
	t.NetProfit = t.SellPrice.Sub(t.BuyPrice).Mul(amount).Sub(t.BuyFee).Sub(t.SellFee)
}

func (e *Executor) afterTrade(ctx context.Context, logger *slog.Logger, t model.Trade, elapsed time.Duration) {
	logger.Info("trade finished",
		slog.String("status", string(t.Status)),
		slog.Bool("buy_executed", t.BuyExecuted),
		slog.Bool("sell_executed", t.SellExecuted),
		slog.Duration("elapsed", elapsed),
	)
	if e.recorder != nil {
		e.recorder.ObserveTrade(t, elapsed)
	}
	if t.Unhedged() {
		logger.Error("unhedged inventory held",
			slog.String("venue", t.BuyVenue),
			slog.String("amount", t.Amount.String()),
		)
		if e.alerter != nil {
			if err := e.alerter.AlertUnhedged(context.WithoutCancel(ctx), t); err != nil {
				logger.Error("failed to send unhedged alert", slog.Any("error", err))
			}
		}
	}
	if e.refresh != nil {
		e.refresh(context.WithoutCancel(ctx))
	}
}

func (e *Executor) validate(req Request) (buy, sell Venue, err error) {
	switch {
	case req.Symbol == "":
		return nil, nil, fmt.Errorf("trade: %w: symbol is required", model.ErrInvalidTrade)
	case !req.Amount.IsPositive():
		return nil, nil, fmt.Errorf("trade: %w: amount must be positive", model.ErrInvalidTrade)
	case !req.BuyPrice.IsPositive() || !req.SellPrice.IsPositive():
		return nil, nil, fmt.Errorf("trade: %w: prices must be positive", model.ErrInvalidTrade)
	case req.BuyVenue == req.SellVenue:
		return nil, nil, fmt.Errorf("trade: %w: buy and sell venue must differ", model.ErrInvalidTrade)
	}
	buy, ok := e.venues[req.BuyVenue]
	if !ok {
		return nil, nil, fmt.Errorf("trade: %w: unknown buy venue %q", model.ErrInvalidTrade, req.BuyVenue)
	}
	sell, ok = e.venues[req.SellVenue]
	if !ok {
		return nil, nil, fmt.Errorf("trade: %w: unknown sell venue %q", model.ErrInvalidTrade, req.SellVenue)
	}
	return buy, sell, nil
}

// legError returns the order's descriptor, or one describing an
// unconfirmed success.
func legError(res model.OrderResult, venue string) *model.ErrorDescriptor {
	if res.Error != nil {
		return res.Error
	}
	return model.NewDescriptor(model.KindMalformedResponse, venue, model.StageMalformedSuccess, "order reported success without an order id")
}

func legBalanceError(res model.BalanceResult, venue string) *model.ErrorDescriptor {
	if res.Error != nil {
		return res.Error
	}
	return model.NewDescriptor(model.KindMalformedResponse, venue, model.StageMalformedSuccess, "balance query failed without detail")
}
