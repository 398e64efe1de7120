package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"spotarb/internal/model"
)

// uniqueViolation is the SQLSTATE postgres reports for a duplicate key.
const uniqueViolation = "23505"

const createTradesSQL = `
CREATE TABLE IF NOT EXISTS trades (
	id            TEXT PRIMARY KEY,
	symbol        VARCHAR(20) NOT NULL,
	buy_venue     VARCHAR(20) NOT NULL,
	sell_venue    VARCHAR(20) NOT NULL,
	buy_price     NUMERIC(30, 12) NOT NULL,
	sell_price    NUMERIC(30, 12) NOT NULL,
	amount        NUMERIC(30, 12) NOT NULL,
	buy_fee       NUMERIC(30, 12) NOT NULL,
	sell_fee      NUMERIC(30, 12) NOT NULL,
	net_profit    NUMERIC(30, 12) NOT NULL,
	status        VARCHAR(16) NOT NULL,
	buy_executed  BOOLEAN NOT NULL DEFAULT FALSE,
	sell_executed BOOLEAN NOT NULL DEFAULT FALSE,
	buy_order_id  TEXT NOT NULL DEFAULT '',
	sell_order_id TEXT NOT NULL DEFAULT '',
	errors        JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS trades_created_at_idx ON trades (created_at DESC);`

// PostgresRepository stores trade history in PostgreSQL.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository connects to dsn and verifies the connection.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

// Migrate creates the trades table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createTradesSQL); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() {
	r.Pool.Close()
}

func (r *PostgresRepository) Append(ctx context.Context, t model.Trade) error {
	errs, err := json.Marshal(t.Errors)
	if err != nil {
		return fmt.Errorf("database: append trade %s: encode errors: %w", t.ID, err)
	}

	_, err = r.Pool.Exec(ctx, `
		INSERT INTO trades (id, symbol, buy_venue, sell_venue, buy_price, sell_price, amount,
			buy_fee, sell_fee, net_profit, status, buy_executed, sell_executed,
			buy_order_id, sell_order_id, errors, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric,
			$10::numeric, $11, $12, $13, $14, $15, $16::jsonb, $17, $18)`,
		t.ID, t.Symbol, t.BuyVenue, t.SellVenue,
		t.BuyPrice.String(), t.SellPrice.String(), t.Amount.String(),
		t.BuyFee.String(), t.SellFee.String(), t.NetProfit.String(),
		string(t.Status), t.BuyExecuted, t.SellExecuted, t.BuyOrderID, t.SellOrderID,
		string(errs), t.CreatedAt, t.CompletedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("database: append trade %s: %w", t.ID, model.ErrDuplicateTrade)
	}
	if err != nil {
		return fmt.Errorf("database: append trade %s: %w", t.ID, err)
	}
	return nil
}

// Update writes the final state of a trade. Only pending rows are updated.
func (r *PostgresRepository) Update(ctx context.Context, t model.Trade) error {
	errs, err := json.Marshal(t.Errors)
	if err != nil {
		return fmt.Errorf("database: update trade %s: encode errors: %w", t.ID, err)
	}

	tag, err := r.Pool.Exec(ctx, `
		UPDATE trades SET amount = $2::numeric, buy_fee = $3::numeric, sell_fee = $4::numeric,
			net_profit = $5::numeric, status = $6, buy_executed = $7, sell_executed = $8,
			buy_order_id = $9, sell_order_id = $10, errors = $11::jsonb, completed_at = $12
		WHERE id = $1 AND status = $13`,
		t.ID, t.Amount.String(), t.BuyFee.String(), t.SellFee.String(), t.NetProfit.String(),
		string(t.Status), t.BuyExecuted, t.SellExecuted, t.BuyOrderID, t.SellOrderID,
		string(errs), t.CompletedAt, string(model.TradePending),
	)
	if err != nil {
		return fmt.Errorf("database: update trade %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trades WHERE id = $1)`, t.ID).Scan(&exists); err != nil {
		return fmt.Errorf("database: update trade %s: %w", t.ID, err)
	}
	if !exists {
		return fmt.Errorf("database: update trade %s: %w", t.ID, model.ErrNotFound)
	}
	return fmt.Errorf("database: update trade %s: %w", t.ID, model.ErrTerminalTrade)
}

// List returns all trades, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]model.Trade, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT id, symbol, buy_venue, sell_venue, buy_price::text, sell_price::text, amount::text,
			buy_fee::text, sell_fee::text, net_profit::text, status, buy_executed, sell_executed,
			buy_order_id, sell_order_id, errors, created_at, completed_at
		FROM trades ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("database: list trades: %w", err)
	}

	trades, err := pgx.CollectRows(rows, scanTrade)
	if err != nil {
		return nil, fmt.Errorf("database: list trades: %w", err)
	}
	return trades, nil
}

func scanTrade(row pgx.CollectableRow) (model.Trade, error) {
	var (
		t                                                 model.Trade
		buyPrice, sellPrice, amount, buyFee, sellFee, net string
		status                                            string
		errs                                              []byte
		completedAt                                       *time.Time
	)
	err := row.Scan(&t.ID, &t.Symbol, &t.BuyVenue, &t.SellVenue, &buyPrice, &sellPrice, &amount,
		&buyFee, &sellFee, &net, &status, &t.BuyExecuted, &t.SellExecuted,
		&t.BuyOrderID, &t.SellOrderID, &errs, &t.CreatedAt, &completedAt)
	if err != nil {
		return t, err
	}

	t.Status = model.TradeStatus(status)
	t.CompletedAt = completedAt
	if err := json.Unmarshal(errs, &t.Errors); err != nil {
		return t, fmt.Errorf("decode errors of trade %s: %w", t.ID, err)
	}

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&t.BuyPrice, buyPrice}, {&t.SellPrice, sellPrice}, {&t.Amount, amount},
		{&t.BuyFee, buyFee}, {&t.SellFee, sellFee}, {&t.NetProfit, net},
	} {
		v, err := decimal.NewFromString(f.src)
		if err != nil {
			return t, fmt.Errorf("decode trade %s: %w", t.ID, err)
		}
		*f.dst = v
	}
	return t, nil
}

var _ Repository = (*PostgresRepository)(nil)
