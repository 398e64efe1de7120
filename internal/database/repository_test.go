package database

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"spotarb/internal/model"
)

var (
	pool *pgxpool.Pool
)

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

// run starts PostgreSQL for the integration tests. Without a container
// runtime the postgres tests skip and the rest still run.
func run(m *testing.M) int {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpassword",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Printf("could not start postgres container, skipping postgres tests: %s", err)
		return m.Run()
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("could not stop postgres container: %s", err)
		}
	}()

	host, err := pgContainer.Host(ctx)
	if err != nil {
		log.Fatalf("could not get container host: %s", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("could not get mapped port: %s", err)
	}

	connStr := "postgres://testuser:testpassword@" + host + ":" + port.Port() + "/testdb?sslmode=disable"

	// the port can accept connections before postgres finishes its init restart
	var repo *PostgresRepository
	for i := 0; i < 20; i++ {
		if repo, err = NewPostgresRepository(ctx, connStr); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		log.Fatalf("could not connect to database: %s", err)
	}
	defer repo.Close()
	pool = repo.Pool

	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("could not create table: %s", err)
	}

	return m.Run()
}

func sampleTrade(id string, createdAt time.Time) model.Trade {
	return model.Trade{
		ID:        id,
		Symbol:    "XRP",
		BuyVenue:  "okx",
		SellVenue: "kucoin",
		BuyPrice:  decimal.RequireFromString("0.5123"),
		SellPrice: decimal.RequireFromString("0.5178"),
		Amount:    decimal.NewFromInt(20),
		BuyFee:    decimal.RequireFromString("0.010246"),
		SellFee:   decimal.RequireFromString("0.010356"),
		NetProfit: decimal.RequireFromString("0.089398"),
		Status:    model.TradePending,
		CreatedAt: createdAt.UTC().Truncate(time.Microsecond),
	}
}

func TestPostgresRepository_Lifecycle(t *testing.T) {
	if pool == nil {
		t.Skip("postgres container not available")
	}
	ctx := context.Background()
	repo := &PostgresRepository{Pool: pool}

	trade := sampleTrade("pg-1", time.Now())
	require.NoError(t, repo.Append(ctx, trade))
	assert.ErrorIs(t, repo.Append(ctx, trade), model.ErrDuplicateTrade)

	trade.BuyExecuted = true
	trade.BuyOrderID = "312269865356374016"
	trade.Errors.Sell = &model.ErrorDescriptor{Kind: model.KindTimeout, Venue: "kucoin", Stage: model.StageTransport, Message: "no response within 10s"}
	require.NoError(t, trade.Finish(time.Now().UTC().Truncate(time.Microsecond)))
	require.NoError(t, repo.Update(ctx, trade))

	trades, err := repo.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, trades)

	var got model.Trade
	for _, tr := range trades {
		if tr.ID == trade.ID {
			got = tr
		}
	}
	assert.Equal(t, model.TradeFailed, got.Status)
	assert.True(t, got.BuyExecuted)
	assert.False(t, got.SellExecuted)
	assert.True(t, got.Unhedged())
	assert.True(t, trade.BuyPrice.Equal(got.BuyPrice))
	assert.True(t, trade.NetProfit.Equal(got.NetProfit))
	require.NotNil(t, got.Errors.Sell)
	assert.Equal(t, model.KindTimeout, got.Errors.Sell.Kind)
	assert.Nil(t, got.Errors.Buy)
	require.NotNil(t, got.CompletedAt)

	t.Run("terminal trade is immutable", func(t *testing.T) {
		err := repo.Update(ctx, trade)
		assert.ErrorIs(t, err, model.ErrTerminalTrade)
	})

	t.Run("unknown trade", func(t *testing.T) {
		err := repo.Update(ctx, sampleTrade("pg-missing", time.Now()))
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}
