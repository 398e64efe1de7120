package arbitrage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"spotarb/internal/model"
)

type MockTickerSource struct {
	mock.Mock
	name string
}

func (m *MockTickerSource) GetName() string {
	return m.name
}

func (m *MockTickerSource) Tickers(ctx context.Context) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx)
	prices, _ := args.Get(0).(map[string]decimal.Decimal)
	return prices, args.Error(1)
}

func TestMonitor_Scan(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	t.Run("applies price ceiling and publishes", func(t *testing.T) {
		okx := &MockTickerSource{name: "okx"}
		kucoin := &MockTickerSource{name: "kucoin"}
		okx.On("Tickers", mock.Anything).Return(map[string]decimal.Decimal{
			"X":   d("1.000"),
			"BTC": d("60000"),
		}, nil).Once()
		kucoin.On("Tickers", mock.Anything).Return(map[string]decimal.Decimal{
			"X":   d("1.010"),
			"BTC": d("61000"),
		}, nil).Once()

		monitor := NewMonitor(logger, newTestScanner(t), okx, kucoin, d("10"))

		var published []model.ScanResult
		monitor.Subscribe(func(r model.ScanResult) { published = append(published, r) })

		_, ok := monitor.Latest()
		assert.False(t, ok)

		result := monitor.Scan(context.Background())
		require.Len(t, result.Opportunities, 1)
		assert.Equal(t, "X", result.Opportunities[0].Symbol)
		assert.Equal(t, 1, result.VenueSymbolCounts["okx"])

		latest, ok := monitor.Latest()
		require.True(t, ok)
		assert.Equal(t, result.Opportunities, latest.Opportunities)
		require.Len(t, published, 1)

		okx.AssertExpectations(t)
		kucoin.AssertExpectations(t)
	})

	t.Run("venue failure reported as unavailable", func(t *testing.T) {
		okx := &MockTickerSource{name: "okx"}
		kucoin := &MockTickerSource{name: "kucoin"}
		okx.On("Tickers", mock.Anything).Return(map[string]decimal.Decimal{"X": d("1")}, nil)
		kucoin.On("Tickers", mock.Anything).Return(nil, errors.New("kucoin network_error: dial tcp: refused"))

		monitor := NewMonitor(logger, newTestScanner(t), okx, kucoin, decimal.Zero)
		result := monitor.Scan(context.Background())

		assert.Empty(t, result.Opportunities)
		assert.Equal(t, map[string]bool{"okx": true, "kucoin": false}, result.VenueAvailability)
	})
}

func TestMonitor_PriceQuotes(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	monitor := NewMonitor(logger, newTestScanner(t), &MockTickerSource{name: "okx"}, &MockTickerSource{name: "kucoin"}, d("10"))
	monitor.now = func() time.Time { return at }

	quotes := monitor.priceQuotes("okx", map[string]decimal.Decimal{"X": d("1.5"), "BTC": d("60000")})
	require.Len(t, quotes, 1)
	assert.Equal(t, "X", quotes[0].Symbol)
	assert.Equal(t, "okx", quotes[0].Venue)
	assert.True(t, d("1.5").Equal(quotes[0].Price))
	assert.Equal(t, at, quotes[0].ObservedAt)

	assert.Nil(t, monitor.priceQuotes("okx", nil))
}
