package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"spotarb/internal/model"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveScan(model.ScanResult{
		Opportunities:     []model.Opportunity{{Symbol: "X", ProfitPercent: decimal.RequireFromString("0.995")}},
		VenueAvailability: map[string]bool{"okx": true, "kucoin": false},
		VenueSymbolCounts: map[string]int{"okx": 310, "kucoin": 0},
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Opportunities))
	assert.InDelta(t, 0.995, testutil.ToFloat64(m.BestProfit), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VenueAvailable.WithLabelValues("okx")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.VenueAvailable.WithLabelValues("kucoin")))
	assert.Equal(t, 310.0, testutil.ToFloat64(m.VenueSymbols.WithLabelValues("okx")))

	m.ObserveTrade(model.Trade{
		Status:      model.TradeFailed,
		BuyExecuted: true,
		Errors:      model.LegErrors{Sell: &model.ErrorDescriptor{Kind: model.KindTimeout}},
	}, 3*time.Second)
	m.ObserveTrade(model.Trade{
		Status: model.TradeFailed,
		Errors: model.LegErrors{
			Buy:  &model.ErrorDescriptor{Kind: model.KindInsufficientBalance},
			Sell: &model.ErrorDescriptor{Kind: model.KindInsufficientBalance, Stage: model.StageGate},
		},
	}, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnhedgedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LegErrorsTotal.WithLabelValues("sell", "timeout")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LegErrorsTotal.WithLabelValues("sell", "insufficient_balance")))

	m.ObserveCall("okx", "place_order", 120*time.Millisecond, "")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `spotarb_venue_call_seconds_count{op="place_order",outcome="ok",venue="okx"} 1`)
}
