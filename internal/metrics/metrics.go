package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"spotarb/internal/model"
)

// Metrics contains all Prometheus metrics for the bot.
type Metrics struct {
	Opportunities  prometheus.Gauge
	BestProfit     prometheus.Gauge
	VenueAvailable *prometheus.GaugeVec
	VenueSymbols   *prometheus.GaugeVec
	VenueCalls     *prometheus.HistogramVec
	TradesTotal    *prometheus.CounterVec
	TradeDuration  prometheus.Histogram
	UnhedgedTotal  prometheus.Counter
	LegErrorsTotal *prometheus.CounterVec
	ScansTotal     prometheus.Counter
	registry       prometheus.Gatherer
}

// New creates all metrics and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Opportunities: f.NewGauge(prometheus.GaugeOpts{
			Name: "spotarb_opportunities",
			Help: "Number of eligible opportunities in the latest scan",
		}),
		BestProfit: f.NewGauge(prometheus.GaugeOpts{
			Name: "spotarb_best_profit_percent",
			Help: "Profit percent of the top-ranked opportunity in the latest scan",
		}),
		VenueAvailable: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spotarb_venue_available",
			Help: "1 if the venue contributed prices to the latest scan",
		}, []string{"venue"}),
		VenueSymbols: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spotarb_venue_symbols",
			Help: "Symbols quoted by the venue in the latest scan",
		}, []string{"venue"}),
		VenueCalls: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spotarb_venue_call_seconds",
			Help:    "Duration of venue REST calls by outcome",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"venue", "op", "outcome"}),
		TradesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spotarb_trades_total",
			Help: "Finished trades by status",
		}, []string{"status"}),
		TradeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "spotarb_trade_seconds",
			Help:    "Wall time from pending to terminal",
			Buckets: []float64{0.5, 1, 2, 3, 5, 10, 20, 40},
		}),
		UnhedgedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "spotarb_unhedged_trades_total",
			Help: "Trades that bought but failed to sell",
		}),
		LegErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spotarb_leg_errors_total",
			Help: "Failed trade legs by side and error kind",
		}, []string{"side", "kind"}),
		ScansTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "spotarb_scans_total",
			Help: "Completed scan cycles",
		}),
		registry: reg,
	}
}

// ObserveScan records the shape of a scan result.
func (m *Metrics) ObserveScan(r model.ScanResult) {
	m.ScansTotal.Inc()
	m.Opportunities.Set(float64(len(r.Opportunities)))
	if len(r.Opportunities) > 0 {
		m.BestProfit.Set(r.Opportunities[0].ProfitPercent.InexactFloat64())
	} else {
		m.BestProfit.Set(0)
	}
	for venue, ok := range r.VenueAvailability {
		v := 0.0
		if ok {
			v = 1
		}
		m.VenueAvailable.WithLabelValues(venue).Set(v)
	}
	for venue, n := range r.VenueSymbolCounts {
		m.VenueSymbols.WithLabelValues(venue).Set(float64(n))
	}
}

// ObserveCall records one venue call. An empty kind means success.
func (m *Metrics) ObserveCall(venue, op string, elapsed time.Duration, kind model.ErrorKind) {
	outcome := string(kind)
	if outcome == "" {
		outcome = "ok"
	}
	m.VenueCalls.WithLabelValues(venue, op, outcome).Observe(elapsed.Seconds())
}

// ObserveTrade records a finished trade.
func (m *Metrics) ObserveTrade(t model.Trade, elapsed time.Duration) {
	m.TradesTotal.WithLabelValues(string(t.Status)).Inc()
	m.TradeDuration.Observe(elapsed.Seconds())
	if t.Unhedged() {
		m.UnhedgedTotal.Inc()
	}
	if t.Errors.Buy != nil {
		m.LegErrorsTotal.WithLabelValues("buy", string(t.Errors.Buy.Kind)).Inc()
	}
	// a gated sell is a consequence of the buy, not a sell failure
	if t.Errors.Sell != nil && t.Errors.Sell.Stage != model.StageGate {
		m.LegErrorsTotal.WithLabelValues("sell", string(t.Errors.Sell.Kind)).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
