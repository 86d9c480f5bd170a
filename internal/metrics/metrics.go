// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the engine collectors. One instance per process,
// registered on the default registry.
type Metrics struct {
	Cycles        *prometheus.CounterVec
	CycleErrors   *prometheus.CounterVec
	Signals       *prometheus.CounterVec
	Rejections    *prometheus.CounterVec
	Orders        *prometheus.CounterVec
	OrderFailures *prometheus.CounterVec
	Confidence    *prometheus.HistogramVec
	OpenPositions prometheus.Gauge
	DailyPnL      prometheus.Gauge
	Halted        prometheus.Gauge
}

// New registers and returns the engine collectors.
func New() *Metrics {
	return &Metrics{
		Cycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "smc_cycles_total",
			Help: "Analysis cycles run per symbol.",
		}, []string{"symbol"}),
		CycleErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "smc_cycle_errors_total",
			Help: "Cycles skipped on data or instrument errors.",
		}, []string{"symbol"}),
		Signals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "smc_signals_total",
			Help: "Tradable signals produced, by quality grade.",
		}, []string{"symbol", "quality"}),
		Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "smc_rejections_total",
			Help: "Signals rejected, by gate.",
		}, []string{"symbol", "gate"}),
		Orders: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "smc_orders_total",
			Help: "Orders filled per symbol.",
		}, []string{"symbol"}),
		OrderFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "smc_order_failures_total",
			Help: "Order submissions that exhausted retries.",
		}, []string{"symbol", "kind"}),
		Confidence: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smc_signal_confidence",
			Help:    "Confidence of tradable signals.",
			Buckets: prometheus.LinearBuckets(40, 10, 7),
		}, []string{"symbol"}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "smc_open_positions",
			Help: "Positions currently under management.",
		}),
		DailyPnL: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "smc_daily_pnl",
			Help: "Realised profit and loss for the current UTC day.",
		}),
		Halted: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "smc_halted",
			Help: "Whether the kill switch is engaged (1) or not (0).",
		}),
	}
}
