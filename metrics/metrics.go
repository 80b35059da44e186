package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridtrader_orders_submitted_total",
			Help: "Orders sent to the venue (by kind and side).",
		},
		[]string{"kind", "side"},
	)

	OrdersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridtrader_orders_rejected_total",
			Help: "Orders the venue refused (by side).",
		},
		[]string{"side"},
	)

	Fills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridtrader_fills_total",
			Help: "Confirmed fills (by side and whether they closed exposure).",
		},
		[]string{"side", "closing"},
	)

	OpenLayers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridtrader_open_layers",
			Help: "Layers currently open per side.",
		},
		[]string{"side"},
	)

	StopLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridtrader_stop_level",
			Help: "Current trailing stop price per side (0 when none).",
		},
		[]string{"side"},
	)

	Exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridtrader_exits_total",
			Help: "Close-all decisions (by side and reason).",
		},
		[]string{"side", "reason"},
	)

	ContainedFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridtrader_contained_failures_total",
			Help: "Evaluation failures recovered without changing state (by component).",
		},
		[]string{"component"},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridtrader_equity",
			Help: "Current equity reported by the venue.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersSubmitted,
		OrdersRejected,
		Fills,
		OpenLayers,
		StopLevel,
		Exits,
		ContainedFailures,
		EquityGauge,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
