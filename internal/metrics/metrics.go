// Package metrics registers the Prometheus collectors the engine exposes
// on GET /metrics, grounded on the teacher's internal/metrics metrics
// module pattern of one package-level registry plus named counters and
// histograms per concern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every collector the engine exports.
type Registry struct {
	reg *prometheus.Registry

	SignalsReceived      *prometheus.CounterVec
	SignalsRejected      *prometheus.CounterVec
	AggregationDecisions *prometheus.CounterVec
	OrdersPlaced         *prometheus.CounterVec
	OrdersFilled         *prometheus.CounterVec
	VenueAPIFailures     *prometheus.CounterVec
	RiskRejections       *prometheus.CounterVec
	LockWaitSeconds      prometheus.Histogram
	LockAcquireFailures  prometheus.Counter
	StrategyUnprotected  prometheus.Counter
	OCOAnomalies         prometheus.Counter
	OCOPairsActive       prometheus.Gauge
	DispatchLatency      prometheus.Histogram
}

// New builds and registers every collector against a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		SignalsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeengine_signals_received_total",
			Help: "Signals accepted into the aggregator, by symbol.",
		}, []string{"symbol"}),
		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeengine_signals_rejected_total",
			Help: "Signals rejected before or during aggregation, by reason.",
		}, []string{"reason"}),
		AggregationDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeengine_aggregation_decisions_total",
			Help: "Aggregator window decisions, by outcome.",
		}, []string{"outcome"}),
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeengine_orders_placed_total",
			Help: "Orders placed with the venue, by symbol and side.",
		}, []string{"symbol", "side"}),
		OrdersFilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeengine_orders_filled_total",
			Help: "Orders that reached a filled state, by symbol.",
		}, []string{"symbol"}),
		VenueAPIFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeengine_venue_api_failures_total",
			Help: "Venue adapter call failures, by code.",
		}, []string{"code"}),
		RiskRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeengine_risk_rejections_total",
			Help: "Signals rejected by the risk engine, by reason.",
		}, []string{"reason"}),
		LockWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradeengine_lock_wait_seconds",
			Help:    "Time spent waiting to acquire the dispatch lock.",
			Buckets: prometheus.DefBuckets,
		}),
		LockAcquireFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeengine_lock_acquire_failures_total",
			Help: "Dispatch lock acquisitions that failed or timed out.",
		}),
		StrategyUnprotected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeengine_strategy_unprotected_total",
			Help: "Strategy positions left without OCO protection after a placement failure.",
		}),
		OCOAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeengine_oco_anomaly_total",
			Help: "OCO pairs where both legs were observed filled in the same poll.",
		}),
		OCOPairsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradeengine_oco_pairs_active",
			Help: "Currently active OCO pairs across all symbols.",
		}),
		DispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradeengine_dispatch_latency_seconds",
			Help:    "End-to-end dispatch pipeline latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		r.SignalsReceived, r.SignalsRejected, r.AggregationDecisions,
		r.OrdersPlaced, r.OrdersFilled, r.VenueAPIFailures, r.RiskRejections,
		r.LockWaitSeconds, r.LockAcquireFailures, r.StrategyUnprotected,
		r.OCOAnomalies, r.OCOPairsActive, r.DispatchLatency,
	)
	return r
}

// Registerer exposes the underlying registry for the HTTP handler.
func (r *Registry) Registerer() *prometheus.Registry { return r.reg }
