// Package metrics exposes the Prometheus series the engine updates during
// operation, generalizing the teacher bot's metrics.go from a single spot
// strategy to the three-layer agent/coordinator/hot-loop shape.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_orders_total", Help: "Orders dispatched by the hot loop"},
		[]string{"symbol", "side_code"},
	)

	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_decisions_total", Help: "Hot loop tick outcomes"},
		[]string{"symbol", "outcome"}, // outcome: dispatched|fallback_tick|skipped_stale_advisory|skipped_local_confirmation|skipped_confidence|skipped_cooldown|skipped_hold|skipped_noop|skipped_risk|skipped_order_error
	)

	Equity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "engine_equity_usd", Help: "Equity in USD per symbol's risk engine"},
		[]string{"symbol"},
	)

	BreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_breaker_trips_total", Help: "Circuit breaker trips"},
		[]string{"symbol", "reason"},
	)

	AgentCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "engine_agent_cycle_seconds", Help: "IndependentAgent cycle duration"},
		[]string{"agent", "role"},
	)

	AgentErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_agent_errors_total", Help: "IndependentAgent cycles that degraded to neutral"},
		[]string{"agent", "role"},
	)

	AdvisoryConfidence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "engine_advisory_confidence", Help: "Latest advisory confidence per symbol"},
		[]string{"symbol"},
	)

	FeedReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_feed_reconnects_total", Help: "MarketDataFeed reconnect attempts"},
		[]string{"symbol"},
	)

	FeedDegraded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "engine_feed_degraded", Help: "1 while a MarketDataFeed is in the degraded state"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		Orders, Decisions, Equity, BreakerTrips,
		AgentCycleDuration, AgentErrors, AdvisoryConfidence,
		FeedReconnects, FeedDegraded,
	)
}
