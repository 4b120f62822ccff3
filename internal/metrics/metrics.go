// Package metrics exposes the opportunity loop's Prometheus instrumentation.
// This is pure observability, not the terminal banners/statistics
// formatting the spec excludes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OpportunitiesDetected counts detected opportunities by outcome: detected
// (passed to the simulator), then simulator-confirmed, reverted, or errored.
var OpportunitiesDetected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "clarb",
		Subsystem: "engine",
		Name:      "opportunities_total",
		Help:      "Arbitrage opportunities by detection outcome",
	},
	[]string{"outcome"}, // detected, simulated_success, simulated_revert, simulated_error
)

// SubmissionsTotal counts transaction submissions by result.
var SubmissionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "clarb",
		Subsystem: "engine",
		Name:      "submissions_total",
		Help:      "Arbitrage transaction submissions by result",
	},
	[]string{"result"}, // success, failed
)

// ExpectedProfitUSD observes the expected profit of every confirmed
// opportunity, submitted or not.
var ExpectedProfitUSD = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "clarb",
		Subsystem: "engine",
		Name:      "expected_profit_usd",
		Help:      "Expected profit in USD of detected opportunities",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100},
	},
)

// CircuitBreakerTrips counts how many times the consecutive-failure breaker
// has tripped.
var CircuitBreakerTrips = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "clarb",
		Subsystem: "engine",
		Name:      "circuit_breaker_trips_total",
		Help:      "Number of times the circuit breaker has tripped",
	},
)

// SyncLatency observes how long each synchronizer pass took, by kind.
var SyncLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "clarb",
		Subsystem: "sync",
		Name:      "latency_ms",
		Help:      "Synchronizer pass latency in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	},
	[]string{"kind"}, // block, bitmap
)

// PoolStaleness tracks the age (in seconds) of each pool's last successful
// update, sampled once per block.
var PoolStaleness = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "clarb",
		Subsystem: "sync",
		Name:      "pool_staleness_seconds",
		Help:      "Seconds since a pool's state was last refreshed",
	},
	[]string{"pool"},
)

// ReconnectsTotal counts how many times the streaming subscription has been
// rebuilt after a drop.
var ReconnectsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "clarb",
		Subsystem: "engine",
		Name:      "reconnects_total",
		Help:      "Number of times the block-header subscription was rebuilt",
	},
)

// RecordOpportunity increments OpportunitiesDetected and, for confirmed
// opportunities, observes their expected profit.
func RecordOpportunity(outcome string, expectedProfitUSD float64) {
	OpportunitiesDetected.WithLabelValues(outcome).Inc()
	if outcome == "simulated_success" {
		ExpectedProfitUSD.Observe(expectedProfitUSD)
	}
}

// RecordSubmission increments SubmissionsTotal for the given result.
func RecordSubmission(result string) {
	SubmissionsTotal.WithLabelValues(result).Inc()
}

// RecordSyncLatency observes a synchronizer pass's duration in milliseconds.
func RecordSyncLatency(kind string, latencyMs float64) {
	SyncLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordCircuitBreakerTrip increments CircuitBreakerTrips.
func RecordCircuitBreakerTrip() {
	CircuitBreakerTrips.Inc()
}

// SetPoolStaleness reports how stale a pool's state currently is.
func SetPoolStaleness(poolName string, seconds float64) {
	PoolStaleness.WithLabelValues(poolName).Set(seconds)
}

// RecordReconnect increments ReconnectsTotal.
func RecordReconnect() {
	ReconnectsTotal.Inc()
}
