// Package observability provides Prometheus metrics for the quote and ranking components.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of a process. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Quote metrics
	QuoteRequests *prometheus.CounterVec
	QuoteRetries  prometheus.Counter

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec

	// Player metrics
	PlayerFetchFailures prometheus.Counter
	RankedPlayers       prometheus.Gauge
	RankingSnapshots    *prometheus.CounterVec
}

// NewMetrics registers all metrics on registerer under namespace.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "arena_market"
	}
	factory := promauto.With(registerer)

	return &Metrics{
		QuoteRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_requests_total",
			Help:      "Quote requests by outcome (ok, revert, network, generic).",
		}, []string{"outcome"}),
		QuoteRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_retries_total",
			Help:      "Automatic quote retries.",
		}),
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "Latency of node calls by method.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		PlayerFetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "player_fetch_failures_total",
			Help:      "Players dropped because their data could not be fetched.",
		}),
		RankedPlayers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ranked_players",
			Help:      "Players ranked by the last aggregation.",
		}),
		RankingSnapshots: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranking_snapshots_total",
			Help:      "Ranking snapshots by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveQuote(outcome string) {
	if m == nil {
		return
	}
	m.QuoteRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncQuoteRetry() {
	if m == nil {
		return
	}
	m.QuoteRetries.Inc()
}

func (m *Metrics) ObserveRPCCall(method string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *Metrics) IncPlayerFetchFailure() {
	if m == nil {
		return
	}
	m.PlayerFetchFailures.Inc()
}

func (m *Metrics) SetRankedPlayers(count int) {
	if m == nil {
		return
	}
	m.RankedPlayers.Set(float64(count))
}

func (m *Metrics) ObserveSnapshot(outcome string) {
	if m == nil {
		return
	}
	m.RankingSnapshots.WithLabelValues(outcome).Inc()
}
