// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading session.
type Metrics struct {
	// Feed metrics
	TicksReceived    prometheus.Counter
	CandlesReceived  prometheus.Counter
	BalanceUpdates   prometheus.Counter
	ProposalsUpdated prometheus.Counter

	// Purchase cycle metrics
	ProposalRounds   prometheus.Counter
	PurchasesTotal   *prometheus.CounterVec // by contract_type
	SettlementsTotal *prometheus.CounterVec // by outcome
	SessionProfit    prometheus.Gauge
	LifetimeProfit   prometheus.Gauge

	// Error metrics
	RetriesTotal prometheus.Counter
	ErrorsTotal  *prometheus.CounterVec // by kind
	LimitsHit    prometheus.Counter
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "binarybot"
	}

	return &Metrics{
		TicksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "ticks_received_total",
			Help:      "Total number of tick updates received",
		}),
		CandlesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "candles_received_total",
			Help:      "Total number of OHLC updates received",
		}),
		BalanceUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "balance_updates_total",
			Help:      "Total number of balance updates received",
		}),
		ProposalsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "proposals_updated_total",
			Help:      "Total number of proposal quotes received",
		}),
		ProposalRounds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "proposal_rounds_total",
			Help:      "Total number of proposal subscription rounds issued",
		}),
		PurchasesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "purchases_total",
			Help:      "Total number of contracts purchased",
		}, []string{"contract_type"}),
		SettlementsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "settlements_total",
			Help:      "Total number of contracts settled",
		}, []string{"outcome"}),
		SessionProfit: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "session_profit",
			Help:      "Running session profit",
		}),
		LifetimeProfit: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "lifetime_profit",
			Help:      "Running lifetime profit",
		}),
		RetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "retries_total",
			Help:      "Total number of transient-failure retries",
		}),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "errors_total",
			Help:      "Total number of surfaced errors",
		}, []string{"kind"}),
		LimitsHit: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "limits_hit_total",
			Help:      "Total number of session limit breaches",
		}),
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
