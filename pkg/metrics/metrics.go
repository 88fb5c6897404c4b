package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "custody"

var (
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_provider_calls_total",
			Help:      "Chain provider calls by provider, operation and result",
		},
		[]string{"provider", "operation", "result"},
	)

	ProviderExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_provider_exhausted_total",
			Help:      "Chain reads where every provider failed",
		},
		[]string{"operation"},
	)

	DepositsCredited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_credited_total",
			Help:      "Deposits credited to the ledger",
		},
	)

	DepositsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_detected_total",
			Help:      "Token transfers observed by the deposit detector, by outcome",
		},
		[]string{"outcome"},
	)

	MonitorSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deposit_monitor_sessions",
			Help:      "Active deposit monitoring sessions",
		},
	)

	GasSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gas_sends_total",
			Help:      "Native coin top-ups sent from the master wallet",
		},
		[]string{"result"},
	)

	Sweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Token sweeps into the master wallet",
		},
		[]string{"result"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_cycle_duration_seconds",
			Help:      "Duration of a full scan, distribute and sweep cycle",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	MasterNativeBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "master_wallet_native_balance",
			Help:      "Native coin balance of the master wallet at the last check",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveHTTPRequest records one served request
func ObserveHTTPRequest(method, route string, status int, latency time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(latency.Seconds())
}

// ObserveProvider records one provider call
func ObserveProvider(provider, operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	ProviderCalls.WithLabelValues(provider, operation, result).Inc()
}

// Result maps an error to a result label
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
