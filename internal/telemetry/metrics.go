package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "todoapi",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// AuthAttemptsTotal counts bearer authentication attempts by outcome. The
// outcome is "success", "anonymous", or a failure reason.
var AuthAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "todoapi",
		Subsystem: "auth",
		Name:      "attempts_total",
		Help:      "Bearer authentication attempts by outcome.",
	},
	[]string{"outcome"},
)

// JWKSRefreshTotal counts key set refreshes by source (http, shared) and
// result (ok, error, invalid).
var JWKSRefreshTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "todoapi",
		Subsystem: "auth",
		Name:      "jwks_refresh_total",
		Help:      "JWKS refreshes by source and result.",
	},
	[]string{"source", "result"},
)

// IdentityReconcileTotal counts local identity reconciliations by action
// (matched, updated, linked, created, renamed, conflict).
var IdentityReconcileTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "todoapi",
		Subsystem: "auth",
		Name:      "identity_reconcile_total",
		Help:      "Local identity reconciliations by action.",
	},
	[]string{"action"},
)

// TodosMutatedTotal counts todo writes by operation.
var TodosMutatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "todoapi",
		Subsystem: "todo",
		Name:      "mutations_total",
		Help:      "Todo mutations by operation.",
	},
	[]string{"operation"},
)

// NewMetricsRegistry creates a Prometheus registry with default and custom collectors.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
		AuthAttemptsTotal,
		JWKSRefreshTotal,
		IdentityReconcileTotal,
		TodosMutatedTotal,
	)
	return reg
}
