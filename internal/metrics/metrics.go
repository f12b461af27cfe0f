// Package metrics exposes Prometheus collectors for the fetch core.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchAttemptsTotal    *prometheus.CounterVec
	cacheLookupsTotal     *prometheus.CounterVec
	rateLimitDelaySeconds *prometheus.HistogramVec
	authFlowsTotal        *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to
// call multiple times; every record helper calls it lazily.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hivefetch_fetch_attempts_total",
				Help: "Total fetch attempts, labeled by transport and outcome.",
			},
			[]string{"transport", "outcome"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hivefetch_cache_lookups_total",
				Help: "Total pre-flight cache lookups, labeled by result.",
			},
			[]string{"result"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hivefetch_rate_limit_delay_seconds",
				Help:    "Histogram of rate limiter wait durations per domain.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		authFlowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hivefetch_auth_flows_total",
				Help: "Total credential flow executions, labeled by flow and outcome.",
			},
			[]string{"flow", "outcome"},
		)
	})
}

// RecordFetchAttempt counts one wire attempt.
func RecordFetchAttempt(transport, outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(transport, outcome).Inc()
}

// RecordCacheLookup counts one pre-flight cache lookup (hit, miss, error).
func RecordCacheLookup(result string) {
	Init()
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records how long a request waited for its domain.
func ObserveRateLimitDelay(domain string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(d.Seconds())
}

// RecordAuthFlow counts one authenticate or refresh execution.
func RecordAuthFlow(flow, outcome string) {
	Init()
	authFlowsTotal.WithLabelValues(flow, outcome).Inc()
}
