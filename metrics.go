package lintas

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the invocation lifecycle
// and the retry, auth, and throughput layers. It is safe for concurrent
// use.
type MetricsCollector struct {
	invocationsTotal    *prometheus.CounterVec
	invocationDuration  *prometheus.HistogramVec
	invocationsInFlight *prometheus.GaugeVec

	attemptsTotal *prometheus.CounterVec
	retriesTotal  *prometheus.CounterVec

	retryTokenBucket *prometheus.GaugeVec

	throughputViolations *prometheus.CounterVec

	identityCacheHits   *prometheus.CounterVec
	identityCacheMisses *prometheus.CounterVec

	clockSkew *prometheus.GaugeVec

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		invocationsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lintas_invocations_total",
				Help: "Total number of operation invocations",
			},
			[]string{"service", "operation", "status"},
		),
		invocationDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lintas_invocation_duration_seconds",
				Help:    "Duration of operation invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "operation", "status"},
		),
		invocationsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lintas_invocations_in_flight",
				Help: "Number of operation invocations currently in flight",
			},
			[]string{"service", "operation"},
		),
		attemptsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lintas_attempts_total",
				Help: "Total number of HTTP attempts made",
			},
			[]string{"service", "operation"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lintas_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"service", "operation", "attempt"},
		),
		retryTokenBucket: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lintas_retry_token_bucket_tokens",
				Help: "Current number of tokens in the retry token bucket",
			},
			[]string{"partition"},
		),
		throughputViolations: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lintas_throughput_floor_violations_total",
				Help: "Total number of bodies failed for sustained throughput below the floor",
			},
			[]string{"service", "operation", "direction"},
		),
		identityCacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lintas_identity_cache_hits_total",
				Help: "Total number of identity cache hits",
			},
			[]string{"scheme"},
		),
		identityCacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lintas_identity_cache_misses_total",
				Help: "Total number of identity cache misses",
			},
			[]string{"scheme"},
		),
		clockSkew: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lintas_clock_skew_seconds",
				Help: "Estimated clock skew against the service, in seconds",
			},
			[]string{"service"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lintas_errors_total",
				Help: "Total number of invocation errors by kind",
			},
			[]string{"kind", "service", "operation"},
		),
	}
}

// RecordInvocationStart marks an invocation in flight.
func (mc *MetricsCollector) RecordInvocationStart(service, operation string) {
	mc.invocationsInFlight.WithLabelValues(service, operation).Inc()
}

// RecordInvocationEnd removes an invocation from the in-flight gauge.
func (mc *MetricsCollector) RecordInvocationEnd(service, operation string) {
	mc.invocationsInFlight.WithLabelValues(service, operation).Dec()
}

// RecordInvocation records the final status and duration of an invocation.
func (mc *MetricsCollector) RecordInvocation(service, operation, status string, d time.Duration) {
	mc.invocationsTotal.WithLabelValues(service, operation, status).Inc()
	mc.invocationDuration.WithLabelValues(service, operation, status).Observe(d.Seconds())
}

// RecordAttempt counts one HTTP send.
func (mc *MetricsCollector) RecordAttempt(service, operation string) {
	mc.attemptsTotal.WithLabelValues(service, operation).Inc()
}

// RecordRetry counts one retry at the given attempt number.
func (mc *MetricsCollector) RecordRetry(service, operation string, attempt int) {
	mc.retriesTotal.WithLabelValues(service, operation, strconv.Itoa(attempt)).Inc()
}

// RecordTokenBucketTokens exports the bucket level for a partition.
func (mc *MetricsCollector) RecordTokenBucketTokens(partition string, tokens int64) {
	mc.retryTokenBucket.WithLabelValues(partition).Set(float64(tokens))
}

// RecordThroughputViolation counts a throughput-floor failure.
func (mc *MetricsCollector) RecordThroughputViolation(service, operation, direction string) {
	mc.throughputViolations.WithLabelValues(service, operation, direction).Inc()
}

// RecordIdentityCacheHit counts a cache hit for a scheme.
func (mc *MetricsCollector) RecordIdentityCacheHit(scheme string) {
	mc.identityCacheHits.WithLabelValues(scheme).Inc()
}

// RecordIdentityCacheMiss counts a cache miss for a scheme.
func (mc *MetricsCollector) RecordIdentityCacheMiss(scheme string) {
	mc.identityCacheMisses.WithLabelValues(scheme).Inc()
}

// RecordClockSkew exports the current skew estimate.
func (mc *MetricsCollector) RecordClockSkew(service string, skew time.Duration) {
	mc.clockSkew.WithLabelValues(service).Set(skew.Seconds())
}

// RecordError counts an invocation error by kind.
func (mc *MetricsCollector) RecordError(kind ErrorKind, service, operation string) {
	mc.errorsTotal.WithLabelValues(string(kind), service, operation).Inc()
}
