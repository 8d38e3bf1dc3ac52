package pool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instrumentation for a Pool. Safe to call
// NewMetrics multiple times — each call creates an independent registry.
type Metrics struct {
	Registry *prometheus.Registry

	connsActive    prometheus.Gauge
	connsIdle      prometheus.Gauge
	waiters        prometheus.Gauge
	connectTotal   prometheus.Counter
	connectErrors  prometheus.Counter
	healthChecks   *prometheus.CounterVec
	acquireWait    prometheus.Histogram
}

// NewMetrics creates and registers the counters and gauges a Pool reports.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		connsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qs_pool_connections_active",
			Help: "Live connections owned by the pool, idle or checked out.",
		}),
		connsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qs_pool_connections_idle",
			Help: "Connections sitting idle in the pool.",
		}),
		waiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qs_pool_acquire_waiters",
			Help: "Callers blocked in Acquire waiting for a connection.",
		}),
		connectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qs_pool_connect_attempts_total",
			Help: "Connection rounds run by the pool worker; a round includes its retries.",
		}),
		connectErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qs_pool_connect_errors_total",
			Help: "Connection attempts that exhausted their retries.",
		}),
		healthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qs_pool_healthchecks_total",
			Help: "Health checks performed by the pool, by outcome.",
		}, []string{"result"}),
		acquireWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "qs_pool_acquire_wait_seconds",
			Help:    "Time spent blocked in Acquire.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
	}

	reg.MustRegister(
		m.connsActive,
		m.connsIdle,
		m.waiters,
		m.connectTotal,
		m.connectErrors,
		m.healthChecks,
		m.acquireWait,
	)

	return m
}

func (m *Metrics) acquireObserved(start time.Time) {
	m.acquireWait.Observe(time.Since(start).Seconds())
}

func (m *Metrics) healthCheckResult(ok bool) {
	if ok {
		m.healthChecks.WithLabelValues("ok").Inc()
		return
	}
	m.healthChecks.WithLabelValues("failed").Inc()
}
