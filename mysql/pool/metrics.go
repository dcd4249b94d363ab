package pool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments a Pool reports against,
// labeled by pool rather than by tenant — this package manages one pool
// per DSN, not many pools per tenant.
type Metrics struct {
	Registry *prometheus.Registry

	connectionsActive  *prometheus.GaugeVec
	connectionsIdle    *prometheus.GaugeVec
	connectionsTotal   *prometheus.GaugeVec
	connectionsWaiting *prometheus.GaugeVec
	acquireDuration    *prometheus.HistogramVec
	validationDuration *prometheus.HistogramVec
	poolExhausted      *prometheus.CounterVec
}

// NewMetrics creates and registers the pool's Prometheus instruments on a
// fresh registry. Safe to call more than once (e.g. one per test case);
// each call is independent.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		connectionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ldbc_pool_connections_active",
				Help: "Number of connections currently checked out of the pool",
			},
			[]string{"pool"},
		),
		connectionsIdle: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ldbc_pool_connections_idle",
				Help: "Number of idle connections available in the pool",
			},
			[]string{"pool"},
		),
		connectionsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ldbc_pool_connections_total",
				Help: "Total number of live connections (idle + active)",
			},
			[]string{"pool"},
		),
		connectionsWaiting: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ldbc_pool_connections_waiting",
				Help: "Number of goroutines waiting on Acquire",
			},
			[]string{"pool"},
		),
		acquireDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ldbc_pool_acquire_duration_seconds",
				Help:    "Time spent waiting in Pool.Acquire",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{"pool"},
		),
		validationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ldbc_pool_validation_duration_seconds",
				Help:    "Time spent validating a pooled connection (COM_PING)",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
			},
			[]string{"pool"},
		),
		poolExhausted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldbc_pool_exhausted_total",
				Help: "Number of times Acquire found the pool at MaxConnections with no idle entry",
			},
			[]string{"pool"},
		),
	}

	reg.MustRegister(
		m.connectionsActive,
		m.connectionsIdle,
		m.connectionsTotal,
		m.connectionsWaiting,
		m.acquireDuration,
		m.validationDuration,
		m.poolExhausted,
	)
	return m
}

// SetGauges updates the occupancy gauges from a Status snapshot.
func (m *Metrics) SetGauges(label string, s Status) {
	m.connectionsActive.WithLabelValues(label).Set(float64(s.Active))
	m.connectionsIdle.WithLabelValues(label).Set(float64(s.Idle))
	m.connectionsTotal.WithLabelValues(label).Set(float64(s.Total))
	m.connectionsWaiting.WithLabelValues(label).Set(float64(s.Waiting))
}

// ObserveAcquireDuration records how long Acquire took to return an entry.
func (m *Metrics) ObserveAcquireDuration(label string, d time.Duration) {
	m.acquireDuration.WithLabelValues(label).Observe(d.Seconds())
}

// ObserveValidationDuration records how long a COM_PING validation probe
// took during maintenance or acquire-time validation.
func (m *Metrics) ObserveValidationDuration(label string, d time.Duration) {
	m.validationDuration.WithLabelValues(label).Observe(d.Seconds())
}

// ObservePoolExhausted increments the exhaustion counter.
func (m *Metrics) ObservePoolExhausted(label string) {
	m.poolExhausted.WithLabelValues(label).Inc()
}
