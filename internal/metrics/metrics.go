// Package metrics exports engine, store, outbox and command activity as
// Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cadstore"

// Metric names, without the namespace prefix.
const (
	MetricLockWaitSeconds   = "store_lock_wait_seconds"
	MetricLockTimeouts      = "store_lock_timeouts_total"
	MetricMessagesDelivered = "outbox_messages_delivered_total"
	MetricMessagesDropped   = "outbox_messages_dropped_total"
	MetricOperationSeconds  = "engine_operation_seconds"
	MetricOperationErrors   = "engine_operation_errors_total"
	MetricPropagatedObjects = "engine_propagated_subscribers_total"
	MetricPropagatedChanged = "engine_propagated_changed_total"
	MetricCommandSeconds    = "command_seconds"
	MetricCommandErrors     = "command_errors_total"
)

// Metrics implements the store, outbox, engine and command observer
// interfaces on top of one Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	lockWait    prometheus.Histogram
	lockTimeout prometheus.Counter
	delivered   prometheus.Counter
	dropped     prometheus.Counter
	opSeconds   *prometheus.HistogramVec
	opErrors    *prometheus.CounterVec
	subscribers prometheus.Counter
	changed     prometheus.Counter
	cmdSeconds  *prometheus.HistogramVec
	cmdErrors   *prometheus.CounterVec
}

// New registers a fresh set of collectors on their own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricLockWaitSeconds,
			Help:      "Time spent retrying a contended entry lock.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		lockTimeout: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricLockTimeouts,
			Help:      "Entry lock acquisitions that timed out.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricMessagesDelivered,
			Help:      "Update messages queued for users.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricMessagesDropped,
			Help:      "Update messages dropped by full mailboxes.",
		}),
		opSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricOperationSeconds,
			Help:      "Engine operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricOperationErrors,
			Help:      "Failed engine operations.",
		}, []string{"operation"}),
		subscribers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricPropagatedObjects,
			Help:      "Subscribers visited by dependency propagation.",
		}),
		changed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricPropagatedChanged,
			Help:      "Subscribers changed by dependency propagation.",
		}),
		cmdSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricCommandSeconds,
			Help:      "Client command latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		cmdErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricCommandErrors,
			Help:      "Failed client commands.",
		}, []string{"method"}),
	}
	m.registry.MustRegister(
		m.lockWait, m.lockTimeout,
		m.delivered, m.dropped,
		m.opSeconds, m.opErrors, m.subscribers, m.changed,
		m.cmdSeconds, m.cmdErrors,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) LockWaited(wait time.Duration) { m.lockWait.Observe(wait.Seconds()) }

func (m *Metrics) LockTimedOut() { m.lockTimeout.Inc() }

func (m *Metrics) Delivered(n int) { m.delivered.Add(float64(n)) }

func (m *Metrics) Dropped(n int) { m.dropped.Add(float64(n)) }

func (m *Metrics) Operation(name string, d time.Duration, err error) {
	m.opSeconds.WithLabelValues(name).Observe(d.Seconds())
	if err != nil {
		m.opErrors.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) Propagated(subscribers, changed int) {
	m.subscribers.Add(float64(subscribers))
	m.changed.Add(float64(changed))
}

func (m *Metrics) Command(method string, d time.Duration, err error) {
	m.cmdSeconds.WithLabelValues(method).Observe(d.Seconds())
	if err != nil {
		m.cmdErrors.WithLabelValues(method).Inc()
	}
}
