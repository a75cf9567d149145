package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for deckhand.
type Metrics struct {
	registry                  *prometheus.Registry
	operationsTotal           *prometheus.CounterVec
	operationsActive          prometheus.Gauge
	streamSessionsActive      prometheus.Gauge
	streamFailuresTotal       prometheus.Counter
	broadcastDeliveriesTotal  *prometheus.CounterVec
	broadcastSubscribersGauge prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deckhand_operations_total",
			Help: "Total finished operations by type and terminal status.",
		}, []string{"type", "status"}),
		operationsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deckhand_operations_active",
			Help: "Operations currently in a non-terminal status.",
		}),
		streamSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deckhand_stream_sessions_active",
			Help: "Live log stream sessions.",
		}),
		streamFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deckhand_stream_failures_total",
			Help: "Stream sessions that ended with an error event.",
		}),
		broadcastDeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deckhand_broadcast_deliveries_total",
			Help: "Broadcast payload deliveries by result.",
		}, []string{"result"}),
		broadcastSubscribersGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deckhand_broadcast_subscribers",
			Help: "Current operation subscriptions across all connections.",
		}),
	}

	registry.MustRegister(
		m.operationsTotal,
		m.operationsActive,
		m.streamSessionsActive,
		m.streamFailuresTotal,
		m.broadcastDeliveriesTotal,
		m.broadcastSubscribersGauge,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncOperationFinished counts a terminal transition.
func (m *Metrics) IncOperationFinished(opType, status string) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(opType, status).Inc()
}

// SetOperationsActive sets the active operations gauge.
func (m *Metrics) SetOperationsActive(count int) {
	if m == nil {
		return
	}
	m.operationsActive.Set(float64(count))
}

// SessionStarted increments the live session gauge.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.streamSessionsActive.Inc()
}

// SessionEnded decrements the live session gauge.
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.streamSessionsActive.Dec()
}

// RecordStreamFailure counts a stream that ended with an error event.
func (m *Metrics) RecordStreamFailure() {
	if m == nil {
		return
	}
	m.streamFailuresTotal.Inc()
}

// RecordDelivery counts one broadcast delivery attempt.
func (m *Metrics) RecordDelivery(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "dropped"
	}
	m.broadcastDeliveriesTotal.WithLabelValues(result).Inc()
}

// SetSubscribers sets the subscription gauge.
func (m *Metrics) SetSubscribers(count int) {
	if m == nil {
		return
	}
	m.broadcastSubscribersGauge.Set(float64(count))
}
