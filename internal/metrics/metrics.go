// Package metrics holds the Prometheus instruments for the pipeline.
//
// All metrics are low-cardinality: labels carry topics, event types and
// statuses, never observer or event IDs. Every method is safe on a nil
// *Metrics so components can run uninstrumented in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "perimeter"

// Metrics is the set of pipeline instruments, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Broadcast
	delivered *prometheus.CounterVec
	evicted   *prometheus.CounterVec
	observers prometheus.Gauge

	// Ingest
	ingested   *prometheus.CounterVec
	duplicates prometheus.Counter
	rejected   *prometheus.CounterVec
	responses  *prometheus.CounterVec
	latency    prometheus.Histogram

	// Vendor bridge
	vendorState    prometheus.Gauge
	vendorMessages *prometheus.CounterVec

	// Relay
	relayPublished *prometheus.CounterVec
}

// New creates and registers all instruments, plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "broadcast_delivered_total",
			Help: "Messages handed to observer sinks, by topic",
		}, []string{"topic"}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "broadcast_evicted_total",
			Help: "Observers deregistered after a delivery failure, by reason",
		}, []string{"reason"}),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "broadcast_observers",
			Help: "Currently registered observers",
		}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_ingested_total",
			Help: "Events accepted and persisted, by type and source",
		}, []string{"type", "source"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_duplicate_total",
			Help: "Events suppressed by the dedup window",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_rejected_total",
			Help: "Events rejected, by reason (validation, storage)",
		}, []string{"reason"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "responses_total",
			Help: "Responses completed, by action and status",
		}, []string{"action", "status"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "ingest_duration_seconds",
			Help:    "End-to-end ingest latency including command execution",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		vendorState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "vendor_bridge_state",
			Help: "Vendor bridge state (0=disconnected, 1=connecting, 2=subscribed)",
		}),
		vendorMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "vendor_messages_total",
			Help: "Vendor bus messages, by channel and outcome",
		}, []string{"channel", "outcome"}),
		relayPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "relay_published_total",
			Help: "Messages mirrored to the external bus, by outcome",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.delivered, m.evicted, m.observers,
		m.ingested, m.duplicates, m.rejected, m.responses, m.latency,
		m.vendorState, m.vendorMessages,
		m.relayPublished,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Delivered(topic string) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(topic).Inc()
}

func (m *Metrics) Evicted(reason string) {
	if m == nil {
		return
	}
	m.evicted.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetObservers(n int) {
	if m == nil {
		return
	}
	m.observers.Set(float64(n))
}

func (m *Metrics) Ingested(eventType, source string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(eventType, source).Inc()
}

func (m *Metrics) Duplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Response(action, status string) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(action, status).Inc()
}

func (m *Metrics) ObserveIngest(seconds float64) {
	if m == nil {
		return
	}
	m.latency.Observe(seconds)
}

func (m *Metrics) SetVendorState(state int) {
	if m == nil {
		return
	}
	m.vendorState.Set(float64(state))
}

func (m *Metrics) VendorMessage(channel, outcome string) {
	if m == nil {
		return
	}
	m.vendorMessages.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) RelayPublished(outcome string) {
	if m == nil {
		return
	}
	m.relayPublished.WithLabelValues(outcome).Inc()
}
