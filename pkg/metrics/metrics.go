// Package metrics exposes the pipeline's operational counters via
// Prometheus: message throughput by tag, decode errors by kind, book
// invariant violations, observation publish counts by symbol,
// book-apply latency, and queue depth by queue.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters referenced in §7, §9 and SPEC_FULL.md
// §4.8: messages decoded (by tag), per-record decode errors (by kind —
// unknown_tag, invalid_field), InternalInvariant violations observed
// by the book, observations actually published (by symbol) after the
// filter/emit_on_unchanged policy, book-apply latency, and queue
// depth (by queue — q1, q2).
//
// A nil *Metrics is valid everywhere below — every method is a no-op
// on a nil receiver, so callers that don't care about metrics can pass
// nil instead of threading a no-op implementation through.
type Metrics struct {
	registry              *prometheus.Registry
	messagesDecoded       prometheus.CounterVec
	recordErrors          prometheus.CounterVec
	invariantViolations   prometheus.Counter
	observationsPublished prometheus.CounterVec
	applyLatency          prometheus.Histogram
	queueDepth            prometheus.GaugeVec
}

// New registers and returns the itchbook metric set under namespace.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,

		messagesDecoded: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_decoded_total",
			Help: "ITCH records successfully decoded, by tag.",
		}, []string{"tag"}),

		recordErrors: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "decode_errors_total",
			Help: "Per-record decode errors dropped without halting the stream, by kind.",
		}, []string{"kind"}),

		invariantViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "book_invariant_violations_total",
			Help: "InternalInvariant violations observed by the order book (crossed book, over-reduction).",
		}),

		observationsPublished: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "observations_emitted_total",
			Help: "MarketObservation values forwarded past the symbol filter and emit_on_unchanged policy, by symbol.",
		}, []string{"symbol"}),

		applyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "apply_latency_seconds",
			Help:    "Time book.Apply takes to fold one decoded message into the book.",
			Buckets: prometheus.ExponentialBuckets(1e-7, 4, 12),
		}),

		queueDepth: *prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_depth",
			Help: "Current depth of a pipeline queue, by queue (q1, q2).",
		}, []string{"queue"}),
	}
	registry.MustRegister(m.messagesDecoded, m.recordErrors, m.invariantViolations,
		m.observationsPublished, m.applyLatency, m.queueDepth)
	return m
}

// Handler returns an http.Handler serving this Metrics set's registry
// in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InvariantCounter adapts Metrics to book.InvariantCounter without the
// book package importing Prometheus directly.
func (m *Metrics) InvariantCounter() interface{ Inc() } {
	if m == nil {
		return nil
	}
	return m.invariantViolations
}

// IncMessagesDecoded counts one successfully decoded record under its
// single-byte tag (e.g. "A", "E", "D").
func (m *Metrics) IncMessagesDecoded(tag string) {
	if m == nil {
		return
	}
	m.messagesDecoded.WithLabelValues(tag).Inc()
}

// IncRecordErrors counts one recoverable per-record decode error under
// its kind ("unknown_tag" or "invalid_field").
func (m *Metrics) IncRecordErrors(kind string) {
	if m == nil {
		return
	}
	m.recordErrors.WithLabelValues(kind).Inc()
}

// IncObservationsPublished counts one MarketObservation actually
// forwarded to q2 for the given (trimmed) symbol.
func (m *Metrics) IncObservationsPublished(symbol string) {
	if m == nil {
		return
	}
	m.observationsPublished.WithLabelValues(symbol).Inc()
}

// ObserveApplyLatency records how long one book.Apply call took.
func (m *Metrics) ObserveApplyLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.applyLatency.Observe(d.Seconds())
}

// SetQ1Depth records q1's current length, sampled at a push/pop site.
func (m *Metrics) SetQ1Depth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues("q1").Set(float64(n))
}

// SetQ2Depth records q2's current length, sampled at a push/pop site.
func (m *Metrics) SetQ2Depth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues("q2").Set(float64(n))
}
