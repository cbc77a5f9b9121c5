// Package metrics exposes the counters and histograms a monitoring run
// produces, in the teacher's Prometheus-registry-plus-fasthttp-adaptor
// shape (see internal/common/metricsserver).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Metrics is the process-wide collector set for one sentinel run.
type Metrics struct {
	httpHandler func(*fasthttp.RequestCtx)

	fetchesTotal       *prometheus.CounterVec
	fetchDuration      *prometheus.HistogramVec
	eventsTotal        *prometheus.CounterVec
	webhookCallsTotal  *prometheus.CounterVec
	webhookDuration    prometheus.Histogram
	circuitOpenTotal   *prometheus.CounterVec
	deadLetterTotal    *prometheus.CounterVec
	targetsInFlight    prometheus.Gauge
	payloadTruncations prometheus.Counter
}

// New builds a fresh, independently registered Metrics set under namespace.
// An empty namespace falls back to "sentinel".
func New(namespace string, logger *zap.Logger) *Metrics {
	if namespace == "" {
		namespace = "sentinel"
	}

	m := &Metrics{}

	m.fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Total number of target fetch attempts.",
		},
		[]string{"backend", "status"},
	)

	m.fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Fetch latency by backend.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	m.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "events_total",
			Help:      "Total number of pipeline events emitted, by kind.",
		},
		[]string{"kind"},
	)

	m.webhookCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Total number of webhook delivery attempts.",
		},
		[]string{"status"},
	)

	m.webhookDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "delivery_duration_seconds",
			Help:      "Webhook delivery latency including retries.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	m.circuitOpenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "circuit_open_total",
			Help:      "Number of times the webhook circuit breaker tripped open, by target.",
		},
		[]string{"target"},
	)

	m.deadLetterTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deadletter",
			Name:      "records_total",
			Help:      "Number of events written to the dead-letter store, by reason.",
		},
		[]string{"reason"},
	)

	m.targetsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "targets_in_flight",
			Help:      "Number of targets currently being processed by the worker pool.",
		},
	)

	m.payloadTruncations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payload",
			Name:      "truncations_total",
			Help:      "Number of events whose changes.text was shortened to fit max_payload_bytes.",
		},
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		m.fetchesTotal,
		m.fetchDuration,
		m.eventsTotal,
		m.webhookCallsTotal,
		m.webhookDuration,
		m.circuitOpenTotal,
		m.deadLetterTotal,
		m.targetsInFlight,
		m.payloadTruncations,
	)

	gatherer := prometheus.Gatherer(registry)
	handler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
	m.httpHandler = fasthttpadaptor.NewFastHTTPHandler(handler)

	logger.Info("metrics initialized", zap.String("namespace", namespace))

	return m
}

func (m *Metrics) RecordFetch(backend, status string, seconds float64) {
	m.fetchesTotal.WithLabelValues(backend, status).Inc()
	m.fetchDuration.WithLabelValues(backend).Observe(seconds)
}

func (m *Metrics) RecordEvent(kind string) {
	m.eventsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordWebhookDelivery(status string, seconds float64) {
	m.webhookCallsTotal.WithLabelValues(status).Inc()
	m.webhookDuration.Observe(seconds)
}

func (m *Metrics) RecordCircuitOpen(target string) {
	m.circuitOpenTotal.WithLabelValues(target).Inc()
}

func (m *Metrics) RecordDeadLetter(reason string) {
	m.deadLetterTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetTargetsInFlight(n int) {
	m.targetsInFlight.Set(float64(n))
}

func (m *Metrics) RecordPayloadTruncation() {
	m.payloadTruncations.Inc()
}

// ServeHTTP satisfies metricsserver.MetricsHandler.
func (m *Metrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	m.httpHandler(ctx)
}
