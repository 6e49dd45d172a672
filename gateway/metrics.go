package gateway

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics collects Prometheus metrics for one gateway instance. Each gateway
// owns a private registry so tests can construct several instances without
// duplicate registration panics.
type metrics struct {
	registry *prometheus.Registry

	// Request metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Stream metrics
	streamEvents   *prometheus.CounterVec
	emptyResponses *prometheus.CounterVec

	// Recording metrics
	droppedJobs prometheus.Counter
}

// newMetrics creates the gateway metrics and registers them on a fresh registry.
func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patchbay_requests_total",
				Help: "Total number of chat completion requests",
			},
			[]string{"backend", "streaming", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "patchbay_request_duration_seconds",
				Help:    "Chat completion request duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"backend"},
		),

		streamEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patchbay_stream_events_total",
				Help: "Total number of decoded stream events relayed to clients",
			},
			[]string{"backend", "kind"},
		),

		emptyResponses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patchbay_empty_responses_total",
				Help: "Total number of upstream streams that ended without content",
			},
			[]string{"backend"},
		),

		droppedJobs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "patchbay_recorder_dropped_jobs_total",
				Help: "Total number of turns dropped because the recording queue was full",
			},
		),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.streamEvents,
		m.emptyResponses,
		m.droppedJobs,
	)

	return m
}

// recordRequest records one finished chat completion request.
func (m *metrics) recordRequest(backend string, streaming bool, status int, elapsed time.Duration) {
	m.requestsTotal.With(prometheus.Labels{
		"backend":   backend,
		"streaming": strconv.FormatBool(streaming),
		"status":    strconv.Itoa(status),
	}).Inc()

	m.requestDuration.With(prometheus.Labels{
		"backend": backend,
	}).Observe(elapsed.Seconds())
}

// recordStreamEvent counts one relayed stream event by kind ("text" or "tool_call").
func (m *metrics) recordStreamEvent(backend, kind string) {
	m.streamEvents.With(prometheus.Labels{
		"backend": backend,
		"kind":    kind,
	}).Inc()
}

// recordEmptyResponse counts an upstream stream that produced no content.
func (m *metrics) recordEmptyResponse(backend string) {
	m.emptyResponses.With(prometheus.Labels{
		"backend": backend,
	}).Inc()
}

// recordDroppedJob counts a turn that could not be queued for recording.
func (m *metrics) recordDroppedJob() {
	m.droppedJobs.Inc()
}
