package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions HTTP metrics by logical endpoint name rather than
// the raw URL path.
const labelHandler = "handler"

// Metrics holds all Prometheus collectors owned by the assistant. It is
// created once at startup: tools report through ObserveTool, handlers through
// the unexported fields. Tests register into a fresh prometheus.Registry.
type Metrics struct {
	// chatRequestsTotal counts completed /api/chat requests by outcome:
	// "ok", "timeout", or "error".
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the wall-clock duration of each /api/chat
	// request from receipt to stream completion.
	chatDurationSeconds *prometheus.HistogramVec

	// chatActiveStreams is the number of /api/chat SSE streams currently open.
	chatActiveStreams prometheus.Gauge

	// imageRequestsTotal counts /api/image requests by outcome: "ok",
	// "download_failure", "bad_request", "timeout", or "error".
	imageRequestsTotal *prometheus.CounterVec

	// imageDurationSeconds records the duration of each /api/image request.
	imageDurationSeconds *prometheus.HistogramVec

	// toolInvocationsTotal counts tool calls by tool name and outcome.
	toolInvocationsTotal *prometheus.CounterVec

	// toolDurationSeconds records tool latency by tool name.
	toolDurationSeconds *prometheus.HistogramVec

	// httpRequestsTotal counts all HTTP requests, partitioned by method,
	// handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// NewMetrics registers every collector against reg. promauto.With(reg) keeps
// registration off the global default when tests pass their own registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alula",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of /api/chat requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "alula",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/chat requests from receipt to stream completion.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 180},
		}, []string{"outcome"}),

		chatActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "alula",
			Subsystem: "chat",
			Name:      "active_streams",
			Help:      "Number of /api/chat SSE streams currently open.",
		}),

		imageRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alula",
			Subsystem: "image",
			Name:      "requests_total",
			Help:      "Total number of /api/image requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		imageDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "alula",
			Subsystem: "image",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/image requests.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"outcome"}),

		toolInvocationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alula",
			Subsystem: "tool",
			Name:      "invocations_total",
			Help:      "Total number of retrieval tool invocations, partitioned by tool and outcome.",
		}, []string{"tool", "outcome"}),

		toolDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "alula",
			Subsystem: "tool",
			Name:      "duration_seconds",
			Help:      "Latency of retrieval tool invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alula",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "alula",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// ObserveTool records one tool invocation. Its signature matches
// tools.Observer so it can be passed to the tool set directly.
func (m *Metrics) ObserveTool(tool, outcome string, elapsed time.Duration) {
	m.toolInvocationsTotal.WithLabelValues(tool, outcome).Inc()
	m.toolDurationSeconds.WithLabelValues(tool).Observe(elapsed.Seconds())
}

func (m *Metrics) observeChat(outcome string, elapsed time.Duration) {
	m.chatRequestsTotal.WithLabelValues(outcome).Inc()
	m.chatDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) observeImage(outcome string, elapsed time.Duration) {
	m.imageRequestsTotal.WithLabelValues(outcome).Inc()
	m.imageDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
