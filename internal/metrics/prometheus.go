package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all prometheus metrics for the service
type Metrics struct {
	// Session metrics
	ActiveSessions prometheus.Gauge
	SessionsTotal  prometheus.Counter

	// Audio pipeline metrics
	FramesReceived  prometheus.Counter
	SamplesReceived prometheus.Counter
	WindowsPackaged prometheus.Counter
	WindowsDropped  *prometheus.CounterVec

	// Classification metrics
	Classifications       *prometheus.CounterVec
	ClassificationLatency prometheus.Histogram

	// Render metrics
	RenderShifts prometheus.Counter

	// Transport metrics
	WebSocketClients prometheus.Gauge
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New creates and registers all metrics
func New() *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sonotag_active_sessions",
			Help: "Number of currently active capture sessions",
		}),
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sonotag_sessions_total",
			Help: "Total number of capture sessions created",
		}),
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sonotag_frames_received_total",
			Help: "Total number of audio frames received from capture sources",
		}),
		SamplesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sonotag_samples_received_total",
			Help: "Total number of audio samples received from capture sources",
		}),
		WindowsPackaged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sonotag_windows_packaged_total",
			Help: "Total number of audio windows packaged for classification",
		}),
		WindowsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sonotag_windows_dropped_total",
			Help: "Total number of windows dropped before classification",
		}, []string{"reason"}),
		Classifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sonotag_classifications_total",
			Help: "Total number of classification requests by status",
		}, []string{"status"}),
		ClassificationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sonotag_classification_latency_seconds",
			Help:    "Round-trip latency of similarity model requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		RenderShifts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sonotag_render_shifts_total",
			Help: "Total number of render surface column shifts",
		}),
		WebSocketClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sonotag_websocket_clients",
			Help: "Number of currently connected WebSocket clients",
		}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sonotag_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		}, []string{"endpoint", "status"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sonotag_http_request_duration_seconds",
			Help:    "HTTP request duration by endpoint",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

// RecordFrame records one received audio frame
func (m *Metrics) RecordFrame(samples int) {
	m.FramesReceived.Inc()
	m.SamplesReceived.Add(float64(samples))
}

// RecordWindowPackaged records one packaged classification window
func (m *Metrics) RecordWindowPackaged() {
	m.WindowsPackaged.Inc()
}

// RecordWindowDropped records a window dropped before classification
func (m *Metrics) RecordWindowDropped(reason string) {
	m.WindowsDropped.WithLabelValues(reason).Inc()
}

// RecordClassification records a completed classification request
func (m *Metrics) RecordClassification(status string, latency time.Duration) {
	m.Classifications.WithLabelValues(status).Inc()
	if status == "success" {
		m.ClassificationLatency.Observe(latency.Seconds())
	}
}

// RecordHTTPRequest records one HTTP API request
func (m *Metrics) RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(endpoint, status).Inc()
	m.HTTPDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// SessionStarted records a new session
func (m *Metrics) SessionStarted() {
	m.SessionsTotal.Inc()
	m.ActiveSessions.Inc()
}

// SessionEnded records a finished session
func (m *Metrics) SessionEnded() {
	m.ActiveSessions.Dec()
}
