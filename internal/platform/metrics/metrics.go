package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the overlay viewer.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	framesReceivedTotal   prometheus.Counter
	malformedFramesTotal  prometheus.Counter
	overlaysRenderedTotal prometheus.Counter
	streamSessionsTotal   prometheus.Counter
	streamErrorsTotal     prometheus.Counter
	matchPhase            prometheus.Gauge
	cachedFrames          prometheus.Gauge
}

// New creates and registers Prometheus metrics for the viewer.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		framesReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_frames_received_total",
			Help: "Total number of frame records accepted from the detection stream",
		}),
		malformedFramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_malformed_frames_total",
			Help: "Total number of stream payloads dropped as malformed",
		}),
		overlaysRenderedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_renders_total",
			Help: "Total number of overlays painted after a settled seek",
		}),
		streamSessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_stream_sessions_total",
			Help: "Total number of detection stream sessions opened",
		}),
		streamErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_stream_errors_total",
			Help: "Total number of detection stream transport failures",
		}),
		matchPhase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "overlay_match_phase",
			Help: "Current match phase (0 first, 1 halftime, 2 second, 3 finished)",
		}),
		cachedFrames: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "overlay_cached_frames",
			Help: "Number of frames held in the detection cache",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.framesReceivedTotal,
		m.malformedFramesTotal,
		m.overlaysRenderedTotal,
		m.streamSessionsTotal,
		m.streamErrorsTotal,
		m.matchPhase,
		m.cachedFrames,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncFramesReceived increments the accepted frame record counter.
func (m *Metrics) IncFramesReceived() {
	m.framesReceivedTotal.Inc()
}

// IncMalformedFrames increments the dropped payload counter.
func (m *Metrics) IncMalformedFrames() {
	m.malformedFramesTotal.Inc()
}

// IncOverlaysRendered increments the render counter.
func (m *Metrics) IncOverlaysRendered() {
	m.overlaysRenderedTotal.Inc()
}

// IncStreamSessions increments the opened stream session counter.
func (m *Metrics) IncStreamSessions() {
	m.streamSessionsTotal.Inc()
}

// IncStreamErrors increments the stream transport failure counter.
func (m *Metrics) IncStreamErrors() {
	m.streamErrorsTotal.Inc()
}

// SetMatchPhase sets the match phase gauge.
func (m *Metrics) SetMatchPhase(phase int) {
	m.matchPhase.Set(float64(phase))
}

// SetCachedFrames sets the cached frames gauge.
func (m *Metrics) SetCachedFrames(n int) {
	m.cachedFrames.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. cached frames).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
