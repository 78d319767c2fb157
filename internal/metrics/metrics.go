package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	statusPolls         *prometheus.CounterVec
	authFailures        prometheus.Counter
	audioBytesServed    prometheus.Counter
	telemetryRecords    prometheus.Counter
}

// New creates a fresh Metrics registry with HTTP and protocol metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mfmc",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by mfmc-server",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mfmc",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by mfmc-server",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	statusPolls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mfmc",
		Name:      "status_polls_total",
		Help:      "Status polls answered, by whether a command was returned",
	}, []string{"result"})

	authFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mfmc",
		Name:      "auth_failures_total",
		Help:      "Requests rejected by the device authentication gate",
	})

	audioBytesServed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mfmc",
		Name:      "audio_bytes_served_total",
		Help:      "Audio payload bytes streamed by the file endpoint",
	})

	telemetryRecords := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mfmc",
		Name:      "telemetry_records_total",
		Help:      "Device telemetry records persisted",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		statusPolls,
		authFailures,
		audioBytesServed,
		telemetryRecords,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		statusPolls:         statusPolls,
		authFailures:        authFailures,
		audioBytesServed:    audioBytesServed,
		telemetryRecords:    telemetryRecords,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncStatusPoll counts one answered status poll.
func (m *Metrics) IncStatusPoll(hasCommand bool) {
	if m == nil {
		return
	}
	result := "empty"
	if hasCommand {
		result = "command"
	}
	m.statusPolls.WithLabelValues(result).Inc()
}

func (m *Metrics) IncAuthFailure() {
	if m == nil {
		return
	}
	m.authFailures.Inc()
}

func (m *Metrics) AddAudioBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.audioBytesServed.Add(float64(n))
}

func (m *Metrics) IncTelemetryRecord() {
	if m == nil {
		return
	}
	m.telemetryRecords.Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
