package extra

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the server's Prometheus collectors and the /metrics handler.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
	taskStatus    *prometheus.CounterVec
}

// NewMetrics creates a registry with the server collectors. sessions feeds the
// active-session gauge; pass nil to skip it.
func NewMetrics(sessions SessionCounter) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_http_requests_total",
			Help: "HTTP requests served, by method and status code.",
		}, []string{"method", "code"}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcp_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		taskStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_task_status_transitions_total",
			Help: "Task status transitions, by resulting status.",
		}, []string{"status"}),
	}
	registry.MustRegister(m.httpRequests, m.httpDurations, m.taskStatus)

	if sessions != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "mcp_active_sessions",
			Help: "Currently open sessions.",
		}, func() float64 {
			return float64(sessions.SessionCount())
		}))
	}
	return m
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTaskStatus counts one task status transition.
func (m *Metrics) ObserveTaskStatus(status string) {
	m.taskStatus.WithLabelValues(status).Inc()
}

// Wrap instruments an HTTP handler with request counters and latency
// histograms.
func (m *Metrics) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(recorder, r)
		m.httpRequests.WithLabelValues(r.Method, strconv.Itoa(recorder.code)).Inc()
		m.httpDurations.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder remembers the status code written by the wrapped handler.
// Flush is forwarded so SSE responses keep streaming.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
