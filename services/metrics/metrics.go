// Package metricsvc exposes the API's prometheus metrics.
package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	inFlight        prometheus.Gauge
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	loginsTotal     *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		gatherer: reg,
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		loginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_login_attempts_total",
				Help: "Login attempts by phase (discover, session) and outcome.",
			},
			[]string{"phase", "outcome"},
		),
	}
	for _, c := range []prometheus.Collector{m.inFlight, m.requestsTotal, m.requestDuration, m.loginsTotal} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Begin marks the start of a request. The returned func records it once it is done.
func (m *Metrics) Begin(method, path string) func(status int) {
	if m == nil {
		return func(int) {}
	}
	m.inFlight.Inc()
	start := time.Now()
	return func(status int) {
		code := strconv.Itoa(status)
		m.requestDuration.WithLabelValues(method, path, code).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(method, path, code).Inc()
		m.inFlight.Dec()
	}
}

// ObserveLogin counts a login attempt; outcome is "ok" or the failure reason.
func (m *Metrics) ObserveLogin(phase, outcome string) {
	if m == nil {
		return
	}
	m.loginsTotal.WithLabelValues(phase, outcome).Inc()
}
