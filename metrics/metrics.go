// Package metrics exposes Prometheus instruments for the performance engine and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements performance.Observer and wraps HTTP handlers. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	recomputeTotal    *prometheus.CounterVec
	recomputeErrors   *prometheus.CounterVec
	recomputeDuration *prometheus.HistogramVec
	eventsTotal       *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers every instrument on a fresh registry, so several recorders can
// live in one process (tests).
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		recomputeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "performance_recompute_total",
			Help: "Derived-record recomputations by kind.",
		}, []string{"kind"}),
		recomputeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "performance_recompute_errors_total",
			Help: "Failed recomputations by kind.",
		}, []string{"kind"}),
		recomputeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "performance_recompute_duration_seconds",
			Help:    "Histogram of recomputation durations by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "performance_events_total",
			Help: "Recompute events published, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	r.registry.MustRegister(
		r.recomputeTotal,
		r.recomputeErrors,
		r.recomputeDuration,
		r.eventsTotal,
		r.httpRequestsTotal,
		r.httpDuration,
	)
	return r
}

// ObserveRecompute records one engine computation.
func (r *Recorder) ObserveRecompute(kind string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.recomputeTotal.WithLabelValues(kind).Inc()
	r.recomputeDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err != nil {
		r.recomputeErrors.WithLabelValues(kind).Inc()
	}
}

// ObservePublish records one event handed to a transport.
func (r *Recorder) ObservePublish(kind string, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.eventsTotal.WithLabelValues(kind, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and their latency under route.
func (r *Recorder) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, req)

		if r != nil {
			r.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			r.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
