package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/hotelcms/hotelcms/internal/jobs"
)

// Metrics collects the Prometheus metrics of the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tiers           *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	reviews         *prometheus.CounterVec
	writes          *prometheus.CounterVec
	pending         prometheus.Gauge
	jobs            *jobmetrics.Metrics
}

// NewMetrics initialises the registry with HTTP, workflow and job metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hotelcms_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hotelcms_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	tiers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hotelcms_tier_resolutions_total",
		Help: "Edit tier resolutions by resulting tier.",
	}, []string{"tier"})
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hotelcms_change_submissions_total",
		Help: "Pending changes submitted by entry type.",
	}, []string{"entry_type"})
	reviews := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hotelcms_change_reviews_total",
		Help: "Pending changes reviewed by terminal status.",
	}, []string{"status"})
	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hotelcms_entry_writes_total",
		Help: "Writes applied to live entries by entry type.",
	}, []string{"entry_type"})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hotelcms_pending_changes",
		Help: "Pending changes awaiting review at the last backlog refresh.",
	})
	registry.MustRegister(requests, duration, tiers, submissions, reviews, writes, pending)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		tiers:           tiers,
		submissions:     submissions,
		reviews:         reviews,
		writes:          writes,
		pending:         pending,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler returns the http.Handler serving /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Jobs returns the job collectors registered on this registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// TierResolved counts one edit tier resolution.
func (m *Metrics) TierResolved(tier string) {
	if m == nil {
		return
	}
	m.tiers.WithLabelValues(tier).Inc()
}

// ChangeSubmitted counts a new pending change.
func (m *Metrics) ChangeSubmitted(entryType string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(entryType).Inc()
}

// ChangeReviewed counts a review by its terminal status.
func (m *Metrics) ChangeReviewed(status string) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(status).Inc()
}

// EntryWritten counts a write to a live entry, direct or approved.
func (m *Metrics) EntryWritten(entryType string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(entryType).Inc()
}

// SetPendingChanges publishes the review backlog size.
func (m *Metrics) SetPendingChanges(n int64) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
