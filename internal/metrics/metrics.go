package metrics

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const divisor = 100

// Metrics defines all Prometheus metrics for the digest service.
type Metrics struct {
	registry *prometheus.Registry

	// RED (Rate, Errors, Duration) for HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestsInFlight prometheus.Gauge
	HTTPRequestDuration  *prometheus.HistogramVec

	// Business metrics
	SubscribersCreated     prometheus.Counter
	SubscribersDeactivated prometheus.Counter
	DigestsSent            prometheus.Counter

	// Dispatch run metrics
	DispatchRuns        prometheus.Counter
	DispatchRunDuration prometheus.Histogram
	DispatchOutcomes    *prometheus.CounterVec // by outcome
	ForecastFetches     *prometheus.CounterVec // by result

	// Cache metrics
	CacheOps        *prometheus.CounterVec // by op, result
	CacheOpDuration *prometheus.HistogramVec

	// Errors metrics
	BusinessErrors  *prometheus.CounterVec
	TechnicalErrors *prometheus.CounterVec
}

// New creates and registers all metrics under the given namespace.
func New(namespace string, db *sql.DB, dbName string) *Metrics {
	registry := prometheus.NewRegistry()
	errorLabels := []string{"error_type", "severity"}
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests total",
			},
			[]string{"method", "endpoint", "status_class"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "In-flight HTTP requests",
			},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		SubscribersCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscribers_created_total",
				Help:      "Total subscribers created",
			},
		),
		SubscribersDeactivated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscribers_deactivated_total",
				Help:      "Total subscribers deactivated",
			},
		),
		DigestsSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "digests_sent_total",
				Help:      "Total digest emails delivered",
			},
		),

		DispatchRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_runs_total",
				Help:      "Dispatch run executions",
			},
		),
		DispatchRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_run_duration_seconds",
				Help:      "Duration of dispatch runs",
				Buckets:   prometheus.DefBuckets,
			},
		),
		DispatchOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_outcomes_total",
				Help:      "Per-subscriber dispatch outcomes",
			},
			[]string{"outcome"},
		),
		ForecastFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecast_fetches_total",
				Help:      "Upstream forecast fetches",
			},
			[]string{"result"},
		),

		CacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_ops_total",
				Help:      "Cache operations by result",
			},
			[]string{"op", "result"},
		),
		CacheOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_op_duration_seconds",
				Help:      "Duration of cache operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),

		BusinessErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "business_errors_total",
				Help:      "Total business errors",
			},
			errorLabels,
		),
		TechnicalErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "technical_errors_total",
				Help:      "Total technical errors",
			},
			errorLabels,
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.HTTPRequestDuration,
		m.SubscribersCreated,
		m.SubscribersDeactivated,
		m.DigestsSent,
		m.DispatchRuns,
		m.DispatchRunDuration,
		m.DispatchOutcomes,
		m.ForecastFetches,
		m.CacheOps,
		m.CacheOpDuration,
		m.BusinessErrors,
		m.TechnicalErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, dbName),
	)

	return m
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware instruments Gin HTTP handlers for RED metrics.
func (m *Metrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		c.Next()
		m.HTTPRequestsInFlight.Dec()

		dur := time.Since(start).Seconds()
		status := c.Writer.Status()
		statusClass := fmt.Sprintf("%dxx", status/divisor)

		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), statusClass).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, c.FullPath()).Observe(dur)
	}
}

// RecordRun folds a finished dispatch run into the run metrics.
func (m *Metrics) RecordRun(duration time.Duration, sent, skipped, failed int) {
	m.DispatchRuns.Inc()
	m.DispatchRunDuration.Observe(duration.Seconds())
	m.DispatchOutcomes.WithLabelValues("sent").Add(float64(sent))
	m.DispatchOutcomes.WithLabelValues("skipped").Add(float64(skipped))
	m.DispatchOutcomes.WithLabelValues("failed").Add(float64(failed))
	m.DigestsSent.Add(float64(sent))
}
