// Package telemetry exposes Prometheus collectors for the database
// connection manager, the text generation client and the HTTP surface.
// Every method is safe to call on a nil *Metrics, so components can run
// without metrics wired in.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Statement attempt outcomes.
const (
	OutcomeOK              = "ok"
	OutcomeConnectionError = "connection_error"
	OutcomeStatementError  = "statement_error"
)

type Metrics struct {
	registry *prometheus.Registry

	statementAttempts *prometheus.CounterVec
	reconnects        prometheus.Counter
	generations       *prometheus.CounterVec
	generationLatency *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New builds a Metrics with its own registry, so tests and multiple
// instances never collide on the global default registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		statementAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_statement_attempts_total",
				Help: "Statement execution attempts by outcome",
			},
			[]string{"outcome"},
		),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "db_reconnects_total",
			Help: "Database connections discarded after a connection-level failure",
		}),
		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_generations_total",
				Help: "Text generation calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		generationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ai_generation_duration_seconds",
				Help:    "Wall-clock time spent waiting for text generation",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 20.0, 30.0},
			},
			[]string{"operation"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.statementAttempts,
		m.reconnects,
		m.generations,
		m.generationLatency,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) StatementAttempt(outcome string) {
	if m == nil {
		return
	}
	m.statementAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// Generation records one text generation call. outcome is "generated" or a
// degradation reason.
func (m *Metrics) Generation(operation, outcome string, waited time.Duration) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(operation, outcome).Inc()
	m.generationLatency.WithLabelValues(operation).Observe(waited.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.httpRequests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
