// Package telemetry exposes the server's Prometheus metrics: HTTP request
// counts and latencies plus the sign-in and billing outcomes the operators
// watch. All collectors live on a private registry served at /metrics.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medadmin"

// Login outcomes.
const (
	LoginSuccess       = "success"
	LoginInvalid       = "invalid_credentials"
	LoginNotRegistered = "not_registered"
	LoginRoleMismatch  = "role_mismatch"
	LoginUpstreamError = "upstream_error"
)

// Bill calculation outcomes.
const (
	BillOK              = "ok"
	BillPatientNotFound = "patient_not_found"
	BillMismatch        = "mismatched_counts"
	BillNoRate          = "no_rate"
	BillMalformedRate   = "malformed_rate"
	BillError           = "error"
)

// durationBuckets are request latency boundaries in seconds.
var durationBuckets = []float64{
	0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0,
}

// Metrics owns the collectors. The zero value is not usable; a nil *Metrics
// is, and records nothing, so services can be built without metrics in tests.
type Metrics struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	inFlight  prometheus.Gauge

	logins       *prometheus.CounterVec
	bills        *prometheus.CounterVec
	billTotal    prometheus.Histogram
	rateScanSize prometheus.Histogram
}

// New registers every collector on a fresh registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   durationBuckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Requests currently being served.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Sign-in attempts by outcome.",
		}, []string{"outcome"}),
		bills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_calculations_total",
			Help:      "Bill calculations by outcome.",
		}, []string{"outcome"}),
		billTotal: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bill_total_amount",
			Help:      "Distribution of computed bill totals.",
			Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
		}),
		rateScanSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "billing_rates_scanned",
			Help:      "Number of rate records loaded per bill calculation.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.durations, m.inFlight,
		m.logins, m.bills, m.billTotal, m.rateScanSize,
	)
	return m
}

// Registry returns the registry so callers can add their own collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// LoginAttempt counts a sign-in by outcome.
func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// BillCalculated counts a bill calculation by outcome.
func (m *Metrics) BillCalculated(outcome string) {
	if m == nil {
		return
	}
	m.bills.WithLabelValues(outcome).Inc()
}

// ObserveBill records a successful total and the number of rates consulted.
func (m *Metrics) ObserveBill(total float64, ratesScanned int) {
	if m == nil {
		return
	}
	m.billTotal.Observe(total)
	m.rateScanSize.Observe(float64(ratesScanned))
}

// Middleware records request counts and latency. The route label is the
// registered path pattern so ids do not explode cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			m.inFlight.Inc()
			defer m.inFlight.Dec()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.durations.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	}))
}
