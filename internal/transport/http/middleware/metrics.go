package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetricsOptions configures the HTTP metrics middleware.
type HTTPMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Subsystem  string
	Buckets    []float64
}

// HTTPMetrics exposes Prometheus collectors for request instrumentation.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
	Rejected *prometheus.CounterVec
}

// NewHTTPMetrics constructs collectors for HTTP request metrics and registers them with the provided registerer.
func NewHTTPMetrics(opts HTTPMetricsOptions) (*HTTPMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "abac"
	}

	subsystem := opts.Subsystem
	if subsystem == "" {
		subsystem = "http"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	requests, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_total",
		Help:      "Total number of HTTP requests partitioned by method, route, and status code.",
	}, []string{"method", "route", "status"}))
	if err != nil {
		return nil, fmt.Errorf("requests collector: %w", err)
	}

	duration, err := registerCollector(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Histogram of HTTP request latencies in seconds partitioned by method, route, and status code.",
		Buckets:   buckets,
	}, []string{"method", "route", "status"}))
	if err != nil {
		return nil, fmt.Errorf("duration collector: %w", err)
	}

	inFlight, err := registerCollector(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "in_flight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	}))
	if err != nil {
		return nil, fmt.Errorf("inflight collector: %w", err)
	}

	rejected, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rejected_requests_total",
		Help:      "Requests refused before reaching a handler: unauthenticated (401), denied (403) or throttled (429).",
	}, []string{"route", "status"}))
	if err != nil {
		return nil, fmt.Errorf("rejected collector: %w", err)
	}

	return &HTTPMetrics{
		Requests: requests,
		Duration: duration,
		InFlight: inFlight,
		Rejected: rejected,
	}, nil
}

func registerCollector[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return c, err
	}
	return c, nil
}

// Handler returns a Gin middleware that records the HTTP metrics.
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		code := c.Writer.Status()
		status := strconv.Itoa(code)
		labels := prometheus.Labels{
			"method": c.Request.Method,
			"route":  route,
			"status": status,
		}

		m.Requests.With(labels).Inc()
		m.Duration.With(labels).Observe(time.Since(start).Seconds())

		switch code {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
			if c.IsAborted() {
				m.Rejected.WithLabelValues(route, status).Inc()
			}
		}
	}
}
