package http

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	requestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	provisionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_provision_total",
			Help: "Total number of site provisioning attempts by outcome",
		},
		[]string{"action", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(requestCounter, requestDurationHistogram, provisionCounter)
}

const serviceName = "wordpress-service"

// MetricsMiddleware records request counts and latency per route.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		requestCounter.WithLabelValues(serviceName, c.Request.Method, path, status).Inc()
		requestDurationHistogram.WithLabelValues(serviceName, c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// recordProvisionOutcome tracks saga outcomes for dashboards.
func recordProvisionOutcome(action string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	provisionCounter.WithLabelValues(action, outcome).Inc()
}
