package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the service's Prometheus metrics. A nil *Collector is valid
// and records nothing.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	settingsOperations  *prometheus.CounterVec
	cacheLookups        *prometheus.CounterVec
}

// NewCollector creates a collector backed by its own registry.
func NewCollector(serviceName string) *Collector {
	prefix := strings.ReplaceAll(serviceName, "-", "_")

	c := &Collector{registry: prometheus.NewRegistry()}

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
	c.settingsOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_settings_operations_total",
			Help: "Notification settings operations by outcome",
		},
		[]string{"operation", "type", "outcome"},
	)
	c.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_settings_cache_lookups_total",
			Help: "Notification settings cache lookups",
		},
		[]string{"result"},
	)

	c.registry.MustRegister(
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.settingsOperations,
		c.cacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// SettingsOperation counts one manager operation.
func (c *Collector) SettingsOperation(operation, typ, outcome string) {
	if c == nil {
		return
	}
	c.settingsOperations.WithLabelValues(operation, typ, outcome).Inc()
}

// CacheHit counts a settings cache hit.
func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues("hit").Inc()
}

// CacheMiss counts a settings cache miss.
func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues("miss").Inc()
}

// Middleware records request count and latency per route.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if c == nil {
				return next(ctx)
			}
			start := time.Now()

			if err := next(ctx); err != nil {
				// Let the error handler write the response so the final status is known.
				ctx.Error(err)
			}

			status := ctx.Response().Status
			endpoint := ctx.Path()
			if endpoint == "" {
				endpoint = "unknown"
			}
			method := ctx.Request().Method

			c.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
			c.httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
