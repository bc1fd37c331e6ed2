package echoapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Number of HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration)
}

// metricsMiddleware records request counts and latencies per route.
// Observation happens once the response is committed, after the error handler
// has resolved handler errors into their final status.
func metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		ctx.Response().After(func() {
			path := ctx.Path() // route pattern, not raw URL
			method := ctx.Request().Method
			status := ctx.Response().Status
			requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		})
		return next(ctx)
	}
}

func metricsHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
