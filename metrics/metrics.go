// Package metrics holds the prometheus collectors for the ROSCA daemon.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rosca_build_info",
			Help: "Build information of the ROSCA daemon",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rosca_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rosca_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rosca_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Engine metrics
	CirclesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rosca_circles_created_total",
			Help: "Total number of circles created",
		},
	)

	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rosca_payouts_total",
			Help: "Total number of payout settlements",
		},
		[]string{"status"}, // "success", "error"
	)

	PayoutVolumeTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rosca_payout_volume_total",
			Help: "Total gross volume settled across all circles",
		},
	)

	OperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rosca_operation_errors_total",
			Help: "Total number of engine operation failures",
		},
		[]string{"operation"},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// RecordPayout records the outcome of a payout settlement.
func RecordPayout(gross int64, err error) {
	if err != nil {
		PayoutsTotal.WithLabelValues("error").Inc()
		return
	}
	PayoutsTotal.WithLabelValues("success").Inc()
	PayoutVolumeTotal.Add(float64(gross))
}
