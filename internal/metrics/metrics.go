// Package metrics registers the Prometheus instruments exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SliceJobsTotal counts jobs reaching a terminal status.
	SliceJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slicerd_slice_jobs_total",
		Help: "Slice jobs by terminal status.",
	}, []string{"status"})

	// SliceDuration observes wall-clock slicing time.
	SliceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slicerd_slice_duration_seconds",
		Help:    "Duration of slicing runs in seconds.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	})

	// ModelUploadBytes observes uploaded model sizes.
	ModelUploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slicerd_model_upload_bytes",
		Help:    "Size of uploaded model files in bytes.",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slicerd_http_requests_total",
		Help: "HTTP requests by method, route, and status code.",
	}, []string{"method", "route", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slicerd_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one completed HTTP request.
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
