// Package metrics provides Prometheus metrics for the fsbrowse daemon.
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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsbrowse_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fsbrowse_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsbrowse_operations_total",
			Help: "Browsing operations by name and result",
		},
		[]string{"op", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fsbrowse_operation_duration_seconds",
			Help:    "Browsing operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	entriesReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fsbrowse_entries_returned",
			Help:    "Entries in a listing result, counting every tree level",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"op"},
	)

	snapshotDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fsbrowse_snapshot_duration_seconds",
			Help:    "Time to walk and store one snapshot",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	snapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsbrowse_snapshots_total",
			Help: "Snapshot jobs by result",
		},
		[]string{"result"},
	)

	lastSnapshotEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fsbrowse_last_snapshot_entries",
			Help: "Entries stored by the most recent successful snapshot",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOperation records one browsing operation and its outcome.
func RecordOperation(op string, duration time.Duration, err error) {
	operationsTotal.WithLabelValues(op, result(err)).Inc()
	operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordEntries records the size of a listing result.
func RecordEntries(op string, count int) {
	entriesReturned.WithLabelValues(op).Observe(float64(count))
}

// RecordSnapshot records a finished snapshot job.
func RecordSnapshot(duration time.Duration, entries int64, err error) {
	snapshotsTotal.WithLabelValues(result(err)).Inc()
	if err != nil {
		return
	}
	snapshotDuration.Observe(duration.Seconds())
	lastSnapshotEntries.Set(float64(entries))
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
