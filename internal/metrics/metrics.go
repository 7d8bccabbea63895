// Package metrics holds the Prometheus collectors shared by the volume
// manager and the HTTP API.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Detection metrics
var (
	// DetectionRuns counts refresh passes by result.
	DetectionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voltrack_detection_runs_total",
			Help: "Volume detection passes by result",
		},
		[]string{"result"},
	)

	// DetectionDuration observes how long a refresh pass takes.
	DetectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voltrack_detection_duration_seconds",
		Help:    "Duration of a volume detection pass in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})

	// VolumeChanges counts add/change/remove transitions seen by refresh.
	VolumeChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voltrack_volume_changes_total",
			Help: "Volume cache transitions by kind",
		},
		[]string{"kind"},
	)

	// VolumesKnown is the number of volumes in the cache.
	VolumesKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voltrack_volumes",
		Help: "Volumes currently known to the manager",
	})

	// VolumesTracked is the number of cached volumes tracked by a library.
	VolumesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voltrack_volumes_tracked",
		Help: "Volumes currently tracked by a library",
	})

	// TrackOperations counts track/untrack calls by result.
	TrackOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voltrack_track_operations_total",
			Help: "Track and untrack operations by result",
		},
		[]string{"operation", "result"},
	)
)

// HTTP metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voltrack_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voltrack_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Result is the label value for an operation outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Middleware records request counts and durations. route returns the label
// for a request, normally the router pattern, so ids never become labels.
func Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			label := route(r)
			if label == "" {
				label = "unmatched"
			}
			httpRequestsTotal.WithLabelValues(r.Method, label, strconv.Itoa(wrapped.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, label).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack supports websocket upgrades through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
