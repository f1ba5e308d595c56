// Package observability exposes the Prometheus metrics surface.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "voyplan",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and status.",
		Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 15, 30, 60},
	}, []string{"method", "status"})

	requestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "voyplan",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Requests currently being served.",
	})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "voyplan",
		Subsystem: "planner",
		Name:      "stage_duration_seconds",
		Help:      "Planning pipeline stage latency.",
		Buckets:   []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120},
	}, []string{"stage"})
)

// ObserveStage records how long one planning stage took. Call it with the
// stage start time, usually via defer.
func ObserveStage(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Metrics records latency and in-flight counts for every request.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestsInFlight.Inc()
		defer requestsInFlight.Dec()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		requestDuration.WithLabelValues(r.Method, strconv.Itoa(recorder.status)).
			Observe(time.Since(start).Seconds())
	})
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
