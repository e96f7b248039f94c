package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	unmatched       = "unmatched"
	eventStreamType = "text/event-stream"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinpulse_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// Handlers that proxy NewsAPI or Coinbase can take up to the upstream
	// client timeout, so the buckets reach past DefBuckets.
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coinpulse_http_request_duration_seconds",
			Help:    "Duration of non-streaming HTTP requests in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"method", "path"},
	)

	eventStreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coinpulse_payment_event_streams_active",
			Help: "Number of open payment status event streams.",
		},
	)

	eventStreamDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coinpulse_payment_event_stream_duration_seconds",
			Help:    "Lifetime of payment status event streams in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(eventStreamsActive)
	prometheus.MustRegister(eventStreamDuration)
}

// metricsMiddleware counts every request by chi route pattern. Event streams
// stay open until the payment settles, so their lifetime goes to
// eventStreamDuration instead of the request latency histogram.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start).Seconds()
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		if ww.Header().Get("Content-Type") == eventStreamType {
			eventStreamDuration.Observe(duration)
			return
		}
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// trackEventStream marks an event stream open until the returned func runs.
func trackEventStream() func() {
	eventStreamsActive.Inc()
	return eventStreamsActive.Dec
}

// routePattern extracts the matched chi route pattern, falling back to "unmatched".
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
