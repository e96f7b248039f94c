// Package upstream records metrics for calls to third-party HTTP APIs.
package upstream

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinpulse_upstream_requests_total",
			Help: "Total number of requests made to third-party APIs.",
		},
		[]string{"upstream", "code"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coinpulse_upstream_request_duration_seconds",
			Help:    "Third-party API request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"upstream"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
}

// Observe records one round trip to name. The code label is the HTTP status,
// or "error" when the request failed before a response arrived.
func Observe(name string, start time.Time, resp *http.Response, err error) {
	code := "error"
	if err == nil && resp != nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	requestsTotal.WithLabelValues(name, code).Inc()
	requestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}
