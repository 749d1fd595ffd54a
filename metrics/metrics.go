// Package metrics defines the prometheus metrics exported by the speedtest
// server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveRequests counts requests currently being served, by endpoint.
	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "speedtest_active_requests",
			Help: "A gauge of requests currently being served, by endpoint.",
		},
		[]string{"endpoint"})

	// RequestCount counts completed requests by endpoint and status code.
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speedtest_requests_total",
			Help: "Number of requests served, by endpoint and status code.",
		},
		[]string{"endpoint", "code"})

	// BytesTransferred counts payload bytes moved, by direction.
	BytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speedtest_bytes_total",
			Help: "Payload bytes served (download) or drained (upload).",
		},
		[]string{"direction"})

	// RequestDuration tracks how long each endpoint takes to complete.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "speedtest_request_duration_seconds",
			Help: "A histogram of request durations, by endpoint.",
			Buckets: []float64{
				.001, .0025, .005, .01, .025, .05, .1, .25, .5,
				1, 2.5, 5, 10, 25, 50},
		},
		[]string{"endpoint"},
	)
)
