// Package metrics exposes the Prometheus collectors used across the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docqa",
		Name:      "ratelimit_waits_total",
		Help:      "Times a caller had to wait for a sliding window to open.",
	}, []string{"window"})

	InFlightCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "docqa",
		Name:      "upstream_inflight_calls",
		Help:      "External service calls currently holding a concurrency slot.",
	})

	RecognitionCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docqa",
		Name:      "recognition_calls_total",
		Help:      "Recognition attempts by outcome.",
	}, []string{"outcome"})

	PagesExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docqa",
		Name:      "pages_extracted_total",
		Help:      "Pages processed by extraction method.",
	}, []string{"method"})

	ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "docqa",
		Name:      "extraction_duration_seconds",
		Help:      "Wall time of a full document extraction.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	Questions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docqa",
		Name:      "questions_total",
		Help:      "Answered questions by result.",
	}, []string{"result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docqa",
		Name:      "http_requests_total",
		Help:      "API requests by route and status code.",
	}, []string{"route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "docqa",
		Name:      "http_request_duration_seconds",
		Help:      "API request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
