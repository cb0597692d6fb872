package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metadata",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "metadata",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metadata",
		Name:      "provider_requests_total",
		Help:      "Total requests to metadata providers by provider name and result status.",
	}, []string{"provider", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "metadata",
		Name:      "provider_request_duration_seconds",
		Help:      "Metadata provider request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"provider"})

	ProviderAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "metadata",
		Name:      "provider_available",
		Help:      "Whether a provider is available (1) or blocked by circuit breaker (0).",
	}, []string{"provider"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "metadata",
		Name:      "cache_hits_total",
		Help:      "Total number of resolve cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "metadata",
		Name:      "cache_misses_total",
		Help:      "Total number of resolve cache misses.",
	})

	CandidateScoreHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "metadata",
		Name:      "candidate_score",
		Help:      "Confidence scores assigned to provider candidates.",
		Buckets:   []float64{10, 25, 40, 55, 65, 75, 85, 95, 100},
	}, []string{"provider"})

	ResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metadata",
		Name:      "resolutions_total",
		Help:      "Book metadata resolutions by final outcome.",
	}, []string{"outcome"})

	CoverDownloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metadata",
		Name:      "cover_downloads_total",
		Help:      "Cover image downloads by result status.",
	}, []string{"status"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderAvailable,
		CacheHitsTotal,
		CacheMissesTotal,
		CandidateScoreHistogram,
		ResolutionsTotal,
		CoverDownloadsTotal,
	)
}
