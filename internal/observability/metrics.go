package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhotosIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "starshot",
		Name:      "photos_ingested_total",
		Help:      "Total number of photo placeholders accepted for processing",
	}, []string{"event_id"})

	PhotosProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "starshot",
		Name:      "photos_processed_total",
		Help:      "Total number of photos that finished extraction, by outcome",
	}, []string{"outcome"}) // processed | failed | orphaned

	FacesExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "starshot",
		Name:      "faces_extracted_total",
		Help:      "Total number of face descriptors extracted from event photos",
	})

	ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "starshot",
		Name:      "extraction_duration_seconds",
		Help:      "Duration of face-engine extraction calls",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	SelfiesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "starshot",
		Name:      "selfies_submitted_total",
		Help:      "Total number of fan selfies submitted",
	})

	MatchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "starshot",
		Name:      "match_requests_total",
		Help:      "Total number of selfie match requests, by outcome",
	}, []string{"outcome"}) // matched | empty | unavailable | error

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "starshot",
		Name:      "queue_depth",
		Help:      "Number of pending extraction tasks in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "starshot",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "starshot",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
