package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueryDuration tracks similarity query latency.
	// Labels: backend (chromem, qdrant)
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apigov",
			Subsystem: "vectorstore",
			Name:      "query_duration_seconds",
			Help:      "Duration of policy index queries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// QueryErrors counts failed queries.
	// Labels: backend (chromem, qdrant)
	QueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apigov",
			Subsystem: "vectorstore",
			Name:      "query_errors_total",
			Help:      "Total number of failed policy index queries",
		},
		[]string{"backend"},
	)

	// DocumentsAdded counts documents written to the index.
	DocumentsAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apigov",
			Subsystem: "vectorstore",
			Name:      "documents_added_total",
			Help:      "Total number of policy documents added to the index",
		},
		[]string{"backend"},
	)
)
