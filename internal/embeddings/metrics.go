package embeddings

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationDuration tracks embedding latency.
	// Labels: model, operation (embed_documents, embed_query)
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apigov",
			Subsystem: "embedding",
			Name:      "generation_duration_seconds",
			Help:      "Duration of embedding generation in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"model", "operation"},
	)

	// GenerationErrors counts failed embedding calls.
	GenerationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apigov",
			Subsystem: "embedding",
			Name:      "errors_total",
			Help:      "Total number of failed embedding generations",
		},
		[]string{"model", "operation"},
	)
)

// instrumented records timing and error metrics around a Provider.
type instrumented struct {
	Provider
	model string
}

func instrument(p Provider, model string) Provider {
	return &instrumented{Provider: p, model: model}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	GenerationDuration.WithLabelValues(i.model, op).Observe(time.Since(start).Seconds())
	if err != nil {
		GenerationErrors.WithLabelValues(i.model, op).Inc()
	}
}

func (i *instrumented) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	out, err := i.Provider.EmbedDocuments(ctx, texts)
	i.observe("embed_documents", start, err)
	return out, err
}

func (i *instrumented) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	out, err := i.Provider.EmbedQuery(ctx, text)
	i.observe("embed_query", start, err)
	return out, err
}
