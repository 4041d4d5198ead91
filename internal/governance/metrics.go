package governance

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration tracks how long each stage takes.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apigov",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	// StageErrors counts errors recorded by stages.
	// Labels: stage, kind (ParseError, GenerationError, ...)
	StageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apigov",
			Subsystem: "pipeline",
			Name:      "stage_errors_total",
			Help:      "Total number of errors recorded by pipeline stages",
		},
		[]string{"stage", "kind"},
	)

	// RunsTotal counts pipeline runs.
	// Labels: outcome (ok, degraded, unchanged)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apigov",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	// VerdictsTotal counts verdicts produced, including degraded ones.
	// Labels: result (ok, error)
	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apigov",
			Subsystem: "pipeline",
			Name:      "verdicts_total",
			Help:      "Total number of validation verdicts produced",
		},
		[]string{"result"},
	)

	// PoliciesRetrieved tracks how many policies each retrieval returns.
	PoliciesRetrieved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "apigov",
			Subsystem: "pipeline",
			Name:      "policies_retrieved",
			Help:      "Number of policies returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		},
	)

	// GeneratorCalls counts text-generation calls per stage.
	// Labels: stage, result (ok, error)
	GeneratorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apigov",
			Subsystem: "pipeline",
			Name:      "generator_calls_total",
			Help:      "Total number of text-generation calls by stage",
		},
		[]string{"stage", "result"},
	)

	// GeneratorDuration tracks text-generation latency per stage.
	GeneratorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apigov",
			Subsystem: "pipeline",
			Name:      "generator_duration_seconds",
			Help:      "Duration of text-generation calls in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
)

// complete calls gen and records the call against stage.
func complete(ctx context.Context, gen TextGenerator, stage Phase, system, user string) (string, error) {
	start := time.Now()
	out, err := gen.Complete(ctx, system, user)
	GeneratorDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	GeneratorCalls.WithLabelValues(string(stage), result).Inc()
	return out, err
}
