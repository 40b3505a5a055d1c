package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric outcome label values.
const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeEmpty    = "empty"
	outcomeNotFound = "not_found"
)

// engineMetrics holds all Prometheus metrics owned by the engine. Instruments
// register against the registry supplied in Options, so tests can inject a
// fresh prometheus.Registry without polluting the default one.
type engineMetrics struct {
	// ingestDocuments counts ingested files, partitioned by outcome.
	ingestDocuments *prometheus.CounterVec

	// ingestFragments counts fragments committed to the store.
	ingestFragments prometheus.Counter

	// queries counts queries, partitioned by outcome: "ok", "empty"
	// (corpus without fragments), "not_found", or "error".
	queries *prometheus.CounterVec

	// queryDuration records end-to-end query latency, expansion included.
	queryDuration prometheus.Histogram

	// queryConfidence records the confidence score distribution.
	queryConfidence prometheus.Histogram

	// corporaReaped counts corpora removed by TTL eviction.
	corporaReaped prometheus.Counter
}

// newEngineMetrics registers all engine metrics against reg and returns the
// populated engineMetrics.
func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	factory := promauto.With(reg)

	return &engineMetrics{
		ingestDocuments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragengine",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of files processed by ingestion, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestFragments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragengine",
			Subsystem: "ingest",
			Name:      "fragments_total",
			Help:      "Total number of fragments committed to the corpus store.",
		}),

		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragengine",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of queries answered, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragengine",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end query latency including expansion, embedding, and search.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),

		queryConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragengine",
			Subsystem: "query",
			Name:      "confidence",
			Help:      "Distribution of confidence scores for answered queries.",
			Buckets:   []float64{30, 40, 50, 60, 70, 80, 90, 95},
		}),

		corporaReaped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragengine",
			Subsystem: "corpus",
			Name:      "reaped_total",
			Help:      "Total number of idle corpora removed by TTL eviction.",
		}),
	}
}
