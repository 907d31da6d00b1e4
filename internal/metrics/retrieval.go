package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval and calibration Prometheus metrics.
var (
	RetrievalRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semdex",
			Name:      "retrieval_runs_total",
			Help:      "Total number of concept retrieval runs",
		},
		[]string{"concept", "status"},
	)

	RetrievalMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semdex",
			Name:      "retrieval_matches_total",
			Help:      "Total paragraphs admitted above threshold",
		},
		[]string{"concept"},
	)

	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "semdex",
			Name:      "retrieval_duration_seconds",
			Help:      "Concept retrieval duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"concept"},
	)

	CalibrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semdex",
			Name:      "calibrations_total",
			Help:      "Total threshold calibrations",
		},
		[]string{"concept", "status"},
	)

	IndexSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "semdex",
			Name:      "index_size_paragraphs",
			Help:      "Paragraphs held per region index",
		},
		[]string{"region"},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers retrieval metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(RetrievalRunsTotal)
	prometheus.MustRegister(RetrievalMatchesTotal)
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(CalibrationsTotal)
	prometheus.MustRegister(IndexSize)
	retrievalMetricsRegistered = true
}
