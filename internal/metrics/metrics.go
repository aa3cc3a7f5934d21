package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shelter_coverage",
		Subsystem: "analysis",
		Name:      "runs_total",
		Help:      "Total analysis runs by shape kind",
	}, []string{"shape"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shelter_coverage",
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Duration of a full aggregation pass",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	AreaErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shelter_coverage",
		Subsystem: "analysis",
		Name:      "area_errors_total",
		Help:      "Population areas whose ring could not be built",
	})

	SessionsCleared = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shelter_coverage",
		Subsystem: "analysis",
		Name:      "sessions_cleared_total",
		Help:      "Total shape deletions",
	})

	RecordsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shelter_coverage",
		Subsystem: "ingestion",
		Name:      "records_total",
		Help:      "Records persisted by dataset",
	}, []string{"dataset"})

	IngestionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shelter_coverage",
		Subsystem: "ingestion",
		Name:      "errors_total",
		Help:      "Dataset load failures by dataset",
	}, []string{"dataset"})
)
