// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RecomputeRuns counts snapshot recomputations by outcome (ok, partial, error, empty).
	RecomputeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperpulse_recompute_runs_total",
			Help: "Snapshot recomputations by outcome",
		},
		[]string{"outcome"},
	)

	// RecomputeDuration observes wall time of one snapshot recomputation.
	RecomputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "paperpulse_recompute_duration_seconds",
			Help:    "Duration of a snapshot recomputation in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
	)

	// ItemsScored counts scored items by the cascade state that produced them.
	ItemsScored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperpulse_items_scored_total",
			Help: "Items scored, by scoring state",
		},
		[]string{"state"},
	)

	// ScoreWriteFailures counts per-item score writes that failed.
	ScoreWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "paperpulse_score_write_failures_total",
			Help: "Score writes that failed during recomputation",
		},
	)

	// SourceErrors counts failed upstream fetches by source.
	SourceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperpulse_source_errors_total",
			Help: "Failed upstream fetches, by source",
		},
		[]string{"source"},
	)

	// PapersCollected counts papers returned by paper sources.
	PapersCollected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperpulse_papers_collected_total",
			Help: "Papers collected, by source",
		},
		[]string{"source"},
	)

	// CacheLookups counts count-cache lookups by result (hit, miss).
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperpulse_count_cache_lookups_total",
			Help: "Count cache lookups, by result",
		},
		[]string{"result"},
	)
)

// Registry is the registry all paperpulse collectors are registered with.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		RecomputeRuns,
		RecomputeDuration,
		ItemsScored,
		ScoreWriteFailures,
		SourceErrors,
		PapersCollected,
		CacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
