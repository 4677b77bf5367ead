// Package metrics registers the Prometheus collectors shared across the
// discovery pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts finished runs by strategy and terminal state.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "amc",
		Subsystem: "discovery",
		Name:      "runs_total",
		Help:      "Discovery runs by strategy and terminal state",
	}, []string{"strategy", "state"})

	// RunDuration observes end-to-end run latency.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "amc",
		Subsystem: "discovery",
		Name:      "run_duration_seconds",
		Help:      "End-to-end discovery run duration",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
	}, []string{"strategy"})

	// StageSurvivors records the out-count of each pipeline stage.
	StageSurvivors = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "amc",
		Subsystem: "discovery",
		Name:      "stage_survivors",
		Help:      "Rows surviving each pipeline stage in the latest run",
	}, []string{"strategy", "stage"})

	// RejectionsTotal histograms universe filter rejections by reason.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "amc",
		Subsystem: "discovery",
		Name:      "rejections_total",
		Help:      "Universe filter rejections by reason",
	}, []string{"strategy", "reason"})

	// EnrichmentFailures counts per-symbol enrichment failures.
	EnrichmentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "amc",
		Subsystem: "discovery",
		Name:      "enrichment_failures_total",
		Help:      "Symbols with at least one failed enrichment field",
	}, []string{"strategy"})

	// CachePublishes counts contender cache publishes by outcome.
	CachePublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "amc",
		Subsystem: "discovery",
		Name:      "cache_publishes_total",
		Help:      "Contender cache publishes by outcome",
	}, []string{"strategy", "outcome"})

	// QueueDepth tracks the job queue backlog.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "amc",
		Subsystem: "discovery",
		Name:      "queue_depth",
		Help:      "Jobs waiting in the runner queue",
	})

	// HTTPRequestDuration observes facade request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "amc",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration by route and status",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "status"})
)
