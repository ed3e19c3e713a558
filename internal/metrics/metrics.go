package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scheduler metrics
	TicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "owl_notify_ticks_total",
			Help: "Total number of scheduler ticks",
		},
	)

	EvaluatorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owl_notify_evaluator_runs_total",
			Help: "Total number of evaluator runs",
		},
		[]string{"evaluator", "outcome"}, // outcome: ok, error, panic
	)

	EvaluatorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "owl_notify_evaluator_duration_seconds",
			Help:    "Evaluator run duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"evaluator"},
	)

	ConfigsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owl_notify_configs_processed_total",
			Help: "Total number of due configs handed to an evaluator",
		},
		[]string{"kind", "outcome"}, // outcome: ok, error, skipped
	)

	// Query metrics
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "owl_notify_query_duration_seconds",
			Help:    "Templated query execution time in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"reference_name"},
	)

	QueryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owl_notify_query_errors_total",
			Help: "Total number of templated queries that failed to render or execute",
		},
		[]string{"reference_name"},
	)

	// Entity metrics
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owl_notify_transitions_total",
			Help: "Total number of entity status transitions",
		},
		[]string{"evaluator", "status"},
	)

	// Event metrics
	EventsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owl_notify_events_created_total",
			Help: "Total number of notification event rows written",
		},
		[]string{"status", "notification_type"},
	)

	AnnounceErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "owl_notify_announce_errors_total",
			Help: "Total number of queue announcements that failed",
		},
	)
)
