// Package metrics defines the Prometheus collectors exported by both the
// server and worker binaries on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "saturn"

var (
	// RateLimitWaits counts retry sleeps inside Limiter.Acquire, labelled
	// by limiter and the window that blocked.
	RateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratelimit_waits_total",
		Help:      "Number of retry sleeps performed while waiting for rate-limit admission.",
	}, []string{"limiter", "window"})

	// TasksProcessed counts finished task executions by name and outcome
	// (ok, transient_error, fatal_error).
	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_processed_total",
		Help:      "Number of task executions, by task name and outcome.",
	}, []string{"task", "outcome"})

	// TasksSubmitted counts tasks pushed onto fabric lanes.
	TasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_submitted_total",
		Help:      "Number of tasks submitted to the dispatch fabric, by lane.",
	}, []string{"lane"})

	// RecordsInserted counts records handed to the sink, by series type.
	RecordsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_inserted_total",
		Help:      "Number of records written to the sink, by series type.",
	}, []string{"series"})
)
