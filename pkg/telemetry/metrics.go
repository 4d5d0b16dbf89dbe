package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── API ─────────────────────────────────────────────────────────────────────

	APITasksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpulse",
		Subsystem: "api",
		Name:      "tasks_created_total",
		Help:      "Total tasks created through the API.",
	}, []string{"priority"})

	APIJobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpulse",
		Subsystem: "api",
		Name:      "jobs_enqueued_total",
		Help:      "Jobs enqueued by the orchestrator, labelled by job type and outcome.",
	}, []string{"job_type", "outcome"})

	APIRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskpulse",
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})

	// ─── Worker ──────────────────────────────────────────────────────────────────

	WorkerJobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpulse",
		Subsystem: "worker",
		Name:      "jobs_processed_total",
		Help:      "Total jobs processed, labelled by job type and result.",
	}, []string{"job_type", "result"})

	WorkerJobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskpulse",
		Subsystem: "worker",
		Name:      "jobs_inflight",
		Help:      "Jobs currently being handled.",
	})

	WorkerJobDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskpulse",
		Subsystem: "worker",
		Name:      "job_duration_seconds",
		Help:      "End-to-end job handling time in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"job_type"})

	WorkerRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpulse",
		Subsystem: "worker",
		Name:      "retries_total",
		Help:      "Total retry attempts.",
	}, []string{"job_type"})

	WorkerDLQTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskpulse",
		Subsystem: "worker",
		Name:      "dlq_total",
		Help:      "Total jobs forwarded to the dead-letter queue.",
	})

	// ─── Scanner ─────────────────────────────────────────────────────────────────

	ScannerRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskpulse",
		Subsystem: "scanner",
		Name:      "runs_total",
		Help:      "Total completed overdue scans.",
	})

	ScannerOverdueFound = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskpulse",
		Subsystem: "scanner",
		Name:      "overdue_found_total",
		Help:      "Overdue tasks found across all scans.",
	})

	ScannerOverdueEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskpulse",
		Subsystem: "scanner",
		Name:      "overdue_enqueued_total",
		Help:      "Overdue-mark jobs successfully enqueued across all scans.",
	})
)
