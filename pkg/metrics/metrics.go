// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal tracks sync runs by source and status
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs by source and status",
		},
		[]string{"source", "status"},
	)

	// SyncDuration tracks sync run duration in seconds
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of sync runs in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source"},
	)

	// StagingRecordsTotal tracks staged records by entity class and outcome
	StagingRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "staging",
			Name:      "records_total",
			Help:      "Total number of staging records by entity and outcome",
		},
		[]string{"entity", "outcome"},
	)

	// AutoupdateRunsTotal tracks autoupdate runs by status
	AutoupdateRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "autoupdate",
			Name:      "runs_total",
			Help:      "Total number of autoupdate runs by status",
		},
		[]string{"status"},
	)

	// AutoupdateConflictsTotal tracks manual-override conflicts found by autoupdate
	AutoupdateConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "autoupdate",
			Name:      "conflicts_total",
			Help:      "Total number of manual override conflicts flagged for review",
		},
	)

	// PublishTotal tracks publish operations by entity and status
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "publish",
			Name:      "operations_total",
			Help:      "Total number of publish operations by entity and status",
		},
		[]string{"entity", "status"},
	)

	// PublishBlockedTotal tracks publish operations rejected by compliance checks
	PublishBlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "publish",
			Name:      "blocked_total",
			Help:      "Total number of publish operations blocked by compliance checks",
		},
		[]string{"reason"},
	)

	// SchedulerCyclesTotal tracks scheduler poll cycles
	SchedulerCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Total number of scheduler poll cycles",
		},
	)

	// SchedulerJobsQueued tracks jobs queued by the scheduler by kind
	SchedulerJobsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "scheduler",
			Name:      "jobs_queued_total",
			Help:      "Total number of jobs queued by the scheduler",
		},
		[]string{"kind"},
	)

	// AdmissionRejectionsTotal tracks jobs rejected by the admission counter
	AdmissionRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "admission",
			Name:      "rejections_total",
			Help:      "Total number of jobs rejected because the worker pool was full",
		},
	)

	// JobsInFlight tracks jobs currently being processed
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "jobs",
			Name:      "in_flight",
			Help:      "Number of jobs currently being processed",
		},
	)

	// SourceRequestDuration tracks outbound provider request duration
	SourceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "source",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound provider requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)
)

// RecordSyncRun records a sync run metric
func RecordSyncRun(source, status string, durationSeconds float64) {
	SyncRunsTotal.WithLabelValues(source, status).Inc()
	SyncDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordStagingRecords records staging outcomes for one entity class
func RecordStagingRecords(entity string, persisted, skipped int) {
	StagingRecordsTotal.WithLabelValues(entity, "persisted").Add(float64(persisted))
	StagingRecordsTotal.WithLabelValues(entity, "skipped").Add(float64(skipped))
}

// RecordPublish records a publish operation metric
func RecordPublish(entity, status string) {
	PublishTotal.WithLabelValues(entity, status).Inc()
}

// RecordPublishBlocked records a publish operation rejected by a compliance check
func RecordPublishBlocked(reason string) {
	PublishBlockedTotal.WithLabelValues(reason).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}
