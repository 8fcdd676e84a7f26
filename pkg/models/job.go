package models

import "time"

// JobKind identifies which pipeline pass a job record covers.
type JobKind string

const (
	JobCatalogSync  JobKind = "catalog_sync"
	JobScheduleSync JobKind = "schedule_sync"
	JobEpisodeSync  JobKind = "episode_sync"
	JobAutoupdate   JobKind = "autoupdate"
)

// JobStatus is the state of a job record. Finished jobs are immutable.
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// Job is one execution of a sync or autoupdate pass against one source.
type Job struct {
	ID         string     `json:"id" db:"id"`
	Kind       JobKind    `json:"kind" db:"kind"`
	SourceID   *int       `json:"source_id,omitempty" db:"source_id"`
	Status     JobStatus  `json:"status" db:"status"`
	Error      *string    `json:"error,omitempty" db:"error"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// JobLog is one append-only operational log line attached to a job.
type JobLog struct {
	ID        int64     `json:"id" db:"id"`
	JobID     string    `json:"job_id" db:"job_id"`
	Level     string    `json:"level" db:"level"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
