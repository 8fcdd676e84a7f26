// Package job persists pipeline job records and their operational logs.
package job

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var columns = []string{"id", "kind", "source_id", "status", "error", "started_at", "finished_at"}

// Repository handles job record persistence
type Repository struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

// NewRepository creates a new job repository
func NewRepository(db *sqlx.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Start inserts a running job record and returns it.
func (r *Repository) Start(ctx context.Context, kind models.JobKind, sourceID *int, now time.Time) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.Start")
	defer span.End()

	entity := &models.Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		SourceID:  sourceID,
		Status:    models.JobRunning,
		StartedAt: now,
	}

	query := `
		INSERT INTO jobs (id, kind, source_id, status, started_at)
		VALUES (:id, :kind, :source_id, :status, :started_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, database.FromContext(ctx, r.db), query, entity); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("kind", kind).Error("Failed to start job record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start job record")
	}
	return entity, nil
}

// Finish marks a job as terminal. Finished jobs are never mutated again.
func (r *Repository) Finish(ctx context.Context, id string, status models.JobStatus, jobErr error, now time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.Finish")
	defer span.End()

	var errText *string
	if jobErr != nil {
		s := jobErr.Error()
		errText = &s
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("jobs")
	sb.Set(
		sb.Assign("status", string(status)),
		sb.Assign("error", errText),
		sb.Assign("finished_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", string(models.JobRunning)),
	)

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to finish job record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish job record")
	}
	return nil
}

// AppendLog attaches one operational log line to a job.
func (r *Repository) AppendLog(ctx context.Context, jobID, level, message string, now time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.AppendLog")
	defer span.End()

	query := `
		INSERT INTO job_logs (job_id, level, message, created_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, jobID, level, message, now); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("job_id", jobID).Error("Failed to append job log")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to append job log")
	}
	return nil
}

// Get returns one job record.
func (r *Repository) Get(ctx context.Context, id string) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("jobs")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var entity models.Job
	if err := sqlx.GetContext(ctx, database.FromContext(ctx, r.db), &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "job %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get job")
	}
	return &entity, nil
}

// ListRecent returns the most recent job records, optionally filtered by kind.
func (r *Repository) ListRecent(ctx context.Context, kind models.JobKind, limit int) ([]models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.ListRecent")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("jobs")
	if kind != "" {
		sb.Where(sb.Equal("kind", string(kind)))
	}
	sb.OrderBy("started_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var entities []models.Job
	if err := sqlx.SelectContext(ctx, database.FromContext(ctx, r.db), &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list jobs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list jobs")
	}
	return entities, nil
}

// ListLogs returns the log lines of one job in insertion order.
func (r *Repository) ListLogs(ctx context.Context, jobID string) ([]models.JobLog, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.ListLogs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "job_id", "level", "message", "created_at")
	sb.From("job_logs")
	sb.Where(sb.Equal("job_id", jobID))
	sb.OrderBy("id")

	query, args := sb.Build()
	var entities []models.JobLog
	if err := sqlx.SelectContext(ctx, database.FromContext(ctx, r.db), &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("job_id", jobID).Error("Failed to list job logs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list job logs")
	}
	return entities, nil
}

// GetLastSuccessful returns the most recent successful job of a kind for a
// source, or nil when none has succeeded yet.
func (r *Repository) GetLastSuccessful(ctx context.Context, kind models.JobKind, sourceID int) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.GetLastSuccessful")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("jobs")
	sb.Where(
		sb.Equal("kind", string(kind)),
		sb.Equal("source_id", sourceID),
		sb.Equal("status", string(models.JobSuccess)),
	)
	sb.OrderBy("finished_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var entity models.Job
	if err := sqlx.GetContext(ctx, database.FromContext(ctx, r.db), &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"kind": kind, "source_id": sourceID}).Error("Failed to get last successful job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get last successful job")
	}
	return &entity, nil
}
