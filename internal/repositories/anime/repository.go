// Package anime persists canonical titles.
package anime

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var columns = []string{
	"id", "name", "native_name", "english_name", "description", "poster_url",
	"year", "season", "airing_status", "state", "source", "is_locked",
	"locked_fields", "locked_by", "locked_at", "lock_reason", "release_id",
	"created_by", "updated_by", "deleted_at", "created_at", "updated_at",
}

// Repository handles canonical title persistence
type Repository struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

// NewRepository creates a new canonical title repository
func NewRepository(db *sqlx.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// GetByID returns the canonical title, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Anime, error) {
	return r.getByID(ctx, id, false)
}

// GetByIDForUpdate returns the canonical title with a row lock held for the
// remainder of the ambient transaction.
func (r *Repository) GetByIDForUpdate(ctx context.Context, id string) (*models.Anime, error) {
	return r.getByID(ctx, id, true)
}

func (r *Repository) getByID(ctx context.Context, id string, forUpdate bool) (*models.Anime, error) {
	ctx, span := tracing.StartSpan(ctx, "anime.Repository.getByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("animes")
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)
	if forUpdate {
		sb.ForUpdate()
	}

	query, args := sb.Build()
	var entity models.Anime
	if err := sqlx.GetContext(ctx, database.FromContext(ctx, r.db), &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get anime")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get anime")
	}
	return &entity, nil
}

// Create inserts a new canonical title.
func (r *Repository) Create(ctx context.Context, entity *models.Anime) error {
	ctx, span := tracing.StartSpan(ctx, "anime.Repository.Create")
	defer span.End()

	query := `
		INSERT INTO animes (
			id, name, native_name, english_name, description, poster_url,
			year, season, airing_status, state, source, is_locked,
			locked_fields, locked_by, locked_at, lock_reason, release_id,
			created_by, updated_by, created_at, updated_at
		) VALUES (
			:id, :name, :native_name, :english_name, :description, :poster_url,
			:year, :season, :airing_status, :state, :source, :is_locked,
			:locked_fields, :locked_by, :locked_at, :lock_reason, :release_id,
			:created_by, :updated_by, :created_at, :updated_at
		)
	`

	if _, err := sqlx.NamedExecContext(ctx, database.FromContext(ctx, r.db), query, entity); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", entity.ID).Error("Failed to create anime")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create anime")
	}
	return nil
}

// Update replaces the mutable columns of a canonical title. Callers are
// responsible for lock and state compliance; the repository writes what it is
// given.
func (r *Repository) Update(ctx context.Context, entity *models.Anime) error {
	ctx, span := tracing.StartSpan(ctx, "anime.Repository.Update")
	defer span.End()

	query := `
		UPDATE animes SET
			name = :name,
			native_name = :native_name,
			english_name = :english_name,
			description = :description,
			poster_url = :poster_url,
			year = :year,
			season = :season,
			airing_status = :airing_status,
			state = :state,
			source = :source,
			release_id = :release_id,
			updated_by = :updated_by,
			updated_at = :updated_at
		WHERE id = :id AND deleted_at IS NULL
	`

	if _, err := sqlx.NamedExecContext(ctx, database.FromContext(ctx, r.db), query, entity); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", entity.ID).Error("Failed to update anime")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update anime")
	}
	return nil
}

// UpdateState moves a canonical title to a new lifecycle state.
func (r *Repository) UpdateState(ctx context.Context, id string, state models.EntityState, updatedBy *string, now time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "anime.Repository.UpdateState")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("animes")
	sb.Set(
		sb.Assign("state", string(state)),
		sb.Assign("updated_by", updatedBy),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", id), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "state": state}).Error("Failed to update anime state")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update anime state")
	}
	return nil
}

// SetLock applies a manual edit lock. An empty fields set locks the whole
// entity.
func (r *Repository) SetLock(ctx context.Context, id string, fields []string, lockedBy *string, reason string, now time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "anime.Repository.SetLock")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("animes")
	sb.Set(
		sb.Assign("is_locked", true),
		sb.Assign("locked_fields", database.NewJSONB(fields)),
		sb.Assign("locked_by", lockedBy),
		sb.Assign("locked_at", now),
		sb.Assign("lock_reason", reason),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", id), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to lock anime")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock anime")
	}
	return nil
}

// ClearLock removes a manual edit lock.
func (r *Repository) ClearLock(ctx context.Context, id string, now time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "anime.Repository.ClearLock")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("animes")
	sb.Set(
		sb.Assign("is_locked", false),
		sb.Assign("locked_fields", database.NewJSONB([]string(nil))),
		sb.Assign("locked_by", nil),
		sb.Assign("locked_at", nil),
		sb.Assign("lock_reason", ""),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", id), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to unlock anime")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to unlock anime")
	}
	return nil
}

// GetByIDs returns canonical titles for the given ids.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]models.Anime, error) {
	ctx, span := tracing.StartSpan(ctx, "anime.Repository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("animes")
	sb.Where(
		sb.In("id", sqlbuilder.Flatten(ids)...),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var entities []models.Anime
	if err := sqlx.SelectContext(ctx, database.FromContext(ctx, r.db), &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get animes by ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get animes")
	}
	return entities, nil
}
