// Package episode persists canonical episodes.
package episode

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

var columns = []string{
	"id", "anime_id", "number", "name", "stream_url", "translations",
	"qualities", "state", "source", "is_locked", "locked_fields",
	"updated_by", "deleted_at", "created_at", "updated_at",
}

// Repository handles canonical episode persistence
type Repository struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

// NewRepository creates a new canonical episode repository
func NewRepository(db *sqlx.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// GetByAnimeAndNumber returns one canonical episode, or nil when absent.
func (r *Repository) GetByAnimeAndNumber(ctx context.Context, animeID string, number int) (*models.Episode, error) {
	ctx, span := tracing.StartSpan(ctx, "episode.Repository.GetByAnimeAndNumber")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("episodes")
	sb.Where(
		sb.Equal("anime_id", animeID),
		sb.Equal("number", number),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var entity models.Episode
	if err := sqlx.GetContext(ctx, database.FromContext(ctx, r.db), &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"anime_id": animeID, "number": number}).Error("Failed to get episode")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get episode")
	}
	return &entity, nil
}

// ListByAnime returns the canonical episodes of one anime ordered by number.
func (r *Repository) ListByAnime(ctx context.Context, animeID string) ([]models.Episode, error) {
	ctx, span := tracing.StartSpan(ctx, "episode.Repository.ListByAnime")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("episodes")
	sb.Where(
		sb.Equal("anime_id", animeID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("number")

	query, args := sb.Build()
	var entities []models.Episode
	if err := sqlx.SelectContext(ctx, database.FromContext(ctx, r.db), &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("anime_id", animeID).Error("Failed to list episodes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list episodes")
	}
	return entities, nil
}

// Create inserts a new canonical episode.
func (r *Repository) Create(ctx context.Context, entity *models.Episode) error {
	ctx, span := tracing.StartSpan(ctx, "episode.Repository.Create")
	defer span.End()

	query := `
		INSERT INTO episodes (
			id, anime_id, number, name, stream_url, translations, qualities,
			state, source, is_locked, locked_fields, updated_by,
			created_at, updated_at
		) VALUES (
			:id, :anime_id, :number, :name, :stream_url, :translations, :qualities,
			:state, :source, :is_locked, :locked_fields, :updated_by,
			:created_at, :updated_at
		)
	`

	if _, err := sqlx.NamedExecContext(ctx, database.FromContext(ctx, r.db), query, entity); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"anime_id": entity.AnimeID, "number": entity.Number}).Error("Failed to create episode")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create episode")
	}
	return nil
}

// InsertMissing inserts an episode only when (anime_id, number) does not exist
// yet. It reports whether a row was inserted; an existing row, manual or not,
// is left untouched.
func (r *Repository) InsertMissing(ctx context.Context, animeID string, number int, name, streamURL string, translations []models.Translation, qualities []string, now time.Time) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "episode.Repository.InsertMissing")
	defer span.End()

	query := `
		INSERT INTO episodes (
			id, anime_id, number, name, stream_url, translations, qualities,
			state, source, is_locked, locked_fields, updated_by,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10, NULL, $11, $11)
		ON CONFLICT (anime_id, number) DO NOTHING
	`

	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		uuid.New().String(), animeID, number, name, streamURL,
		database.NewJSONB(translations), database.NewJSONB(qualities),
		string(models.StatePending), string(models.SourceParser),
		database.NewJSONB([]string(nil)), now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"anime_id": animeID, "number": number}).Error("Failed to insert episode")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert episode")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert episode")
	}
	return affected > 0, nil
}

// Update replaces the mutable columns of a canonical episode. Lock and state
// compliance belongs to the caller.
func (r *Repository) Update(ctx context.Context, entity *models.Episode) error {
	ctx, span := tracing.StartSpan(ctx, "episode.Repository.Update")
	defer span.End()

	query := `
		UPDATE episodes SET
			name = :name,
			stream_url = :stream_url,
			translations = :translations,
			qualities = :qualities,
			state = :state,
			source = :source,
			updated_by = :updated_by,
			updated_at = :updated_at
		WHERE id = :id AND deleted_at IS NULL
	`

	if _, err := sqlx.NamedExecContext(ctx, database.FromContext(ctx, r.db), query, entity); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", entity.ID).Error("Failed to update episode")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update episode")
	}
	return nil
}
