// Package binding persists links between staged external titles and canonical
// animes.
package binding

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var columns = []string{"id", "external_anime_id", "anime_id", "created_by", "created_via", "created_at"}

// Repository handles binding persistence
type Repository struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

// NewRepository creates a new binding repository
func NewRepository(db *sqlx.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Create inserts a binding. The unique constraint on external_anime_id keeps
// an external title bound to at most one canonical anime.
func (r *Repository) Create(ctx context.Context, entity *models.Binding) error {
	ctx, span := tracing.StartSpan(ctx, "binding.Repository.Create")
	defer span.End()

	query := `
		INSERT INTO bindings (id, external_anime_id, anime_id, created_by, created_via, created_at)
		VALUES (:id, :external_anime_id, :anime_id, :created_by, :created_via, :created_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, database.FromContext(ctx, r.db), query, entity); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"external_anime_id": entity.ExternalAnimeID,
			"anime_id":          entity.AnimeID,
		}).Error("Failed to create binding")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create binding")
	}
	return nil
}

// GetByExternalAnimeID returns the binding for one staged title, or nil.
func (r *Repository) GetByExternalAnimeID(ctx context.Context, externalAnimeID string) (*models.Binding, error) {
	ctx, span := tracing.StartSpan(ctx, "binding.Repository.GetByExternalAnimeID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("bindings")
	sb.Where(sb.Equal("external_anime_id", externalAnimeID))

	query, args := sb.Build()
	var entity models.Binding
	if err := sqlx.GetContext(ctx, database.FromContext(ctx, r.db), &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("external_anime_id", externalAnimeID).Error("Failed to get binding")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get binding")
	}
	return &entity, nil
}

// ListByExternalAnimeIDs returns bindings for the given staged titles.
func (r *Repository) ListByExternalAnimeIDs(ctx context.Context, externalAnimeIDs []string) ([]models.Binding, error) {
	ctx, span := tracing.StartSpan(ctx, "binding.Repository.ListByExternalAnimeIDs")
	defer span.End()

	if len(externalAnimeIDs) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("bindings")
	sb.Where(sb.In("external_anime_id", sqlbuilder.Flatten(externalAnimeIDs)...))

	query, args := sb.Build()
	var entities []models.Binding
	if err := sqlx.SelectContext(ctx, database.FromContext(ctx, r.db), &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list bindings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list bindings")
	}
	return entities, nil
}

// ListByAnimeID returns the bindings pointing at one canonical anime.
func (r *Repository) ListByAnimeID(ctx context.Context, animeID string) ([]models.Binding, error) {
	ctx, span := tracing.StartSpan(ctx, "binding.Repository.ListByAnimeID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("bindings")
	sb.Where(sb.Equal("anime_id", animeID))

	query, args := sb.Build()
	var entities []models.Binding
	if err := sqlx.SelectContext(ctx, database.FromContext(ctx, r.db), &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("anime_id", animeID).Error("Failed to list bindings by anime")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list bindings")
	}
	return entities, nil
}
