// Package release persists release records.
package release

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

// Repository handles release persistence
type Repository struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

// NewRepository creates a new release repository
func NewRepository(db *sqlx.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Create inserts a release record.
func (r *Repository) Create(ctx context.Context, entity *models.Release) error {
	ctx, span := tracing.StartSpan(ctx, "release.Repository.Create")
	defer span.End()

	query := `
		INSERT INTO releases (id, anime_id, name, created_at)
		VALUES (:id, :anime_id, :name, :created_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, database.FromContext(ctx, r.db), query, entity); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("anime_id", entity.AnimeID).Error("Failed to create release")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create release")
	}
	return nil
}

// GetByAnimeID returns the release of one anime, or nil when absent.
func (r *Repository) GetByAnimeID(ctx context.Context, animeID string) (*models.Release, error) {
	ctx, span := tracing.StartSpan(ctx, "release.Repository.GetByAnimeID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "anime_id", "name", "created_at")
	sb.From("releases")
	sb.Where(sb.Equal("anime_id", animeID))

	query, args := sb.Build()
	var entity models.Release
	if err := sqlx.GetContext(ctx, database.FromContext(ctx, r.db), &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("anime_id", animeID).Error("Failed to get release")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get release")
	}
	return &entity, nil
}
