// Package externalepisode persists staged episode records.
package externalepisode

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
	"id", "external_anime_id", "source_id", "number", "stream_url",
	"translations", "qualities", "needs_review", "created_at", "updated_at",
}

// Repository handles staged episode persistence
type Repository struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

// NewRepository creates a new staged episode repository
func NewRepository(db *sqlx.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// UpsertMany stages a batch of episodes. Identity is (external_anime_id,
// source_id, number); a repeat upsert overwrites playback attributes only.
// animeIDByExternal maps a provider title id to the staged title row id;
// episodes whose title is not staged are counted as skipped.
func (r *Repository) UpsertMany(ctx context.Context, sourceID int, animeIDByExternal map[string]string, items []models.ExternalEpisodeInput, now time.Time) (models.ClassCounts, error) {
	ctx, span := tracing.StartSpan(ctx, "externalepisode.Repository.UpsertMany")
	defer span.End()

	counts := models.ClassCounts{Fetched: len(items)}
	ext := database.FromContext(ctx, r.db)

	query := `
		INSERT INTO external_episodes (
			id, external_anime_id, source_id, number, stream_url,
			translations, qualities, needs_review, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9)
		ON CONFLICT (external_anime_id, source_id, number) DO UPDATE SET
			stream_url = EXCLUDED.stream_url,
			translations = EXCLUDED.translations,
			qualities = EXCLUDED.qualities,
			updated_at = EXCLUDED.updated_at
	`

	for _, item := range items {
		externalAnimeID, ok := animeIDByExternal[item.ExternalID]
		if !ok {
			r.logger.WithContext(ctx).WithFields(map[string]any{
				"source_id":   sourceID,
				"external_id": item.ExternalID,
				"number":      item.Number,
			}).Debug("Skipping episode for unstaged title")
			counts.Skipped++
			continue
		}

		_, err := ext.ExecContext(ctx, query,
			uuid.New().String(), externalAnimeID, sourceID, item.Number,
			item.StreamURL,
			database.NewJSONB(item.Translations), database.NewJSONB(item.Qualities),
			now, now,
		)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"source_id":   sourceID,
				"external_id": item.ExternalID,
				"number":      item.Number,
			}).Error("Failed to upsert staged episode")
			return counts, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert staged episode %s/%d: %v", item.ExternalID, item.Number, err)
		}
		counts.Persisted++
	}

	return counts, nil
}

// ListByExternalAnime returns the staged episodes of one staged title.
func (r *Repository) ListByExternalAnime(ctx context.Context, externalAnimeID string) ([]models.ExternalEpisode, error) {
	ctx, span := tracing.StartSpan(ctx, "externalepisode.Repository.ListByExternalAnime")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("external_episodes")
	sb.Where(sb.Equal("external_anime_id", externalAnimeID))
	sb.OrderBy("number")

	query, args := sb.Build()
	var entities []models.ExternalEpisode
	if err := sqlx.SelectContext(ctx, database.FromContext(ctx, r.db), &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("external_anime_id", externalAnimeID).Error("Failed to list staged episodes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list staged episodes")
	}
	return entities, nil
}

// GetByIdentity returns one staged episode, or nil when absent.
func (r *Repository) GetByIdentity(ctx context.Context, externalAnimeID string, sourceID, number int) (*models.ExternalEpisode, error) {
	ctx, span := tracing.StartSpan(ctx, "externalepisode.Repository.GetByIdentity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("external_episodes")
	sb.Where(
		sb.Equal("external_anime_id", externalAnimeID),
		sb.Equal("source_id", sourceID),
		sb.Equal("number", number),
	)

	query, args := sb.Build()
	var entity models.ExternalEpisode
	if err := sqlx.GetContext(ctx, database.FromContext(ctx, r.db), &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"external_anime_id": externalAnimeID,
			"number":            number,
		}).Error("Failed to get staged episode")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get staged episode")
	}
	return &entity, nil
}

// GetByNumber returns the staged episode of one staged title by number, or
// nil when absent. A staged title belongs to exactly one source, so the pair
// is unique without the source id.
func (r *Repository) GetByNumber(ctx context.Context, externalAnimeID string, number int) (*models.ExternalEpisode, error) {
	ctx, span := tracing.StartSpan(ctx, "externalepisode.Repository.GetByNumber")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("external_episodes")
	sb.Where(
		sb.Equal("external_anime_id", externalAnimeID),
		sb.Equal("number", number),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var entity models.ExternalEpisode
	if err := sqlx.GetContext(ctx, database.FromContext(ctx, r.db), &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"external_anime_id": externalAnimeID,
			"number":            number,
		}).Error("Failed to get staged episode")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get staged episode")
	}
	return &entity, nil
}

// MarkNeedsReview flags a staged episode whose automated reconciliation was
// blocked by a manual override.
func (r *Repository) MarkNeedsReview(ctx context.Context, id string, now time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "externalepisode.Repository.MarkNeedsReview")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("external_episodes")
	sb.Set(sb.Assign("needs_review", true), sb.Assign("updated_at", now))
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to mark staged episode for review")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark staged episode for review")
	}
	return nil
}

// ListNeedsReview returns staged episodes flagged for manual review.
func (r *Repository) ListNeedsReview(ctx context.Context, limit int) ([]models.ExternalEpisode, error) {
	ctx, span := tracing.StartSpan(ctx, "externalepisode.Repository.ListNeedsReview")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("external_episodes")
	sb.Where(sb.Equal("needs_review", true))
	sb.OrderBy("updated_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var entities []models.ExternalEpisode
	if err := sqlx.SelectContext(ctx, database.FromContext(ctx, r.db), &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list staged episodes needing review")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list staged episodes")
	}
	return entities, nil
}
