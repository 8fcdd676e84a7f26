// Package externalanime persists staged catalog titles.
package externalanime

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
	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var columns = []string{
	"id", "source_id", "external_id", "title", "title_native", "title_english",
	"description", "poster_url", "year", "season", "status", "genres",
	"related_ids", "fingerprint", "last_seen_at", "created_at", "updated_at",
}

// Repository handles staged catalog title persistence
type Repository struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

// NewRepository creates a new staged title repository
func NewRepository(db *sqlx.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// fingerprintPayload is the attribute set covered by change detection.
// Bookkeeping columns (last_seen_at, timestamps) are deliberately outside it.
type fingerprintPayload struct {
	Title        string                `json:"title"`
	TitleNative  string                `json:"title_native"`
	TitleEnglish string                `json:"title_english"`
	Description  string                `json:"description"`
	PosterURL    string                `json:"poster_url"`
	Year         int                   `json:"year"`
	Season       string                `json:"season"`
	Status       models.ExternalStatus `json:"status"`
	Genres       []string              `json:"genres"`
	RelatedIDs   []string              `json:"related_ids"`
}

// UpsertMany stages a batch of catalog titles for one source. Identity is
// (source_id, external_id). Every row refreshes last_seen_at; attribute
// columns and updated_at change only when the fingerprint moved. The returned
// counts classify each item as persisted (new or changed) or skipped (seen,
// unchanged).
func (r *Repository) UpsertMany(ctx context.Context, sourceID int, items []models.ExternalAnimeInput, now time.Time) (models.ClassCounts, error) {
	ctx, span := tracing.StartSpan(ctx, "externalanime.Repository.UpsertMany")
	defer span.End()

	counts := models.ClassCounts{Fetched: len(items)}
	ext := database.FromContext(ctx, r.db)

	query := `
		INSERT INTO external_animes (
			id, source_id, external_id, title, title_native, title_english,
			description, poster_url, year, season, status, genres, related_ids,
			fingerprint, last_seen_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (source_id, external_id) DO UPDATE SET
			title = EXCLUDED.title,
			title_native = EXCLUDED.title_native,
			title_english = EXCLUDED.title_english,
			description = EXCLUDED.description,
			poster_url = EXCLUDED.poster_url,
			year = EXCLUDED.year,
			season = EXCLUDED.season,
			status = EXCLUDED.status,
			genres = EXCLUDED.genres,
			related_ids = EXCLUDED.related_ids,
			last_seen_at = EXCLUDED.last_seen_at,
			updated_at = CASE
				WHEN external_animes.fingerprint IS DISTINCT FROM EXCLUDED.fingerprint
				THEN EXCLUDED.updated_at
				ELSE external_animes.updated_at
			END,
			fingerprint = EXCLUDED.fingerprint
		RETURNING (xmax = 0) OR (updated_at = $17) AS persisted
	`

	for _, item := range items {
		fp, err := fingerprint.Generate(fingerprintPayload{
			Title:        item.Title,
			TitleNative:  item.TitleNative,
			TitleEnglish: item.TitleEnglish,
			Description:  item.Description,
			PosterURL:    item.PosterURL,
			Year:         item.Year,
			Season:       item.Season,
			Status:       item.Status,
			Genres:       item.Genres,
			RelatedIDs:   item.RelatedIDs,
		})
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"source_id":   sourceID,
				"external_id": item.ExternalID,
			}).Error("Failed to fingerprint staged title")
			counts.Skipped++
			continue
		}

		var persisted bool
		err = sqlx.GetContext(ctx, ext, &persisted, query,
			uuid.New().String(), sourceID, item.ExternalID,
			item.Title, item.TitleNative, item.TitleEnglish,
			item.Description, item.PosterURL, item.Year, item.Season, item.Status,
			database.NewJSONB(item.Genres), database.NewJSONB(item.RelatedIDs),
			fp, now, now, now,
		)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"source_id":   sourceID,
				"external_id": item.ExternalID,
			}).Error("Failed to upsert staged title")
			return counts, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert staged title %s: %v", item.ExternalID, err)
		}

		if persisted {
			counts.Persisted++
		} else {
			counts.Skipped++
		}
	}

	return counts, nil
}

// GetBySourceAndExternalID returns the staged title, or nil when absent.
func (r *Repository) GetBySourceAndExternalID(ctx context.Context, sourceID int, externalID string) (*models.ExternalAnime, error) {
	ctx, span := tracing.StartSpan(ctx, "externalanime.Repository.GetBySourceAndExternalID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("external_animes")
	sb.Where(
		sb.Equal("source_id", sourceID),
		sb.Equal("external_id", externalID),
	)

	query, args := sb.Build()
	var entity models.ExternalAnime
	if err := sqlx.GetContext(ctx, database.FromContext(ctx, r.db), &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source_id":   sourceID,
			"external_id": externalID,
		}).Error("Failed to get staged title")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get staged title")
	}
	return &entity, nil
}

// GetByIDs returns the staged titles for the given row ids.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]models.ExternalAnime, error) {
	ctx, span := tracing.StartSpan(ctx, "externalanime.Repository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("external_animes")
	sb.Where(sb.In("id", sqlbuilder.Flatten(ids)...))

	query, args := sb.Build()
	var entities []models.ExternalAnime
	if err := sqlx.SelectContext(ctx, database.FromContext(ctx, r.db), &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("ids", ids).Error("Failed to get staged titles by ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get staged titles")
	}
	return entities, nil
}

// ListExternalIDs returns every staged external id for a source.
func (r *Repository) ListExternalIDs(ctx context.Context, sourceID int) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "externalanime.Repository.ListExternalIDs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("external_id")
	sb.From("external_animes")
	sb.Where(sb.Equal("source_id", sourceID))
	sb.OrderBy("external_id")

	query, args := sb.Build()
	var ids []string
	if err := sqlx.SelectContext(ctx, database.FromContext(ctx, r.db), &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("source_id", sourceID).Error("Failed to list staged external ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list staged titles")
	}
	return ids, nil
}

// MapIDsByExternal returns a provider-external-id to staged-row-id map for a
// source.
func (r *Repository) MapIDsByExternal(ctx context.Context, sourceID int) (map[string]string, error) {
	ctx, span := tracing.StartSpan(ctx, "externalanime.Repository.MapIDsByExternal")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "external_id")
	sb.From("external_animes")
	sb.Where(sb.Equal("source_id", sourceID))

	query, args := sb.Build()
	var rows []struct {
		ID         string `db:"id"`
		ExternalID string `db:"external_id"`
	}
	if err := sqlx.SelectContext(ctx, database.FromContext(ctx, r.db), &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("source_id", sourceID).Error("Failed to map staged titles")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to map staged titles")
	}

	byExternal := make(map[string]string, len(rows))
	for _, row := range rows {
		byExternal[row.ExternalID] = row.ID
	}
	return byExternal, nil
}

// ListOngoing returns staged titles a source currently reports as ongoing.
func (r *Repository) ListOngoing(ctx context.Context, sourceID int) ([]models.ExternalAnime, error) {
	ctx, span := tracing.StartSpan(ctx, "externalanime.Repository.ListOngoing")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("external_animes")
	sb.Where(
		sb.Equal("source_id", sourceID),
		sb.Equal("status", string(models.ExternalStatusOngoing)),
	)
	sb.OrderBy("external_id")

	query, args := sb.Build()
	var entities []models.ExternalAnime
	if err := sqlx.SelectContext(ctx, database.FromContext(ctx, r.db), &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("source_id", sourceID).Error("Failed to list ongoing staged titles")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list staged titles")
	}
	return entities, nil
}
