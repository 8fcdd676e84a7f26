// Package externalschedule persists predicted air slots for bound titles.
package externalschedule

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
	"id", "anime_id", "source_id", "number", "air_at", "source_url",
	"fingerprint", "last_checked_at", "created_at", "updated_at",
}

// Repository handles air slot persistence
type Repository struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

// NewRepository creates a new schedule repository
func NewRepository(db *sqlx.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

type fingerprintPayload struct {
	AirAt     time.Time `json:"air_at"`
	SourceURL string    `json:"source_url"`
}

// UpsertMany stages a batch of air slots. Schedule rows exist only for
// external titles already bound to a canonical anime; animeIDByExternal maps
// provider title ids to canonical anime ids and unbound slots are skipped.
// Every row refreshes last_checked_at; attributes and updated_at move only
// when the fingerprint changed.
func (r *Repository) UpsertMany(ctx context.Context, sourceID int, animeIDByExternal map[string]string, items []models.ExternalScheduleInput, now time.Time) (models.ClassCounts, error) {
	ctx, span := tracing.StartSpan(ctx, "externalschedule.Repository.UpsertMany")
	defer span.End()

	counts := models.ClassCounts{Fetched: len(items)}
	ext := database.FromContext(ctx, r.db)

	query := `
		INSERT INTO external_schedules (
			id, anime_id, source_id, number, air_at, source_url,
			fingerprint, last_checked_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (anime_id, source_id, number) DO UPDATE SET
			air_at = EXCLUDED.air_at,
			source_url = EXCLUDED.source_url,
			last_checked_at = EXCLUDED.last_checked_at,
			updated_at = CASE
				WHEN external_schedules.fingerprint IS DISTINCT FROM EXCLUDED.fingerprint
				THEN EXCLUDED.updated_at
				ELSE external_schedules.updated_at
			END,
			fingerprint = EXCLUDED.fingerprint
		RETURNING (xmax = 0) OR (updated_at = $10) AS persisted
	`

	for _, item := range items {
		animeID, ok := animeIDByExternal[item.ExternalID]
		if !ok {
			counts.Skipped++
			continue
		}

		fp, err := fingerprint.Generate(fingerprintPayload{
			AirAt:     item.AirAt.UTC(),
			SourceURL: item.SourceURL,
		})
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"source_id":   sourceID,
				"external_id": item.ExternalID,
				"number":      item.Number,
			}).Error("Failed to fingerprint air slot")
			counts.Skipped++
			continue
		}

		var persisted bool
		err = sqlx.GetContext(ctx, ext, &persisted, query,
			uuid.New().String(), animeID, sourceID, item.Number,
			item.AirAt.UTC(), item.SourceURL, fp, now, now, now,
		)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"source_id": sourceID,
				"anime_id":  animeID,
				"number":    item.Number,
			}).Error("Failed to upsert air slot")
			return counts, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert air slot %s/%d: %v", item.ExternalID, item.Number, err)
		}

		if persisted {
			counts.Persisted++
		} else {
			counts.Skipped++
		}
	}

	return counts, nil
}

// ListByAnime returns the known air slots for one canonical anime.
func (r *Repository) ListByAnime(ctx context.Context, animeID string) ([]models.ExternalSchedule, error) {
	ctx, span := tracing.StartSpan(ctx, "externalschedule.Repository.ListByAnime")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("external_schedules")
	sb.Where(sb.Equal("anime_id", animeID))
	sb.OrderBy("number")

	query, args := sb.Build()
	var entities []models.ExternalSchedule
	if err := sqlx.SelectContext(ctx, database.FromContext(ctx, r.db), &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("anime_id", animeID).Error("Failed to list air slots")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list air slots")
	}
	return entities, nil
}

// ListAired returns slots for the given animes whose air time has passed.
func (r *Repository) ListAired(ctx context.Context, animeIDs []string, now time.Time) ([]models.ExternalSchedule, error) {
	ctx, span := tracing.StartSpan(ctx, "externalschedule.Repository.ListAired")
	defer span.End()

	if len(animeIDs) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("external_schedules")
	sb.Where(
		sb.In("anime_id", sqlbuilder.Flatten(animeIDs)...),
		sb.LessEqualThan("air_at", now),
	)
	sb.OrderBy("anime_id", "number")

	query, args := sb.Build()
	var entities []models.ExternalSchedule
	if err := sqlx.SelectContext(ctx, database.FromContext(ctx, r.db), &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list aired slots")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list aired slots")
	}
	return entities, nil
}

// TouchChecked refreshes last_checked_at on a set of slots without changing
// their attributes.
func (r *Repository) TouchChecked(ctx context.Context, ids []string, now time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "externalschedule.Repository.TouchChecked")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("external_schedules")
	sb.Set(sb.Assign("last_checked_at", now))
	sb.Where(sb.In("id", sqlbuilder.Flatten(ids)...))

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to touch air slots")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to touch air slots")
	}
	return nil
}
