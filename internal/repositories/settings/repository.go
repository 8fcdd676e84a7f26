// Package settings persists the single-row operational configuration.
package settings

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles settings persistence. There is exactly one settings row;
// writes are guarded by an optimistic version check.
type Repository struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

// NewRepository creates a new settings repository
func NewRepository(db *sqlx.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Get returns the current settings. The row is seeded by migration, so a
// missing row is a deployment fault and reported as an error.
func (r *Repository) Get(ctx context.Context) (*models.Settings, error) {
	ctx, span := tracing.StartSpan(ctx, "settings.Repository.Get")
	defer span.End()

	query := `
		SELECT mode, enable_autoupdate, update_interval_minutes, dry_run_default,
			allowed_translation_types, allowed_translations, allowed_qualities,
			preferred_translation_priority, preferred_quality_priority,
			blacklist_titles, blacklist_external_ids, version, updated_at
		FROM settings
		WHERE id = 1
	`

	var entity models.Settings
	if err := sqlx.GetContext(ctx, database.FromContext(ctx, r.db), &entity, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get settings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get settings")
	}
	return &entity, nil
}

// Save writes the settings back, bumping the version. It fails with a
// conflict when the row moved since entity was read.
func (r *Repository) Save(ctx context.Context, entity *models.Settings, now time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "settings.Repository.Save")
	defer span.End()

	query := `
		UPDATE settings SET
			mode = :mode,
			enable_autoupdate = :enable_autoupdate,
			update_interval_minutes = :update_interval_minutes,
			dry_run_default = :dry_run_default,
			allowed_translation_types = :allowed_translation_types,
			allowed_translations = :allowed_translations,
			allowed_qualities = :allowed_qualities,
			preferred_translation_priority = :preferred_translation_priority,
			preferred_quality_priority = :preferred_quality_priority,
			blacklist_titles = :blacklist_titles,
			blacklist_external_ids = :blacklist_external_ids,
			version = :version + 1,
			updated_at = :updated_at
		WHERE id = 1 AND version = :version
	`

	entity.UpdatedAt = now
	result, err := sqlx.NamedExecContext(ctx, database.FromContext(ctx, r.db), query, entity)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to save settings")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save settings")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save settings")
	}
	if affected == 0 {
		return httperror.NewHTTPError(http.StatusConflict, "settings were modified concurrently")
	}

	entity.Version++
	return nil
}

// SetMode switches the scheduler mode directly, bypassing the optimistic
// check. Used by the emergency downgrade path, which must win over any
// concurrent edit.
func (r *Repository) SetMode(ctx context.Context, mode models.Mode, now time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "settings.Repository.SetMode")
	defer span.End()

	query := `
		UPDATE settings SET mode = $1, version = version + 1, updated_at = $2
		WHERE id = 1
	`

	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, string(mode), now); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("mode", mode).Error("Failed to set scheduler mode")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set scheduler mode")
	}
	return nil
}
