package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

// Mode controls whether the scheduler is allowed to queue automated work.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

const (
	// MinUpdateIntervalMinutes is the floor for the autoupdate re-check interval.
	MinUpdateIntervalMinutes = 30
	// MaxUpdateIntervalMinutes is the ceiling for the autoupdate re-check interval.
	MaxUpdateIntervalMinutes = 60
)

// Settings is the single-row, versioned operational configuration.
// It is read fresh per operation and never cached across a scheduling decision.
type Settings struct {
	Mode                  Mode `json:"mode" db:"mode"`
	EnableAutoupdate      bool `json:"enable_autoupdate" db:"enable_autoupdate"`
	UpdateIntervalMinutes int  `json:"update_interval_minutes" db:"update_interval_minutes"`
	DryRunDefault         bool `json:"dry_run_default" db:"dry_run_default"`

	// Allow-lists; empty means no restriction.
	AllowedTranslationTypes database.JSONB[[]string] `json:"allowed_translation_types" db:"allowed_translation_types"`
	AllowedTranslations     database.JSONB[[]string] `json:"allowed_translations" db:"allowed_translations"`
	AllowedQualities        database.JSONB[[]string] `json:"allowed_qualities" db:"allowed_qualities"`

	// Ordering lists; unlisted values sort last, stable by original order.
	PreferredTranslationPriority database.JSONB[[]string] `json:"preferred_translation_priority" db:"preferred_translation_priority"`
	PreferredQualityPriority     database.JSONB[[]string] `json:"preferred_quality_priority" db:"preferred_quality_priority"`

	BlacklistTitles      database.JSONB[[]string] `json:"blacklist_titles" db:"blacklist_titles"`
	BlacklistExternalIDs database.JSONB[[]string] `json:"blacklist_external_ids" db:"blacklist_external_ids"`

	Version   int       `json:"version" db:"version"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// EffectiveUpdateInterval clamps the configured autoupdate interval to [30, 60] minutes
// regardless of what was persisted.
func (s *Settings) EffectiveUpdateInterval() time.Duration {
	minutes := s.UpdateIntervalMinutes
	if minutes < MinUpdateIntervalMinutes {
		minutes = MinUpdateIntervalMinutes
	}
	if minutes > MaxUpdateIntervalMinutes {
		minutes = MaxUpdateIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// UpdateSettingsRequest is the admin API request for mutating settings.
type UpdateSettingsRequest struct {
	Mode                         *Mode     `json:"mode,omitempty" validate:"omitempty,oneof=manual auto"`
	EnableAutoupdate             *bool     `json:"enable_autoupdate,omitempty"`
	UpdateIntervalMinutes        *int      `json:"update_interval_minutes,omitempty" validate:"omitempty,min=1"`
	DryRunDefault                *bool     `json:"dry_run_default,omitempty"`
	AllowedTranslationTypes      *[]string `json:"allowed_translation_types,omitempty"`
	AllowedTranslations          *[]string `json:"allowed_translations,omitempty"`
	AllowedQualities             *[]string `json:"allowed_qualities,omitempty"`
	PreferredTranslationPriority *[]string `json:"preferred_translation_priority,omitempty"`
	PreferredQualityPriority     *[]string `json:"preferred_quality_priority,omitempty"`
	BlacklistTitles              *[]string `json:"blacklist_titles,omitempty"`
	BlacklistExternalIDs         *[]string `json:"blacklist_external_ids,omitempty"`
}
