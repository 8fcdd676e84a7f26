package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

// EntityState is the lifecycle state of a canonical entity.
type EntityState string

const (
	StateDraft     EntityState = "draft"
	StatePending   EntityState = "pending"
	StatePublished EntityState = "published"
	StateBroken    EntityState = "broken"
	StateArchived  EntityState = "archived"
)

// EntitySource records which kind of actor authored a canonical entity.
// Once a entity is "manual", no automated writer may mutate it.
type EntitySource string

const (
	SourceManual EntitySource = "manual"
	SourceParser EntitySource = "parser"
	SourceImport EntitySource = "import"
)

// Anime is a canonical title in the content store.
// locked_fields semantics: null/empty with is_locked=true means the whole
// entity is locked; a non-empty set protects only the named fields.
type Anime struct {
	ID           string                   `json:"id" db:"id"`
	Name         string                   `json:"name" db:"name"`
	NativeName   string                   `json:"native_name" db:"native_name"`
	EnglishName  string                   `json:"english_name" db:"english_name"`
	Description  string                   `json:"description" db:"description"`
	PosterURL    string                   `json:"poster_url" db:"poster_url"`
	Year         int                      `json:"year" db:"year"`
	Season       string                   `json:"season" db:"season"`
	AiringStatus string                   `json:"airing_status" db:"airing_status"`
	State        EntityState              `json:"state" db:"state"`
	Source       EntitySource             `json:"source" db:"source"`
	IsLocked     bool                     `json:"is_locked" db:"is_locked"`
	LockedFields database.JSONB[[]string] `json:"locked_fields" db:"locked_fields"`
	LockedBy     *string                  `json:"locked_by,omitempty" db:"locked_by"`
	LockedAt     *time.Time               `json:"locked_at,omitempty" db:"locked_at"`
	LockReason   string                   `json:"lock_reason" db:"lock_reason"`
	ReleaseID    *string                  `json:"release_id,omitempty" db:"release_id"`
	CreatedBy    *string                  `json:"created_by,omitempty" db:"created_by"`
	UpdatedBy    *string                  `json:"updated_by,omitempty" db:"updated_by"`
	DeletedAt    *time.Time               `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt    time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at" db:"updated_at"`
}

// ProtectsField reports whether the entity's lock covers the given field.
// A lock with no named fields covers every field.
func (a *Anime) ProtectsField(field string) bool {
	if !a.IsLocked {
		return false
	}
	locked := a.LockedFields.Data
	if len(locked) == 0 {
		return true
	}
	for _, f := range locked {
		if f == field {
			return true
		}
	}
	return false
}

// Episode is a canonical episode of an anime.
type Episode struct {
	ID           string                        `json:"id" db:"id"`
	AnimeID      string                        `json:"anime_id" db:"anime_id"`
	Number       int                           `json:"number" db:"number"`
	Name         string                        `json:"name" db:"name"`
	StreamURL    string                        `json:"stream_url" db:"stream_url"`
	Translations database.JSONB[[]Translation] `json:"translations" db:"translations"`
	Qualities    database.JSONB[[]string]      `json:"qualities" db:"qualities"`
	State        EntityState                   `json:"state" db:"state"`
	Source       EntitySource                  `json:"source" db:"source"`
	IsLocked     bool                          `json:"is_locked" db:"is_locked"`
	LockedFields database.JSONB[[]string]      `json:"locked_fields" db:"locked_fields"`
	UpdatedBy    *string                       `json:"updated_by,omitempty" db:"updated_by"`
	DeletedAt    *time.Time                    `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt    time.Time                     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time                     `json:"updated_at" db:"updated_at"`
}

// ProtectsField reports whether the episode's lock covers the given field.
func (e *Episode) ProtectsField(field string) bool {
	if !e.IsLocked {
		return false
	}
	locked := e.LockedFields.Data
	if len(locked) == 0 {
		return true
	}
	for _, f := range locked {
		if f == field {
			return true
		}
	}
	return false
}

// Release groups the published episodes of a title. One is created on the
// first publish of an anime.
type Release struct {
	ID        string    `json:"id" db:"id"`
	AnimeID   string    `json:"anime_id" db:"anime_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Binding is the durable link from one staged external title to at most one
// canonical anime.
type Binding struct {
	ID              string    `json:"id" db:"id"`
	ExternalAnimeID string    `json:"external_anime_id" db:"external_anime_id"`
	AnimeID         string    `json:"anime_id" db:"anime_id"`
	CreatedBy       *string   `json:"created_by,omitempty" db:"created_by"`
	CreatedVia      string    `json:"created_via" db:"created_via"` // manual, publish
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
