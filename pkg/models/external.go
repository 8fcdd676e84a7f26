package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

// ExternalStatus is the airing status a source reports for a title.
type ExternalStatus string

const (
	ExternalStatusAnnounced ExternalStatus = "announced"
	ExternalStatusOngoing   ExternalStatus = "ongoing"
	ExternalStatusReleased  ExternalStatus = "released"
)

// Translation is one audio/subtitle track offered by a source.
type Translation struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Kind string `json:"kind"` // voice, subtitles
}

// ExternalAnime is one title as staged from one source.
// Identity is (source_id, external_id); an upsert replaces all attributes and
// refreshes last_seen_at and the fingerprint.
type ExternalAnime struct {
	ID           string                   `json:"id" db:"id"`
	SourceID     int                      `json:"source_id" db:"source_id"`
	ExternalID   string                   `json:"external_id" db:"external_id"`
	Title        string                   `json:"title" db:"title"`
	TitleNative  string                   `json:"title_native" db:"title_native"`
	TitleEnglish string                   `json:"title_english" db:"title_english"`
	Description  string                   `json:"description" db:"description"`
	PosterURL    string                   `json:"poster_url" db:"poster_url"`
	Year         int                      `json:"year" db:"year"`
	Season       string                   `json:"season" db:"season"`
	Status       ExternalStatus           `json:"status" db:"status"`
	Genres       database.JSONB[[]string] `json:"genres" db:"genres"`
	RelatedIDs   database.JSONB[[]string] `json:"related_ids" db:"related_ids"`
	Fingerprint  string                   `json:"fingerprint" db:"fingerprint"`
	LastSeenAt   time.Time                `json:"last_seen_at" db:"last_seen_at"`
	CreatedAt    time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at" db:"updated_at"`
}

// ExternalAnimeInput is one catalog record as fetched from a source adapter.
type ExternalAnimeInput struct {
	ExternalID   string         `json:"external_id"`
	Title        string         `json:"title"`
	TitleNative  string         `json:"title_native"`
	TitleEnglish string         `json:"title_english"`
	Description  string         `json:"description"`
	PosterURL    string         `json:"poster_url"`
	Year         int            `json:"year"`
	Season       string         `json:"season"`
	Status       ExternalStatus `json:"status"`
	Genres       []string       `json:"genres"`
	RelatedIDs   []string       `json:"related_ids"`
}

// ExternalEpisode is one episode as staged from one source.
// Identity is (external_anime_id, source_id, number); a second upsert on the
// same identity overwrites playback attributes only.
type ExternalEpisode struct {
	ID              string                        `json:"id" db:"id"`
	ExternalAnimeID string                        `json:"external_anime_id" db:"external_anime_id"`
	SourceID        int                           `json:"source_id" db:"source_id"`
	Number          int                           `json:"number" db:"number"`
	StreamURL       string                        `json:"stream_url" db:"stream_url"`
	Translations    database.JSONB[[]Translation] `json:"translations" db:"translations"`
	Qualities       database.JSONB[[]string]      `json:"qualities" db:"qualities"`
	NeedsReview     bool                          `json:"needs_review" db:"needs_review"`
	CreatedAt       time.Time                     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time                     `json:"updated_at" db:"updated_at"`
}

// ExternalEpisodeInput is one episode record as fetched from a source adapter.
// ExternalID refers to the anime's id at the source.
type ExternalEpisodeInput struct {
	ExternalID   string        `json:"external_id"`
	Number       int           `json:"number"`
	StreamURL    string        `json:"stream_url"`
	Translations []Translation `json:"translations"`
	Qualities    []string      `json:"qualities"`
}

// ExternalSchedule is a predicted or confirmed air slot. Rows exist only once
// the external title is bound to a canonical anime.
type ExternalSchedule struct {
	ID            string    `json:"id" db:"id"`
	AnimeID       string    `json:"anime_id" db:"anime_id"`
	SourceID      int       `json:"source_id" db:"source_id"`
	Number        int       `json:"number" db:"number"`
	AirAt         time.Time `json:"air_at" db:"air_at"`
	SourceURL     string    `json:"source_url" db:"source_url"`
	Fingerprint   string    `json:"fingerprint" db:"fingerprint"`
	LastCheckedAt time.Time `json:"last_checked_at" db:"last_checked_at"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// ExternalScheduleInput is one schedule record as fetched from a source adapter.
type ExternalScheduleInput struct {
	ExternalID string    `json:"external_id"`
	Number     int       `json:"number"`
	AirAt      time.Time `json:"air_at"`
	SourceURL  string    `json:"source_url"`
}
