package models

// ClassCounts aggregates the outcome of one data class within a sync pass.
type ClassCounts struct {
	Fetched   int `json:"fetched"`
	Persisted int `json:"persisted"`
	Skipped   int `json:"skipped"`
}

// Add accumulates another set of counts.
func (c *ClassCounts) Add(other ClassCounts) {
	c.Fetched += other.Fetched
	c.Persisted += other.Persisted
	c.Skipped += other.Skipped
}

// SyncSummary is the result of one full sync pass across all sources.
type SyncSummary struct {
	Catalog  ClassCounts    `json:"catalog"`
	Schedule ClassCounts    `json:"schedule"`
	Episodes ClassCounts    `json:"episodes"`
	Errors   []string       `json:"errors,omitempty"`
	Preview  []AnimePreview `json:"preview,omitempty"`
}

// AnimePreview is one title's worth of fetched data in non-persist mode,
// grouped for dry inspection. It carries no database side effects.
type AnimePreview struct {
	SourceID int                     `json:"source_id"`
	Catalog  ExternalAnimeInput      `json:"catalog"`
	Episodes []ExternalEpisodeInput  `json:"episodes,omitempty"`
	Schedule []ExternalScheduleInput `json:"schedule,omitempty"`
}

// AutoupdateStatus is the terminal status of one autoupdate run.
type AutoupdateStatus string

const (
	AutoupdateDisabled AutoupdateStatus = "disabled"
	AutoupdateSuccess  AutoupdateStatus = "success"
	AutoupdateFailed   AutoupdateStatus = "failed"
	AutoupdateDropped  AutoupdateStatus = "dropped"
)

// AutoupdateSummary is the result of one autoupdate pass. The autoupdate path
// reports failure through Status rather than a propagated error.
type AutoupdateSummary struct {
	Status           AutoupdateStatus `json:"status"`
	ScheduleUpdated  int              `json:"schedule_updated"`
	ScheduleSkipped  int              `json:"schedule_skipped"`
	EpisodesInserted int              `json:"episodes_inserted"`
	EpisodesSkipped  int              `json:"episodes_skipped"`
	Conflicts        int              `json:"conflicts"`
	Error            string           `json:"error,omitempty"`
}

// PublishResult is the outcome of one publish call.
type PublishResult struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
	DryRun  bool   `json:"dry_run,omitempty"`
}

// FieldChange is one field-level difference between the canonical entity and
// the staged external data.
type FieldChange struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// PublishDiff is the non-mutating before/after comparison for a publish.
type PublishDiff struct {
	AnimeID string        `json:"anime_id,omitempty"`
	Created bool          `json:"created"`
	Changes []FieldChange `json:"changes"`
}
