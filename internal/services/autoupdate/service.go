// Package autoupdate reconciles ongoing titles against their sources: it
// refreshes air slots, fetches freshly aired episodes, and inserts the
// canonical episodes that are still missing. Manual edits always win; a
// conflicting staged episode is flagged for review instead of overwritten.
package autoupdate

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/appctx"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/source"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// StagedTitleStore reads staged catalog titles.
type StagedTitleStore interface {
	ListOngoing(ctx context.Context, sourceID int) ([]models.ExternalAnime, error)
}

// StagedEpisodeStore stages and flags episode records.
type StagedEpisodeStore interface {
	UpsertMany(ctx context.Context, sourceID int, animeIDByExternal map[string]string, items []models.ExternalEpisodeInput, now time.Time) (models.ClassCounts, error)
	GetByIdentity(ctx context.Context, externalAnimeID string, sourceID, number int) (*models.ExternalEpisode, error)
	MarkNeedsReview(ctx context.Context, id string, now time.Time) error
}

// ScheduleStore reads and refreshes air slots.
type ScheduleStore interface {
	UpsertMany(ctx context.Context, sourceID int, animeIDByExternal map[string]string, items []models.ExternalScheduleInput, now time.Time) (models.ClassCounts, error)
	ListAired(ctx context.Context, animeIDs []string, now time.Time) ([]models.ExternalSchedule, error)
	TouchChecked(ctx context.Context, ids []string, now time.Time) error
}

// BindingStore resolves staged titles to canonical animes.
type BindingStore interface {
	ListByExternalAnimeIDs(ctx context.Context, externalAnimeIDs []string) ([]models.Binding, error)
}

// EpisodeStore reads and inserts canonical episodes.
type EpisodeStore interface {
	GetByAnimeAndNumber(ctx context.Context, animeID string, number int) (*models.Episode, error)
	InsertMissing(ctx context.Context, animeID string, number int, name, streamURL string, translations []models.Translation, qualities []string, now time.Time) (bool, error)
}

// JobStore records pipeline job executions.
type JobStore interface {
	Start(ctx context.Context, kind models.JobKind, sourceID *int, now time.Time) (*models.Job, error)
	Finish(ctx context.Context, id string, status models.JobStatus, jobErr error, now time.Time) error
	AppendLog(ctx context.Context, jobID, level, message string, now time.Time) error
}

// SettingsStore reads the operational configuration.
type SettingsStore interface {
	Get(ctx context.Context) (*models.Settings, error)
}

// TxManager runs a function inside one database transaction.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ConflictEmitter announces flagged conflicts after they commit.
type ConflictEmitter interface {
	EmitAutoupdateConflict(ctx context.Context, animeID string, number int, sourceID int) error
}

// Service runs autoupdate passes.
type Service struct {
	registry     *source.Registry
	stagedTitles StagedTitleStore
	stagedEps    StagedEpisodeStore
	schedules    ScheduleStore
	bindings     BindingStore
	episodes     EpisodeStore
	jobs         JobStore
	settings     SettingsStore
	tx           TxManager
	emitter      ConflictEmitter
	episodeBatch int
	logger       ectologger.Logger
}

// NewService creates an autoupdate service. episodeBatch bounds how many
// titles are asked for episodes in one pass per source.
func NewService(
	registry *source.Registry,
	stagedTitles StagedTitleStore,
	stagedEps StagedEpisodeStore,
	schedules ScheduleStore,
	bindings BindingStore,
	episodes EpisodeStore,
	jobs JobStore,
	settings SettingsStore,
	tx TxManager,
	emitter ConflictEmitter,
	episodeBatch int,
	logger ectologger.Logger,
) *Service {
	return &Service{
		registry:     registry,
		stagedTitles: stagedTitles,
		stagedEps:    stagedEps,
		schedules:    schedules,
		bindings:     bindings,
		episodes:     episodes,
		jobs:         jobs,
		settings:     settings,
		tx:           tx,
		emitter:      emitter,
		episodeBatch: episodeBatch,
		logger:       logger,
	}
}

// conflict is a flagged manual-override collision, emitted after commit.
type conflict struct {
	animeID  string
	number   int
	sourceID int
}

// Run executes one autoupdate pass. It never propagates an error: failures
// roll back the pass and surface through the summary's Status and Error
// fields. force bypasses the enable flag and the per-slot recency check.
func (s *Service) Run(ctx context.Context, force bool) *models.AutoupdateSummary {
	ctx, span := tracing.StartSpan(ctx, "autoupdate.Service.Run")
	defer span.End()

	summary := &models.AutoupdateSummary{}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return s.failed(ctx, summary, nil, err)
	}
	if !settings.EnableAutoupdate && !force {
		summary.Status = models.AutoupdateDisabled
		metrics.AutoupdateRunsTotal.WithLabelValues(string(summary.Status)).Inc()
		return summary
	}

	interval := settings.EffectiveUpdateInterval()
	now := time.Now().UTC()

	job, err := s.jobs.Start(ctx, models.JobAutoupdate, nil, now)
	if err != nil {
		return s.failed(ctx, summary, nil, err)
	}
	ctx = appctx.SetJobID(ctx, job.ID)

	var conflicts []conflict
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		for _, adapter := range s.registry.All() {
			found, err := s.updateSource(ctx, adapter, interval, force, now, summary)
			if err != nil {
				return fmt.Errorf("source %s: %w", adapter.Name(), err)
			}
			conflicts = append(conflicts, found...)
		}
		return nil
	})
	if err != nil {
		return s.failed(ctx, summary, job, err)
	}

	summary.Status = models.AutoupdateSuccess
	metrics.AutoupdateRunsTotal.WithLabelValues(string(summary.Status)).Inc()

	finishedAt := time.Now().UTC()
	if logErr := s.jobs.AppendLog(ctx, job.ID, "info", fmt.Sprintf(
		"schedule_updated=%d schedule_skipped=%d episodes_inserted=%d episodes_skipped=%d conflicts=%d",
		summary.ScheduleUpdated, summary.ScheduleSkipped,
		summary.EpisodesInserted, summary.EpisodesSkipped, summary.Conflicts,
	), finishedAt); logErr != nil {
		s.logger.WithContext(ctx).WithError(logErr).Warn("Failed to append autoupdate job log")
	}
	if finErr := s.jobs.Finish(ctx, job.ID, models.JobSuccess, nil, finishedAt); finErr != nil {
		s.logger.WithContext(ctx).WithError(finErr).Warn("Failed to finish autoupdate job record")
	}

	for _, c := range conflicts {
		if emitErr := s.emitter.EmitAutoupdateConflict(ctx, c.animeID, c.number, c.sourceID); emitErr != nil {
			s.logger.WithContext(ctx).WithError(emitErr).Warn("Conflict event emission failed")
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"episodes_inserted": summary.EpisodesInserted,
		"conflicts":         summary.Conflicts,
	}).Info("Autoupdate pass finished")

	return summary
}

func (s *Service) failed(ctx context.Context, summary *models.AutoupdateSummary, job *models.Job, err error) *models.AutoupdateSummary {
	summary.Status = models.AutoupdateFailed
	summary.Error = err.Error()
	metrics.AutoupdateRunsTotal.WithLabelValues(string(summary.Status)).Inc()

	s.logger.WithContext(ctx).WithError(err).Error("Autoupdate pass failed")

	if job != nil {
		if finErr := s.jobs.Finish(ctx, job.ID, models.JobFailed, err, time.Now().UTC()); finErr != nil {
			s.logger.WithContext(ctx).WithError(finErr).Warn("Failed to finish autoupdate job record")
		}
	}
	return summary
}

// updateSource reconciles one source. The scope is ongoing staged titles that
// are bound to a canonical anime; everything else is invisible to autoupdate.
// The schedule refresh runs first so that slots the source reports for the
// first time are reconciled within the same pass.
func (s *Service) updateSource(ctx context.Context, adapter source.Adapter, interval time.Duration, force bool, now time.Time, summary *models.AutoupdateSummary) ([]conflict, error) {
	ctx, span := tracing.StartSpan(ctx, "autoupdate.Service.updateSource")
	defer span.End()

	titles, err := s.stagedTitles.ListOngoing(ctx, adapter.ID())
	if err != nil {
		return nil, err
	}
	if len(titles) == 0 {
		return nil, nil
	}

	rowIDs := make([]string, 0, len(titles))
	externalByRow := make(map[string]string, len(titles))
	rowIDByExternal := make(map[string]string, len(titles))
	for _, t := range titles {
		rowIDs = append(rowIDs, t.ID)
		externalByRow[t.ID] = t.ExternalID
		rowIDByExternal[t.ExternalID] = t.ID
	}

	bindings, err := s.bindings.ListByExternalAnimeIDs(ctx, rowIDs)
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		return nil, nil
	}

	animeIDs := make([]string, 0, len(bindings))
	animeIDByExternal := make(map[string]string, len(bindings))
	rowByAnime := make(map[string]string, len(bindings))
	for _, b := range bindings {
		animeIDs = append(animeIDs, b.AnimeID)
		animeIDByExternal[externalByRow[b.ExternalAnimeID]] = b.AnimeID
		rowByAnime[b.AnimeID] = b.ExternalAnimeID
	}

	// The recency check has to see when each slot was last reconciled, not
	// the timestamp the refresh below is about to write, so the existing
	// check times are captured first.
	preRefresh, err := s.schedules.ListAired(ctx, animeIDs, now)
	if err != nil {
		return nil, err
	}
	lastChecked := make(map[string]time.Time, len(preRefresh))
	for _, slot := range preRefresh {
		lastChecked[slotKey(slot.AnimeID, slot.Number)] = slot.LastCheckedAt
	}

	scheduleItems, err := adapter.FetchSchedule(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.schedules.UpsertMany(ctx, adapter.ID(), animeIDByExternal, scheduleItems, now)
	if err != nil {
		return nil, err
	}
	summary.ScheduleUpdated += counts.Persisted
	summary.ScheduleSkipped += counts.Skipped

	aired, err := s.schedules.ListAired(ctx, animeIDs, now)
	if err != nil {
		return nil, err
	}

	var due []models.ExternalSchedule
	for _, slot := range aired {
		checked, known := lastChecked[slotKey(slot.AnimeID, slot.Number)]
		if !force && known && now.Sub(checked) < interval {
			summary.EpisodesSkipped++
			continue
		}
		due = append(due, slot)
	}

	return s.reconcileEpisodes(ctx, adapter, due, externalByRow, rowIDByExternal, rowByAnime, now, summary)
}

func slotKey(animeID string, number int) string {
	return fmt.Sprintf("%s#%d", animeID, number)
}

// reconcileEpisodes fetches episodes for the due slots (bounded to
// episodeBatch distinct titles), stages them, and inserts the canonical
// episodes that do not exist yet.
func (s *Service) reconcileEpisodes(ctx context.Context, adapter source.Adapter, due []models.ExternalSchedule, externalByRow, rowIDByExternal, rowByAnime map[string]string, now time.Time, summary *models.AutoupdateSummary) ([]conflict, error) {
	if len(due) == 0 {
		return nil, nil
	}

	var externalIDs []string
	seen := make(map[string]bool)
	batched := make(map[string]bool)
	for _, slot := range due {
		externalID := externalByRow[rowByAnime[slot.AnimeID]]
		if externalID == "" || seen[externalID] {
			continue
		}
		if len(externalIDs) >= s.episodeBatch {
			break
		}
		seen[externalID] = true
		batched[externalID] = true
		externalIDs = append(externalIDs, externalID)
	}

	items, err := adapter.FetchEpisodes(ctx, externalIDs)
	if err != nil {
		return nil, err
	}
	if _, err := s.stagedEps.UpsertMany(ctx, adapter.ID(), rowIDByExternal, items, now); err != nil {
		return nil, err
	}

	var conflicts []conflict
	var touched []string
	for _, slot := range due {
		rowID := rowByAnime[slot.AnimeID]
		if !batched[externalByRow[rowID]] {
			// Left for the next pass by the batch bound.
			continue
		}
		touched = append(touched, slot.ID)

		staged, err := s.stagedEps.GetByIdentity(ctx, rowID, slot.SourceID, slot.Number)
		if err != nil {
			return nil, err
		}
		if staged == nil {
			summary.EpisodesSkipped++
			continue
		}

		current, err := s.episodes.GetByAnimeAndNumber(ctx, slot.AnimeID, slot.Number)
		if err != nil {
			return nil, err
		}

		switch {
		case current == nil:
			inserted, err := s.episodes.InsertMissing(ctx, slot.AnimeID, slot.Number,
				fmt.Sprintf("Episode %d", slot.Number), staged.StreamURL,
				staged.Translations.Data, staged.Qualities.Data, now)
			if err != nil {
				return nil, err
			}
			if inserted {
				summary.EpisodesInserted++
			} else {
				summary.EpisodesSkipped++
			}

		case current.Source == models.SourceManual:
			if err := s.stagedEps.MarkNeedsReview(ctx, staged.ID, now); err != nil {
				return nil, err
			}
			summary.Conflicts++
			metrics.AutoupdateConflictsTotal.Inc()
			conflicts = append(conflicts, conflict{animeID: slot.AnimeID, number: slot.Number, sourceID: slot.SourceID})

			s.logger.WithContext(ctx).WithFields(map[string]any{
				"anime_id": slot.AnimeID,
				"number":   slot.Number,
				"source":   adapter.Name(),
			}).Warn("Staged episode conflicts with manual edit, flagged for review")

		default:
			summary.EpisodesSkipped++
		}
	}

	if err := s.schedules.TouchChecked(ctx, touched, now); err != nil {
		return nil, err
	}
	return conflicts, nil
}
