// Package sync runs the staging pipeline: fetch external catalog, episode,
// and schedule data and reconcile it into the staging tables.
package sync

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

// CatalogStore persists staged catalog titles.
type CatalogStore interface {
	UpsertMany(ctx context.Context, sourceID int, items []models.ExternalAnimeInput, now time.Time) (models.ClassCounts, error)
	MapIDsByExternal(ctx context.Context, sourceID int) (map[string]string, error)
}

// EpisodeStore persists staged episodes.
type EpisodeStore interface {
	UpsertMany(ctx context.Context, sourceID int, animeIDByExternal map[string]string, items []models.ExternalEpisodeInput, now time.Time) (models.ClassCounts, error)
}

// ScheduleStore persists staged air slots.
type ScheduleStore interface {
	UpsertMany(ctx context.Context, sourceID int, animeIDByExternal map[string]string, items []models.ExternalScheduleInput, now time.Time) (models.ClassCounts, error)
}

// BindingStore resolves staged titles to canonical animes.
type BindingStore interface {
	ListByExternalAnimeIDs(ctx context.Context, externalAnimeIDs []string) ([]models.Binding, error)
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

// Options control one sync pass.
type Options struct {
	// Persist stages fetched data. When false the pass is a preview: data is
	// fetched and filtered but nothing is written, not even job records.
	Persist bool
	// Publish is accepted for forward compatibility but always rejected: the
	// sync pipeline stops at the staging boundary.
	Publish bool
}

// Service runs sync passes across the registered sources.
type Service struct {
	registry  *source.Registry
	catalog   CatalogStore
	episodes  EpisodeStore
	schedules ScheduleStore
	bindings  BindingStore
	jobs      JobStore
	settings  SettingsStore
	logger    ectologger.Logger
}

// NewService creates a sync service.
func NewService(
	registry *source.Registry,
	catalog CatalogStore,
	episodes EpisodeStore,
	schedules ScheduleStore,
	bindings BindingStore,
	jobs JobStore,
	settings SettingsStore,
	logger ectologger.Logger,
) *Service {
	return &Service{
		registry:  registry,
		catalog:   catalog,
		episodes:  episodes,
		schedules: schedules,
		bindings:  bindings,
		jobs:      jobs,
		settings:  settings,
		logger:    logger,
	}
}

// SyncAll runs one pass over every registered source. A failing source never
// aborts the others; its error is recorded in the summary and the pass
// continues.
func (s *Service) SyncAll(ctx context.Context, opts Options) (*models.SyncSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "sync.Service.SyncAll")
	defer span.End()

	summary := &models.SyncSummary{}

	if opts.Publish {
		summary.Errors = append(summary.Errors, "publishing from sync is disabled; use the publish endpoints")
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	for _, adapter := range s.registry.All() {
		if err := s.syncSource(ctx, adapter, settings, opts, summary); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("source", adapter.Name()).Error("Source sync failed")
			summary.Errors = append(summary.Errors, fmt.Sprintf("source %s: %v", adapter.Name(), err))
		}
	}

	return summary, nil
}

// SyncSource runs one pass for a single source.
func (s *Service) SyncSource(ctx context.Context, sourceID int, opts Options) (*models.SyncSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "sync.Service.SyncSource")
	defer span.End()

	adapter, err := s.registry.Get(sourceID)
	if err != nil {
		return nil, err
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	summary := &models.SyncSummary{}
	if opts.Publish {
		summary.Errors = append(summary.Errors, "publishing from sync is disabled; use the publish endpoints")
	}
	if err := s.syncSource(ctx, adapter, settings, opts, summary); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("source %s: %v", adapter.Name(), err))
	}
	return summary, nil
}

func (s *Service) syncSource(ctx context.Context, adapter source.Adapter, settings *models.Settings, opts Options, summary *models.SyncSummary) error {
	started := time.Now()
	filter := NewFilter(settings)

	var err error
	if opts.Persist {
		err = s.persistPass(ctx, adapter, filter, summary)
	} else {
		err = s.previewPass(ctx, adapter, filter, summary)
	}

	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.RecordSyncRun(adapter.Name(), status, time.Since(started).Seconds())
	return err
}

// persistPass stages catalog data first so that episode and schedule rows can
// resolve against fresh titles, then episodes, then schedule.
func (s *Service) persistPass(ctx context.Context, adapter source.Adapter, filter *Filter, summary *models.SyncSummary) error {
	sourceID := adapter.ID()

	counts, err := s.runJob(ctx, models.JobCatalogSync, sourceID, func(ctx context.Context, now time.Time) (models.ClassCounts, error) {
		items, err := adapter.FetchCatalog(ctx)
		if err != nil {
			return models.ClassCounts{}, err
		}
		return s.catalog.UpsertMany(ctx, sourceID, filter.Catalog(items), now)
	})
	summary.Catalog.Add(counts)
	metrics.RecordStagingRecords("catalog", counts.Persisted, counts.Skipped)
	if err != nil {
		return fmt.Errorf("catalog sync: %w", err)
	}

	counts, err = s.runJob(ctx, models.JobEpisodeSync, sourceID, func(ctx context.Context, now time.Time) (models.ClassCounts, error) {
		byExternal, err := s.catalog.MapIDsByExternal(ctx, sourceID)
		if err != nil {
			return models.ClassCounts{}, err
		}
		externalIDs := make([]string, 0, len(byExternal))
		for externalID := range byExternal {
			externalIDs = append(externalIDs, externalID)
		}
		items, err := adapter.FetchEpisodes(ctx, externalIDs)
		if err != nil {
			return models.ClassCounts{}, err
		}
		return s.episodes.UpsertMany(ctx, sourceID, byExternal, filter.Episodes(items), now)
	})
	summary.Episodes.Add(counts)
	metrics.RecordStagingRecords("episode", counts.Persisted, counts.Skipped)
	if err != nil {
		return fmt.Errorf("episode sync: %w", err)
	}

	counts, err = s.runJob(ctx, models.JobScheduleSync, sourceID, func(ctx context.Context, now time.Time) (models.ClassCounts, error) {
		items, err := adapter.FetchSchedule(ctx)
		if err != nil {
			return models.ClassCounts{}, err
		}
		animeByExternal, err := s.resolveBindings(ctx, sourceID)
		if err != nil {
			return models.ClassCounts{}, err
		}
		return s.schedules.UpsertMany(ctx, sourceID, animeByExternal, items, now)
	})
	summary.Schedule.Add(counts)
	metrics.RecordStagingRecords("schedule", counts.Persisted, counts.Skipped)
	if err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}

	return nil
}

// previewPass fetches and filters without touching storage.
func (s *Service) previewPass(ctx context.Context, adapter source.Adapter, filter *Filter, summary *models.SyncSummary) error {
	sourceID := adapter.ID()

	catalog, err := adapter.FetchCatalog(ctx)
	if err != nil {
		return fmt.Errorf("catalog fetch: %w", err)
	}
	catalog = filter.Catalog(catalog)

	externalIDs := make([]string, 0, len(catalog))
	for _, item := range catalog {
		externalIDs = append(externalIDs, item.ExternalID)
	}

	episodes, err := adapter.FetchEpisodes(ctx, externalIDs)
	if err != nil {
		return fmt.Errorf("episode fetch: %w", err)
	}
	episodes = filter.Episodes(episodes)

	schedule, err := adapter.FetchSchedule(ctx)
	if err != nil {
		return fmt.Errorf("schedule fetch: %w", err)
	}

	episodesByExternal := make(map[string][]models.ExternalEpisodeInput)
	for _, ep := range episodes {
		episodesByExternal[ep.ExternalID] = append(episodesByExternal[ep.ExternalID], ep)
	}
	scheduleByExternal := make(map[string][]models.ExternalScheduleInput)
	for _, slot := range schedule {
		scheduleByExternal[slot.ExternalID] = append(scheduleByExternal[slot.ExternalID], slot)
	}

	for _, item := range catalog {
		summary.Preview = append(summary.Preview, models.AnimePreview{
			SourceID: sourceID,
			Catalog:  item,
			Episodes: episodesByExternal[item.ExternalID],
			Schedule: scheduleByExternal[item.ExternalID],
		})
	}

	summary.Catalog.Add(models.ClassCounts{Fetched: len(catalog), Skipped: len(catalog)})
	summary.Episodes.Add(models.ClassCounts{Fetched: len(episodes), Skipped: len(episodes)})
	summary.Schedule.Add(models.ClassCounts{Fetched: len(schedule), Skipped: len(schedule)})

	return nil
}

// runJob wraps one pipeline pass in a job record. The job row is written
// before the work starts and finished exactly once.
func (s *Service) runJob(ctx context.Context, kind models.JobKind, sourceID int, fn func(ctx context.Context, now time.Time) (models.ClassCounts, error)) (models.ClassCounts, error) {
	now := time.Now().UTC()

	jobRecord, err := s.jobs.Start(ctx, kind, &sourceID, now)
	if err != nil {
		return models.ClassCounts{}, err
	}
	ctx = appctx.SetJobID(ctx, jobRecord.ID)

	counts, runErr := fn(ctx, now)

	finishedAt := time.Now().UTC()
	status := models.JobSuccess
	if runErr != nil {
		status = models.JobFailed
	}

	logMsg := fmt.Sprintf("fetched=%d persisted=%d skipped=%d", counts.Fetched, counts.Persisted, counts.Skipped)
	if logErr := s.jobs.AppendLog(ctx, jobRecord.ID, "info", logMsg, finishedAt); logErr != nil {
		s.logger.WithContext(ctx).WithError(logErr).Warn("Failed to append job log")
	}
	if runErr != nil {
		if logErr := s.jobs.AppendLog(ctx, jobRecord.ID, "error", runErr.Error(), finishedAt); logErr != nil {
			s.logger.WithContext(ctx).WithError(logErr).Warn("Failed to append job log")
		}
	}

	if finishErr := s.jobs.Finish(ctx, jobRecord.ID, status, runErr, finishedAt); finishErr != nil {
		s.logger.WithContext(ctx).WithError(finishErr).Error("Failed to finish job record")
	}

	return counts, runErr
}

func (s *Service) resolveBindings(ctx context.Context, sourceID int) (map[string]string, error) {
	byExternal, err := s.catalog.MapIDsByExternal(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	rowIDs := make([]string, 0, len(byExternal))
	externalByRow := make(map[string]string, len(byExternal))
	for externalID, rowID := range byExternal {
		rowIDs = append(rowIDs, rowID)
		externalByRow[rowID] = externalID
	}

	bindings, err := s.bindings.ListByExternalAnimeIDs(ctx, rowIDs)
	if err != nil {
		return nil, err
	}

	animeByExternal := make(map[string]string, len(bindings))
	for _, b := range bindings {
		if externalID, ok := externalByRow[b.ExternalAnimeID]; ok {
			animeByExternal[externalID] = b.AnimeID
		}
	}
	return animeByExternal, nil
}
