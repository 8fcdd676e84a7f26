package autoupdate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/source"
)

type fakeAdapter struct {
	id            int
	episodes      []models.ExternalEpisodeInput
	schedule      []models.ExternalScheduleInput
	episodeCalls  [][]string
	scheduleErr   error
	episodesErr   error
	scheduleCalls int
}

func (f *fakeAdapter) ID() int      { return f.id }
func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) FetchCatalog(context.Context) ([]models.ExternalAnimeInput, error) {
	return nil, nil
}

func (f *fakeAdapter) FetchEpisodes(_ context.Context, externalIDs []string) ([]models.ExternalEpisodeInput, error) {
	f.episodeCalls = append(f.episodeCalls, externalIDs)
	return f.episodes, f.episodesErr
}

func (f *fakeAdapter) FetchSchedule(context.Context) ([]models.ExternalScheduleInput, error) {
	f.scheduleCalls++
	return f.schedule, f.scheduleErr
}

type fakeStagedTitles struct {
	ongoing []models.ExternalAnime
}

func (f *fakeStagedTitles) ListOngoing(context.Context, int) ([]models.ExternalAnime, error) {
	return f.ongoing, nil
}

type fakeStagedEpisodes struct {
	byIdentity map[string]*models.ExternalEpisode
	upserted   []models.ExternalEpisodeInput
	flagged    []string
}

func identityKey(externalAnimeID string, number int) string {
	return fmt.Sprintf("%s#%d", externalAnimeID, number)
}

func (f *fakeStagedEpisodes) UpsertMany(_ context.Context, sourceID int, animeIDByExternal map[string]string, items []models.ExternalEpisodeInput, _ time.Time) (models.ClassCounts, error) {
	f.upserted = append(f.upserted, items...)
	if f.byIdentity == nil {
		f.byIdentity = map[string]*models.ExternalEpisode{}
	}
	for _, item := range items {
		rowID, ok := animeIDByExternal[item.ExternalID]
		if !ok {
			continue
		}
		f.byIdentity[identityKey(rowID, item.Number)] = &models.ExternalEpisode{
			ID:              "staged-" + item.ExternalID,
			ExternalAnimeID: rowID,
			SourceID:        sourceID,
			Number:          item.Number,
			StreamURL:       item.StreamURL,
			Translations:    database.NewJSONB(item.Translations),
			Qualities:       database.NewJSONB(item.Qualities),
		}
	}
	return models.ClassCounts{Fetched: len(items), Persisted: len(items)}, nil
}

func (f *fakeStagedEpisodes) GetByIdentity(_ context.Context, externalAnimeID string, _, number int) (*models.ExternalEpisode, error) {
	return f.byIdentity[identityKey(externalAnimeID, number)], nil
}

func (f *fakeStagedEpisodes) MarkNeedsReview(_ context.Context, id string, _ time.Time) error {
	f.flagged = append(f.flagged, id)
	return nil
}

type fakeSchedules struct {
	aired    []models.ExternalSchedule
	airedErr error
	upserted []models.ExternalScheduleInput
	touched  []string
}

func (f *fakeSchedules) UpsertMany(_ context.Context, sourceID int, animeIDByExternal map[string]string, items []models.ExternalScheduleInput, now time.Time) (models.ClassCounts, error) {
	f.upserted = append(f.upserted, items...)
	for _, item := range items {
		animeID, ok := animeIDByExternal[item.ExternalID]
		if !ok || item.AirAt.After(now) {
			continue
		}
		f.aired = append(f.aired, models.ExternalSchedule{
			ID:      fmt.Sprintf("slot-%s-%d", item.ExternalID, item.Number),
			AnimeID: animeID, SourceID: sourceID, Number: item.Number,
			AirAt: item.AirAt, LastCheckedAt: now,
		})
	}
	return models.ClassCounts{Fetched: len(items), Persisted: len(items)}, nil
}

func (f *fakeSchedules) ListAired(context.Context, []string, time.Time) ([]models.ExternalSchedule, error) {
	return f.aired, f.airedErr
}

func (f *fakeSchedules) TouchChecked(_ context.Context, ids []string, _ time.Time) error {
	f.touched = append(f.touched, ids...)
	return nil
}

type fakeBindings struct {
	bindings []models.Binding
}

func (f *fakeBindings) ListByExternalAnimeIDs(context.Context, []string) ([]models.Binding, error) {
	return f.bindings, nil
}

type fakeEpisodes struct {
	existing map[string]*models.Episode
	inserted []string
}

func (f *fakeEpisodes) GetByAnimeAndNumber(_ context.Context, animeID string, number int) (*models.Episode, error) {
	return f.existing[identityKey(animeID, number)], nil
}

func (f *fakeEpisodes) InsertMissing(_ context.Context, animeID string, number int, _, _ string, _ []models.Translation, _ []string, _ time.Time) (bool, error) {
	key := identityKey(animeID, number)
	if _, ok := f.existing[key]; ok {
		return false, nil
	}
	f.inserted = append(f.inserted, key)
	return true, nil
}

type jobCall struct {
	id     string
	status models.JobStatus
}

type fakeJobs struct {
	started  []models.JobKind
	finished []jobCall
}

func (f *fakeJobs) Start(_ context.Context, kind models.JobKind, _ *int, now time.Time) (*models.Job, error) {
	f.started = append(f.started, kind)
	return &models.Job{ID: "job-1", Kind: kind, Status: models.JobRunning, StartedAt: now}, nil
}

func (f *fakeJobs) Finish(_ context.Context, id string, status models.JobStatus, _ error, _ time.Time) error {
	f.finished = append(f.finished, jobCall{id: id, status: status})
	return nil
}

func (f *fakeJobs) AppendLog(context.Context, string, string, string, time.Time) error {
	return nil
}

type fakeSettings struct {
	settings models.Settings
}

func (f *fakeSettings) Get(context.Context) (*models.Settings, error) {
	copied := f.settings
	return &copied, nil
}

type recordingTx struct {
	rolledBack bool
}

func (t *recordingTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		t.rolledBack = true
		return err
	}
	return nil
}

type fakeEmitter struct {
	conflicts int
}

func (f *fakeEmitter) EmitAutoupdateConflict(context.Context, string, int, int) error {
	f.conflicts++
	return nil
}

type fixture struct {
	svc       *Service
	adapter   *fakeAdapter
	titles    *fakeStagedTitles
	stagedEps *fakeStagedEpisodes
	schedules *fakeSchedules
	bindings  *fakeBindings
	episodes  *fakeEpisodes
	jobs      *fakeJobs
	tx        *recordingTx
	emitter   *fakeEmitter
}

func newFixture(t *testing.T, settings models.Settings) *fixture {
	t.Helper()

	f := &fixture{
		adapter:   &fakeAdapter{id: 1},
		titles:    &fakeStagedTitles{},
		stagedEps: &fakeStagedEpisodes{byIdentity: map[string]*models.ExternalEpisode{}},
		schedules: &fakeSchedules{},
		bindings:  &fakeBindings{},
		episodes:  &fakeEpisodes{existing: map[string]*models.Episode{}},
		jobs:      &fakeJobs{},
		tx:        &recordingTx{},
		emitter:   &fakeEmitter{},
	}

	registry, err := source.NewRegistry(f.adapter)
	require.NoError(t, err)

	f.svc = NewService(
		registry, f.titles, f.stagedEps, f.schedules, f.bindings, f.episodes,
		f.jobs, &fakeSettings{settings: settings}, f.tx, f.emitter, 20,
		ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}),
	)
	return f
}

func enabledSettings() models.Settings {
	return models.Settings{EnableAutoupdate: true, UpdateIntervalMinutes: 30}
}

// seedOngoing stages one ongoing bound title with one aired, stale slot.
func (f *fixture) seedOngoing(number int) {
	f.titles.ongoing = []models.ExternalAnime{
		{ID: "row-1", SourceID: 1, ExternalID: "ext-1", Status: models.ExternalStatusOngoing},
	}
	f.bindings.bindings = []models.Binding{{ExternalAnimeID: "row-1", AnimeID: "anime-1"}}
	f.schedules.aired = []models.ExternalSchedule{{
		ID: "slot-1", AnimeID: "anime-1", SourceID: 1, Number: number,
		AirAt:         time.Now().UTC().Add(-2 * time.Hour),
		LastCheckedAt: time.Now().UTC().Add(-2 * time.Hour),
	}}
}

func TestRun_DisabledWithoutForce(t *testing.T) {
	f := newFixture(t, models.Settings{EnableAutoupdate: false})

	summary := f.svc.Run(context.Background(), false)

	assert.Equal(t, models.AutoupdateDisabled, summary.Status)
	assert.Empty(t, f.jobs.started)
}

func TestRun_ForceBypassesDisabled(t *testing.T) {
	f := newFixture(t, models.Settings{EnableAutoupdate: false, UpdateIntervalMinutes: 30})

	summary := f.svc.Run(context.Background(), true)

	assert.Equal(t, models.AutoupdateSuccess, summary.Status)
	require.Len(t, f.jobs.started, 1)
	assert.Equal(t, models.JobAutoupdate, f.jobs.started[0])
}

func TestRun_InsertsMissingEpisode(t *testing.T) {
	f := newFixture(t, enabledSettings())
	f.seedOngoing(5)
	f.adapter.episodes = []models.ExternalEpisodeInput{{
		ExternalID: "ext-1", Number: 5, StreamURL: "https://cdn.example/ep5",
	}}

	summary := f.svc.Run(context.Background(), false)

	assert.Equal(t, models.AutoupdateSuccess, summary.Status)
	assert.Equal(t, 1, summary.EpisodesInserted)
	assert.Zero(t, summary.Conflicts)
	assert.Equal(t, []string{identityKey("anime-1", 5)}, f.episodes.inserted)
	require.Len(t, f.adapter.episodeCalls, 1)
	assert.Equal(t, []string{"ext-1"}, f.adapter.episodeCalls[0])
	assert.Equal(t, []string{"slot-1"}, f.schedules.touched)

	require.Len(t, f.jobs.finished, 1)
	assert.Equal(t, models.JobSuccess, f.jobs.finished[0].status)
}

func TestRun_ManualEpisodeConflictFlagsReview(t *testing.T) {
	f := newFixture(t, enabledSettings())
	f.seedOngoing(5)
	f.adapter.episodes = []models.ExternalEpisodeInput{{
		ExternalID: "ext-1", Number: 5, StreamURL: "https://new.example/ep5",
	}}
	f.episodes.existing[identityKey("anime-1", 5)] = &models.Episode{
		ID: "ep-1", AnimeID: "anime-1", Number: 5,
		StreamURL: "https://curated.example/ep5", Source: models.SourceManual,
	}

	summary := f.svc.Run(context.Background(), false)

	assert.Equal(t, models.AutoupdateSuccess, summary.Status)
	assert.Equal(t, 1, summary.Conflicts)
	assert.Zero(t, summary.EpisodesInserted)
	assert.Equal(t, []string{"staged-ext-1"}, f.stagedEps.flagged)
	assert.Equal(t, 1, f.emitter.conflicts)
	assert.Empty(t, f.episodes.inserted)
}

func TestRun_ManualOccupantConflictsEvenWhenContentMatches(t *testing.T) {
	f := newFixture(t, enabledSettings())
	f.seedOngoing(5)
	f.adapter.episodes = []models.ExternalEpisodeInput{{
		ExternalID: "ext-1", Number: 5, StreamURL: "https://same.example/ep5",
	}}
	f.episodes.existing[identityKey("anime-1", 5)] = &models.Episode{
		ID: "ep-1", AnimeID: "anime-1", Number: 5,
		StreamURL: "https://same.example/ep5", Source: models.SourceManual,
	}

	summary := f.svc.Run(context.Background(), false)

	// A manual episode in the slot is a conflict regardless of whether the
	// staged data happens to match it.
	assert.Equal(t, models.AutoupdateSuccess, summary.Status)
	assert.Equal(t, 1, summary.Conflicts)
	assert.Equal(t, []string{"staged-ext-1"}, f.stagedEps.flagged)
	assert.Empty(t, f.episodes.inserted)
}

func TestRun_NewlyReportedSlotReconciledSameRun(t *testing.T) {
	f := newFixture(t, enabledSettings())
	f.seedOngoing(1)
	// Nothing staged by earlier passes, the slot only arrives with this
	// run's schedule fetch.
	f.schedules.aired = nil
	f.adapter.schedule = []models.ExternalScheduleInput{{
		ExternalID: "ext-1", Number: 1, AirAt: time.Now().UTC().Add(-time.Hour),
	}}
	f.adapter.episodes = []models.ExternalEpisodeInput{{
		ExternalID: "ext-1", Number: 1, StreamURL: "https://new.example/ep1",
	}}
	f.episodes.existing[identityKey("anime-1", 1)] = &models.Episode{
		ID: "ep-1", AnimeID: "anime-1", Number: 1,
		StreamURL: "https://curated.example/ep1", Source: models.SourceManual,
	}

	summary := f.svc.Run(context.Background(), false)

	assert.Equal(t, models.AutoupdateSuccess, summary.Status)
	assert.Equal(t, 1, summary.Conflicts)
	assert.Equal(t, 1, f.emitter.conflicts)
	assert.Empty(t, f.episodes.inserted)
}

func TestRun_RecentSlotSuppressed(t *testing.T) {
	f := newFixture(t, enabledSettings())
	f.seedOngoing(5)
	f.schedules.aired[0].LastCheckedAt = time.Now().UTC().Add(-time.Minute)

	summary := f.svc.Run(context.Background(), false)

	assert.Equal(t, models.AutoupdateSuccess, summary.Status)
	assert.Equal(t, 1, summary.EpisodesSkipped)
	assert.Empty(t, f.adapter.episodeCalls)
	assert.Empty(t, f.schedules.touched)
}

func TestRun_ForceBypassesRecency(t *testing.T) {
	f := newFixture(t, enabledSettings())
	f.seedOngoing(5)
	f.schedules.aired[0].LastCheckedAt = time.Now().UTC().Add(-time.Minute)
	f.adapter.episodes = []models.ExternalEpisodeInput{{
		ExternalID: "ext-1", Number: 5, StreamURL: "https://cdn.example/ep5",
	}}

	summary := f.svc.Run(context.Background(), true)

	assert.Equal(t, models.AutoupdateSuccess, summary.Status)
	assert.Equal(t, 1, summary.EpisodesInserted)
	require.Len(t, f.adapter.episodeCalls, 1)
}

func TestRun_FailureRollsBackAndReportsStatus(t *testing.T) {
	f := newFixture(t, enabledSettings())
	f.seedOngoing(5)
	f.schedules.airedErr = errors.New("connection reset")

	summary := f.svc.Run(context.Background(), false)

	assert.Equal(t, models.AutoupdateFailed, summary.Status)
	assert.Contains(t, summary.Error, "connection reset")
	assert.True(t, f.tx.rolledBack)

	require.Len(t, f.jobs.finished, 1)
	assert.Equal(t, models.JobFailed, f.jobs.finished[0].status)
	assert.Zero(t, f.emitter.conflicts)
}

func TestRun_RefreshesScheduleForBoundTitles(t *testing.T) {
	f := newFixture(t, enabledSettings())
	f.seedOngoing(5)
	f.schedules.aired = nil
	f.adapter.schedule = []models.ExternalScheduleInput{{
		ExternalID: "ext-1", Number: 6, AirAt: time.Now().UTC().Add(24 * time.Hour),
	}}

	summary := f.svc.Run(context.Background(), false)

	assert.Equal(t, models.AutoupdateSuccess, summary.Status)
	assert.Equal(t, 1, summary.ScheduleUpdated)
	assert.Equal(t, 1, f.adapter.scheduleCalls)
	require.Len(t, f.schedules.upserted, 1)
}

func TestRun_UnboundTitlesAreOutOfScope(t *testing.T) {
	f := newFixture(t, enabledSettings())
	f.titles.ongoing = []models.ExternalAnime{
		{ID: "row-1", SourceID: 1, ExternalID: "ext-1", Status: models.ExternalStatusOngoing},
	}

	summary := f.svc.Run(context.Background(), false)

	assert.Equal(t, models.AutoupdateSuccess, summary.Status)
	assert.Zero(t, f.adapter.scheduleCalls)
	assert.Empty(t, f.adapter.episodeCalls)
}
