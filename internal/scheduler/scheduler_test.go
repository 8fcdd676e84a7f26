package scheduler

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	syncservice "github.com/Ramsey-B/fern/internal/services/sync"
	"github.com/Ramsey-B/fern/pkg/coordination"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/source"
)

type stubAdapter struct {
	id int
}

func (s *stubAdapter) ID() int      { return s.id }
func (s *stubAdapter) Name() string { return "stub-" + strconv.Itoa(s.id) }

func (s *stubAdapter) FetchCatalog(context.Context) ([]models.ExternalAnimeInput, error) {
	return nil, nil
}

func (s *stubAdapter) FetchEpisodes(context.Context, []string) ([]models.ExternalEpisodeInput, error) {
	return nil, nil
}

func (s *stubAdapter) FetchSchedule(context.Context) ([]models.ExternalScheduleInput, error) {
	return nil, nil
}

type fakeSettings struct {
	settings models.Settings
	modeSets []models.Mode
}

func (f *fakeSettings) Get(context.Context) (*models.Settings, error) {
	copied := f.settings
	return &copied, nil
}

func (f *fakeSettings) SetMode(_ context.Context, mode models.Mode, _ time.Time) error {
	f.modeSets = append(f.modeSets, mode)
	f.settings.Mode = mode
	return nil
}

type fakeJobs struct {
	lastBySource map[int]*models.Job
	panicOnRead  bool
}

func (f *fakeJobs) GetLastSuccessful(_ context.Context, _ models.JobKind, sourceID int) (*models.Job, error) {
	if f.panicOnRead {
		panic("job history unavailable")
	}
	return f.lastBySource[sourceID], nil
}

type fakeAudit struct {
	entries []*models.AuditEntry
}

func (f *fakeAudit) Record(_ context.Context, entry *models.AuditEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeSyncer struct {
	synced  chan int
	panicOn int
}

func (f *fakeSyncer) SyncSource(_ context.Context, sourceID int, _ syncservice.Options) (*models.SyncSummary, error) {
	if sourceID == f.panicOn {
		panic("boom")
	}
	f.synced <- sourceID
	return &models.SyncSummary{}, nil
}

type fakeUpdater struct {
	runs chan bool
}

func (f *fakeUpdater) Run(_ context.Context, force bool) *models.AutoupdateSummary {
	f.runs <- force
	return &models.AutoupdateSummary{Status: models.AutoupdateSuccess}
}

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		PollInterval:       10 * time.Millisecond,
		LockTTL:            time.Second,
		MaxConcurrentJobs:  5,
		MinCatalogInterval: 6 * time.Hour,
		MaxCatalogInterval: 24 * time.Hour,
		JobMarkerTTL:       time.Hour,
	}
}

type fixture struct {
	sched    *Scheduler
	store    *coordination.MemoryStore
	settings *fakeSettings
	jobs     *fakeJobs
	audit    *fakeAudit
	syncer   *fakeSyncer
	updater  *fakeUpdater
}

func newFixture(t *testing.T, cfg config.SchedulerConfig, settings models.Settings) *fixture {
	t.Helper()

	f := &fixture{
		store:    coordination.NewMemoryStore(),
		settings: &fakeSettings{settings: settings},
		jobs:     &fakeJobs{lastBySource: map[int]*models.Job{}},
		audit:    &fakeAudit{},
		syncer:   &fakeSyncer{synced: make(chan int, 10), panicOn: -1},
		updater:  &fakeUpdater{runs: make(chan bool, 10)},
	}

	registry, err := source.NewRegistry(&stubAdapter{id: 1})
	require.NoError(t, err)

	f.sched = New(cfg, f.store, registry, f.settings, f.jobs, f.audit, f.syncer, f.updater,
		ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	return f
}

func autoSettings() models.Settings {
	return models.Settings{Mode: models.ModeAuto, UpdateIntervalMinutes: 30}
}

func TestCycle_ManualModeQueuesNothing(t *testing.T) {
	f := newFixture(t, testConfig(), models.Settings{Mode: models.ModeManual})

	f.sched.cycle(context.Background())
	f.sched.wg.Wait()

	assert.Empty(t, f.syncer.synced)
	assert.Empty(t, f.updater.runs)
}

func TestCycle_QueuesDueCatalogSync(t *testing.T) {
	f := newFixture(t, testConfig(), autoSettings())

	f.sched.cycle(context.Background())
	f.sched.wg.Wait()

	select {
	case id := <-f.syncer.synced:
		assert.Equal(t, 1, id)
	default:
		t.Fatal("expected a catalog sync to run")
	}
}

func TestCycle_RecentSyncNotDue(t *testing.T) {
	f := newFixture(t, testConfig(), autoSettings())
	finished := time.Now().UTC().Add(-time.Hour)
	f.jobs.lastBySource[1] = &models.Job{
		ID: "job-1", Kind: models.JobCatalogSync,
		Status: models.JobSuccess, FinishedAt: &finished,
	}

	f.sched.cycle(context.Background())
	f.sched.wg.Wait()

	assert.Empty(t, f.syncer.synced)
}

func TestCycle_StaleSyncIsDue(t *testing.T) {
	f := newFixture(t, testConfig(), autoSettings())
	finished := time.Now().UTC().Add(-7 * time.Hour)
	f.jobs.lastBySource[1] = &models.Job{
		ID: "job-1", Kind: models.JobCatalogSync,
		Status: models.JobSuccess, FinishedAt: &finished,
	}

	f.sched.cycle(context.Background())
	f.sched.wg.Wait()

	require.Len(t, f.syncer.synced, 1)
}

func TestCycle_MarkerDeduplicatesQueuedJobs(t *testing.T) {
	f := newFixture(t, testConfig(), autoSettings())

	identity := coordination.Identity(string(models.JobCatalogSync), "1")
	claimed, err := coordination.NewMarker(f.store, "job", time.Hour).Claim(context.Background(), identity)
	require.NoError(t, err)
	require.True(t, claimed)

	f.sched.cycle(context.Background())
	f.sched.wg.Wait()

	assert.Empty(t, f.syncer.synced)
}

func TestCycle_FinishedJobFreesItsMarker(t *testing.T) {
	f := newFixture(t, testConfig(), autoSettings())

	f.sched.cycle(context.Background())
	f.sched.wg.Wait()
	f.sched.cycle(context.Background())
	f.sched.wg.Wait()

	assert.Len(t, f.syncer.synced, 2)
}

func TestCycle_AdmissionFullRejectsJob(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentJobs = 0
	f := newFixture(t, cfg, autoSettings())

	f.sched.cycle(context.Background())
	f.sched.wg.Wait()

	assert.Empty(t, f.syncer.synced)

	// The marker was cleared on rejection, nothing stays claimed.
	identity := coordination.Identity(string(models.JobCatalogSync), "1")
	claimed, err := coordination.NewMarker(f.store, "job", time.Hour).Claim(context.Background(), identity)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestCycle_QueuesAutoupdateWhenEnabled(t *testing.T) {
	settings := autoSettings()
	settings.EnableAutoupdate = true
	f := newFixture(t, testConfig(), settings)
	finished := time.Now().UTC()
	f.jobs.lastBySource[1] = &models.Job{
		ID: "job-1", Kind: models.JobCatalogSync,
		Status: models.JobSuccess, FinishedAt: &finished,
	}

	f.sched.cycle(context.Background())
	f.sched.wg.Wait()

	select {
	case force := <-f.updater.runs:
		assert.False(t, force)
	default:
		t.Fatal("expected an autoupdate run")
	}
}

func TestCycle_AutoupdateRespectsInterval(t *testing.T) {
	settings := autoSettings()
	settings.EnableAutoupdate = true
	f := newFixture(t, testConfig(), settings)
	f.sched.lastAutoupdate = time.Now().UTC().Add(-time.Minute)

	f.sched.cycle(context.Background())
	f.sched.wg.Wait()

	assert.Empty(t, f.updater.runs)
}

func TestPanic_DowngradesToManualMode(t *testing.T) {
	f := newFixture(t, testConfig(), autoSettings())
	f.syncer.panicOn = 1

	f.sched.cycle(context.Background())
	f.sched.wg.Wait()

	require.Len(t, f.settings.modeSets, 1)
	assert.Equal(t, models.ModeManual, f.settings.modeSets[0])

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.ActorSystem, f.audit.entries[0].ActorKind)
	assert.Equal(t, "settings.mode_downgrade", f.audit.entries[0].Action)
	assert.Contains(t, f.audit.entries[0].Reason, "panicked")

	// A panicked job still releases its admission slot.
	ok, err := coordination.NewBoundedCounter(f.store, "jobs", 5).TryAcquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCyclePanic_DowngradesToManualMode(t *testing.T) {
	f := newFixture(t, testConfig(), autoSettings())
	f.jobs.panicOnRead = true

	f.sched.guardedCycle(context.Background())

	require.Len(t, f.settings.modeSets, 1)
	assert.Equal(t, models.ModeManual, f.settings.modeSets[0])

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, "settings.mode_downgrade", f.audit.entries[0].Action)
	assert.Contains(t, f.audit.entries[0].Reason, "cycle panicked")
}

func TestRun_OnlyOneLeaderSchedules(t *testing.T) {
	f1 := newFixture(t, testConfig(), models.Settings{Mode: models.ModeManual})
	f2 := newFixture(t, testConfig(), models.Settings{Mode: models.ModeManual})
	f2.store = f1.store

	registry, err := source.NewRegistry(&stubAdapter{id: 1})
	require.NoError(t, err)
	f2.sched = New(testConfig(), f1.store, registry, f2.settings, f2.jobs, f2.audit, f2.syncer, f2.updater,
		ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go f1.sched.Run(ctx)
	time.Sleep(20 * time.Millisecond)
	go f2.sched.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	lock, err := coordination.NewLocker(f1.store, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})).
		Acquire(ctx, leaderLockName, time.Second)
	assert.ErrorIs(t, err, coordination.ErrLockNotAcquired)
	_ = lock

	f1.sched.Stop()
	f2.sched.Stop()
}
