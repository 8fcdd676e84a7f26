// Package scheduler is the autonomous worker loop. One replica at a time
// holds the leadership lock and queues due pipeline work, guarded by a
// distributed job marker and a bounded admission counter. A panicking job
// downgrades the system to manual mode.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	syncservice "github.com/Ramsey-B/fern/internal/services/sync"
	"github.com/Ramsey-B/fern/pkg/coordination"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/source"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const leaderLockName = "scheduler"

// SettingsStore reads the operational configuration and performs the
// emergency mode downgrade.
type SettingsStore interface {
	Get(ctx context.Context) (*models.Settings, error)
	SetMode(ctx context.Context, mode models.Mode, now time.Time) error
}

// JobStore reads job history for due-interval decisions.
type JobStore interface {
	GetLastSuccessful(ctx context.Context, kind models.JobKind, sourceID int) (*models.Job, error)
}

// AuditStore appends compliance trail entries.
type AuditStore interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
}

// SyncRunner runs one source sync pass.
type SyncRunner interface {
	SyncSource(ctx context.Context, sourceID int, opts syncservice.Options) (*models.SyncSummary, error)
}

// AutoupdateRunner runs one autoupdate pass.
type AutoupdateRunner interface {
	Run(ctx context.Context, force bool) *models.AutoupdateSummary
}

// Scheduler queues due pipeline work while it holds leadership.
type Scheduler struct {
	cfg       config.SchedulerConfig
	locker    *coordination.Locker
	admission *coordination.BoundedCounter
	markers   *coordination.Marker
	registry  *source.Registry
	settings  SettingsStore
	jobs      JobStore
	audit     AuditStore
	syncer    SyncRunner
	updater   AutoupdateRunner
	logger    ectologger.Logger

	lastAutoupdate time.Time
	stopCh         chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup
}

// New creates a scheduler.
func New(
	cfg config.SchedulerConfig,
	store coordination.Store,
	registry *source.Registry,
	settings SettingsStore,
	jobs JobStore,
	audit AuditStore,
	syncer SyncRunner,
	updater AutoupdateRunner,
	logger ectologger.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		locker:    coordination.NewLocker(store, logger),
		admission: coordination.NewBoundedCounter(store, "jobs", cfg.MaxConcurrentJobs),
		markers:   coordination.NewMarker(store, "job", cfg.JobMarkerTTL),
		registry:  registry,
		settings:  settings,
		jobs:      jobs,
		audit:     audit,
		syncer:    syncer,
		updater:   updater,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Run blocks until Stop is called or ctx is cancelled. It competes for the
// leadership lock and, while holding it, polls for due work every
// PollInterval.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		lock, err := s.locker.Acquire(ctx, leaderLockName, s.cfg.LockTTL)
		if err != nil {
			if !errors.Is(err, coordination.ErrLockNotAcquired) {
				s.logger.WithContext(ctx).WithError(err).Warn("Leadership acquisition failed")
			}
			if !s.sleep(ctx, s.cfg.PollInterval) {
				return
			}
			continue
		}

		s.lead(ctx, lock)
	}
}

// Stop asks the scheduler to exit and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// lead polls for due work until leadership is lost or the scheduler stops.
func (s *Scheduler) lead(ctx context.Context, lock *coordination.Lock) {
	s.logger.WithContext(ctx).Info("Acquired scheduler leadership")
	defer func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, coordination.ErrLockNotHeld) {
			s.logger.WithError(err).Warn("Leadership lock release failed")
		}
	}()

	lost := lock.KeepAlive(ctx)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-lost:
			s.logger.WithContext(ctx).Warn("Scheduler leadership lost")
			return
		case <-ticker.C:
			s.guardedCycle(ctx)
		}
	}
}

// guardedCycle contains a panic from the decision pass itself. Queued jobs
// carry their own recovery; this covers the code that queues them.
func (s *Scheduler) guardedCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.downgradeToManual(ctx, fmt.Sprintf("scheduler cycle panicked: %v", r))
		}
	}()
	s.cycle(ctx)
}

// cycle is one scheduling decision pass. Settings are read fresh here and
// again right before each job is queued; manual mode always wins.
func (s *Scheduler) cycle(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Scheduler.cycle")
	defer span.End()

	metrics.SchedulerCyclesTotal.Inc()

	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to read settings, skipping cycle")
		return
	}
	if settings.Mode != models.ModeAuto {
		s.logger.WithContext(ctx).Debug("Manual mode, nothing queued")
		return
	}

	now := time.Now().UTC()

	for _, adapter := range s.registry.All() {
		due, err := s.catalogDue(ctx, adapter.ID(), now)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("source", adapter.Name()).Warn("Failed to evaluate catalog due interval")
			continue
		}
		if due {
			s.queueCatalogSync(ctx, adapter)
		}
	}

	if settings.EnableAutoupdate && now.Sub(s.lastAutoupdate) >= settings.EffectiveUpdateInterval() {
		if s.queueAutoupdate(ctx) {
			s.lastAutoupdate = now
		}
	}
}

// catalogDue reports whether a source's catalog sync interval has elapsed. A
// source with no successful sync yet is always due.
func (s *Scheduler) catalogDue(ctx context.Context, sourceID int, now time.Time) (bool, error) {
	last, err := s.jobs.GetLastSuccessful(ctx, models.JobCatalogSync, sourceID)
	if err != nil {
		return false, err
	}
	if last == nil || last.FinishedAt == nil {
		return true, nil
	}

	elapsed := now.Sub(*last.FinishedAt)
	if elapsed >= s.cfg.MaxCatalogInterval {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"source_id": sourceID,
			"elapsed":   elapsed.String(),
		}).Warn("Catalog sync overdue")
		return true, nil
	}
	return elapsed >= s.cfg.MinCatalogInterval, nil
}

// admit re-checks the mode, claims the job marker, and takes an admission
// slot. It returns the claimed identity, or false when the job must not run.
func (s *Scheduler) admit(ctx context.Context, kind string, sourceID int) (string, bool) {
	settings, err := s.settings.Get(ctx)
	if err != nil || settings.Mode != models.ModeAuto {
		return "", false
	}

	identity := coordination.Identity(kind, strconv.Itoa(sourceID))
	claimed, err := s.markers.Claim(ctx, identity)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("kind", kind).Warn("Job marker claim failed")
		return "", false
	}
	if !claimed {
		return "", false
	}

	ok, err := s.admission.TryAcquire(ctx)
	if err != nil || !ok {
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Admission check failed")
		} else {
			metrics.AdmissionRejectionsTotal.Inc()
			s.logger.WithContext(ctx).WithField("kind", kind).Info("Job rejected, worker pool full")
		}
		s.clearMarker(ctx, identity)
		return "", false
	}
	return identity, true
}

func (s *Scheduler) queueCatalogSync(ctx context.Context, adapter source.Adapter) {
	identity, ok := s.admit(ctx, string(models.JobCatalogSync), adapter.ID())
	if !ok {
		return
	}

	metrics.SchedulerJobsQueued.WithLabelValues(string(models.JobCatalogSync)).Inc()
	s.wg.Add(1)
	go s.runCatalogSync(adapter, identity)
}

func (s *Scheduler) queueAutoupdate(ctx context.Context) bool {
	identity, ok := s.admit(ctx, string(models.JobAutoupdate), 0)
	if !ok {
		return false
	}

	metrics.SchedulerJobsQueued.WithLabelValues(string(models.JobAutoupdate)).Inc()
	s.wg.Add(1)
	go s.runAutoupdate(identity)
	return true
}

// runCatalogSync executes one queued sync pass. Jobs run on a background
// context so a leadership change never aborts work already admitted.
func (s *Scheduler) runCatalogSync(adapter source.Adapter, identity string) {
	ctx := context.Background()
	metrics.JobsInFlight.Inc()

	defer func() {
		if r := recover(); r != nil {
			s.downgradeToManual(ctx, fmt.Sprintf("catalog sync for source %s panicked: %v", adapter.Name(), r))
		}
		s.releaseSlot(ctx, identity)
		metrics.JobsInFlight.Dec()
		s.wg.Done()
	}()

	summary, err := s.syncer.SyncSource(ctx, adapter.ID(), syncservice.Options{Persist: true})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("source", adapter.Name()).Error("Queued catalog sync failed")
		return
	}
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"source":    adapter.Name(),
		"persisted": summary.Catalog.Persisted,
		"skipped":   summary.Catalog.Skipped,
	}).Info("Queued catalog sync finished")
}

func (s *Scheduler) runAutoupdate(identity string) {
	ctx := context.Background()
	metrics.JobsInFlight.Inc()

	defer func() {
		if r := recover(); r != nil {
			s.downgradeToManual(ctx, fmt.Sprintf("autoupdate panicked: %v", r))
		}
		s.releaseSlot(ctx, identity)
		metrics.JobsInFlight.Dec()
		s.wg.Done()
	}()

	summary := s.updater.Run(ctx, false)
	if summary.Status == models.AutoupdateFailed {
		s.logger.WithContext(ctx).WithField("error", summary.Error).Error("Queued autoupdate failed")
	}
}

func (s *Scheduler) releaseSlot(ctx context.Context, identity string) {
	if err := s.admission.Release(ctx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Admission slot release failed")
	}
	s.clearMarker(ctx, identity)
}

func (s *Scheduler) clearMarker(ctx context.Context, identity string) {
	if err := s.markers.Clear(ctx, identity); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Job marker clear failed")
	}
}

// downgradeToManual is the panic containment path: the system drops to manual
// mode so no further automated work is queued until an operator intervenes.
func (s *Scheduler) downgradeToManual(ctx context.Context, reason string) {
	s.logger.WithContext(ctx).WithField("reason", reason).Error("Job panicked, downgrading to manual mode")

	now := time.Now().UTC()
	if err := s.settings.SetMode(ctx, models.ModeManual, now); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Emergency mode downgrade failed")
	}

	if err := s.audit.Record(ctx, &models.AuditEntry{
		ActorKind:  models.ActorSystem,
		Action:     "settings.mode_downgrade",
		EntityType: "settings",
		EntityID:   "1",
		Reason:     reason,
		CreatedAt:  now,
	}); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to record mode downgrade audit entry")
	}
}
