// Package publish is the compliance gate between the staging tables and the
// canonical content store. Every write through it is checked, transactional,
// and audited.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/statemachine"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// StagedTitleStore reads staged catalog titles.
type StagedTitleStore interface {
	GetBySourceAndExternalID(ctx context.Context, sourceID int, externalID string) (*models.ExternalAnime, error)
}

// StagedEpisodeStore reads staged episodes.
type StagedEpisodeStore interface {
	GetByNumber(ctx context.Context, externalAnimeID string, number int) (*models.ExternalEpisode, error)
}

// BindingStore reads and creates external-to-canonical links.
type BindingStore interface {
	GetByExternalAnimeID(ctx context.Context, externalAnimeID string) (*models.Binding, error)
	ListByAnimeID(ctx context.Context, animeID string) ([]models.Binding, error)
	Create(ctx context.Context, entity *models.Binding) error
}

// AnimeStore reads and writes canonical titles.
type AnimeStore interface {
	GetByID(ctx context.Context, id string) (*models.Anime, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Anime, error)
	Create(ctx context.Context, entity *models.Anime) error
	Update(ctx context.Context, entity *models.Anime) error
}

// EpisodeStore reads and writes canonical episodes.
type EpisodeStore interface {
	GetByAnimeAndNumber(ctx context.Context, animeID string, number int) (*models.Episode, error)
	Create(ctx context.Context, entity *models.Episode) error
	Update(ctx context.Context, entity *models.Episode) error
}

// ReleaseStore creates release records.
type ReleaseStore interface {
	Create(ctx context.Context, entity *models.Release) error
}

// AuditStore appends compliance trail entries.
type AuditStore interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
}

// SettingsStore reads the operational configuration.
type SettingsStore interface {
	Get(ctx context.Context) (*models.Settings, error)
}

// TxManager runs a function inside one database transaction.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventEmitter announces canonical writes after they commit.
type EventEmitter interface {
	EmitAnimePublished(ctx context.Context, anime *models.Anime, sourceID int, created bool) error
	EmitEpisodePublished(ctx context.Context, episode *models.Episode, sourceID int, created bool) error
}

// Options control one publish call.
type Options struct {
	Actor models.Actor
	// DryRun overrides the configured default when set.
	DryRun *bool
	// TargetState moves the entity as part of the publish. Unset keeps the
	// current state (or pending for newly created entities).
	TargetState *models.EntityState
}

// Service is the publish compliance gate.
type Service struct {
	stagedTitles   StagedTitleStore
	stagedEpisodes StagedEpisodeStore
	bindings       BindingStore
	animes         AnimeStore
	episodes       EpisodeStore
	releases       ReleaseStore
	audit          AuditStore
	settings       SettingsStore
	tx             TxManager
	emitter        EventEmitter
	logger         ectologger.Logger
}

// NewService creates a publish service.
func NewService(
	stagedTitles StagedTitleStore,
	stagedEpisodes StagedEpisodeStore,
	bindings BindingStore,
	animes AnimeStore,
	episodes EpisodeStore,
	releases ReleaseStore,
	audit AuditStore,
	settings SettingsStore,
	tx TxManager,
	emitter EventEmitter,
	logger ectologger.Logger,
) *Service {
	return &Service{
		stagedTitles:   stagedTitles,
		stagedEpisodes: stagedEpisodes,
		bindings:       bindings,
		animes:         animes,
		episodes:       episodes,
		releases:       releases,
		audit:          audit,
		settings:       settings,
		tx:             tx,
		emitter:        emitter,
		logger:         logger,
	}
}

// PublishAnime publishes the staged title identified by (sourceID,
// externalID) into the canonical store. Checks run in a fixed order: manual
// override, then locks, then dry-run short circuit, then state. The first
// publish of an unbound title creates the canonical anime, its release, and
// the binding in one transaction together with the audit entry.
func (s *Service) PublishAnime(ctx context.Context, sourceID int, externalID string, opts Options) (*models.PublishResult, error) {
	ctx, span := tracing.StartSpan(ctx, "publish.Service.PublishAnime")
	defer span.End()

	staged, err := s.stagedTitles.GetBySourceAndExternalID(ctx, sourceID, externalID)
	if err != nil {
		return nil, err
	}
	if staged == nil {
		return nil, &NotFoundError{Entity: "staged title", ID: fmt.Sprintf("%d/%s", sourceID, externalID)}
	}

	binding, err := s.bindings.GetByExternalAnimeID(ctx, staged.ID)
	if err != nil {
		return nil, err
	}

	dryRun, err := s.effectiveDryRun(ctx, opts)
	if err != nil {
		return nil, err
	}

	if binding == nil {
		return s.createAnime(ctx, staged, sourceID, opts, dryRun)
	}
	return s.updateAnime(ctx, staged, binding, sourceID, opts, dryRun)
}

func (s *Service) createAnime(ctx context.Context, staged *models.ExternalAnime, sourceID int, opts Options, dryRun bool) (*models.PublishResult, error) {
	targetState := models.StatePending
	if opts.TargetState != nil {
		targetState = *opts.TargetState
	}

	if dryRun {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"source_id":    sourceID,
			"external_id":  staged.ExternalID,
			"target_state": targetState,
		}).Info("Dry run: would create anime")
		return &models.PublishResult{Created: true, DryRun: true}, nil
	}

	if err := s.checkTargetState(opts.Actor, targetState, "anime", staged.ExternalID, models.StateDraft); err != nil {
		metrics.RecordPublishBlocked("state")
		return nil, err
	}

	now := time.Now().UTC()
	entity := &models.Anime{
		ID:        uuid.New().String(),
		State:     targetState,
		Source:    models.SourceParser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyAnimeFields(entity, diffAnime(nil, staged))

	releaseID := uuid.New().String()
	entity.ReleaseID = &releaseID

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.animes.Create(ctx, entity); err != nil {
			return err
		}
		if err := s.releases.Create(ctx, &models.Release{
			ID:        releaseID,
			AnimeID:   entity.ID,
			Name:      entity.Name,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := s.bindings.Create(ctx, &models.Binding{
			ID:              uuid.New().String(),
			ExternalAnimeID: staged.ID,
			AnimeID:         entity.ID,
			CreatedBy:       opts.Actor.ID,
			CreatedVia:      "publish",
			CreatedAt:       now,
		}); err != nil {
			return err
		}

		after, _ := json.Marshal(entity)
		return s.audit.Record(ctx, &models.AuditEntry{
			ActorKind:  models.ActorSystem,
			Action:     "anime.create",
			EntityType: "anime",
			EntityID:   entity.ID,
			After:      after,
			Reason:     fmt.Sprintf("published from source %d external id %s", sourceID, staged.ExternalID),
			CreatedAt:  now,
		})
	})
	if err != nil {
		metrics.RecordPublish("anime", "error")
		return nil, err
	}

	metrics.RecordPublish("anime", "created")
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"anime_id":    entity.ID,
		"source_id":   sourceID,
		"external_id": staged.ExternalID,
	}).Info("Published new anime")

	if err := s.emitter.EmitAnimePublished(ctx, entity, sourceID, true); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Publish event emission failed")
	}

	return &models.PublishResult{ID: entity.ID, Created: true}, nil
}

func (s *Service) updateAnime(ctx context.Context, staged *models.ExternalAnime, binding *models.Binding, sourceID int, opts Options, dryRun bool) (*models.PublishResult, error) {
	current, err := s.animes.GetByID(ctx, binding.AnimeID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &NotFoundError{Entity: "anime", ID: binding.AnimeID}
	}

	changes := diffAnime(current, staged)

	if err := s.checkAnimeCompliance(current, changes, opts.Actor); err != nil {
		return nil, err
	}

	targetState := current.State
	if opts.TargetState != nil {
		targetState = *opts.TargetState
	}

	if dryRun {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"anime_id":     current.ID,
			"external_id":  staged.ExternalID,
			"changes":      len(changes),
			"target_state": targetState,
		}).Info("Dry run: would update anime")
		return &models.PublishResult{ID: current.ID, Created: false, DryRun: true}, nil
	}

	if err := s.checkTargetState(opts.Actor, targetState, "anime", current.ID, current.State); err != nil {
		metrics.RecordPublishBlocked("state")
		return nil, err
	}

	if len(changes) == 0 && targetState == current.State {
		return &models.PublishResult{ID: current.ID, Created: false}, nil
	}

	now := time.Now().UTC()
	before, _ := json.Marshal(current)

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		locked, err := s.animes.GetByIDForUpdate(ctx, current.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return &NotFoundError{Entity: "anime", ID: current.ID}
		}

		// Re-diff under the row lock: the row may have moved since the
		// unlocked read and the compliance checks must hold for what we
		// actually overwrite.
		changes = diffAnime(locked, staged)
		if err := s.checkAnimeCompliance(locked, changes, opts.Actor); err != nil {
			return err
		}

		applyAnimeFields(locked, changes)
		locked.State = targetState
		locked.Source = models.SourceParser
		locked.UpdatedBy = nil
		locked.UpdatedAt = now
		if err := s.animes.Update(ctx, locked); err != nil {
			return err
		}
		current = locked

		if len(changes) == 0 {
			return nil
		}

		after, _ := json.Marshal(locked)
		return s.audit.Record(ctx, &models.AuditEntry{
			ActorKind:  models.ActorSystem,
			Action:     "anime.update",
			EntityType: "anime",
			EntityID:   locked.ID,
			Before:     before,
			After:      after,
			Reason:     fmt.Sprintf("published from source %d external id %s", sourceID, staged.ExternalID),
			CreatedAt:  now,
		})
	})
	if err != nil {
		metrics.RecordPublish("anime", "error")
		return nil, err
	}

	metrics.RecordPublish("anime", "updated")

	if err := s.emitter.EmitAnimePublished(ctx, current, sourceID, false); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Publish event emission failed")
	}

	return &models.PublishResult{ID: current.ID, Created: false}, nil
}

// PublishEpisode publishes the staged episode data for (animeID, number)
// into the canonical store, resolving the staged record through the anime's
// bindings.
func (s *Service) PublishEpisode(ctx context.Context, animeID string, number int, opts Options) (*models.PublishResult, error) {
	ctx, span := tracing.StartSpan(ctx, "publish.Service.PublishEpisode")
	defer span.End()

	parent, err := s.animes.GetByID(ctx, animeID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, &NotFoundError{Entity: "anime", ID: animeID}
	}

	staged, stagedSourceID, err := s.findStagedEpisode(ctx, animeID, number)
	if err != nil {
		return nil, err
	}
	if staged == nil {
		return nil, &NotFoundError{Entity: "staged episode", ID: fmt.Sprintf("%s/%d", animeID, number)}
	}

	current, err := s.episodes.GetByAnimeAndNumber(ctx, animeID, number)
	if err != nil {
		return nil, err
	}

	changes := diffEpisode(current, staged)

	if current != nil {
		if err := s.checkEpisodeCompliance(current, changes, opts.Actor); err != nil {
			return nil, err
		}
	}

	targetState := models.StatePending
	fromState := models.StateDraft
	if current != nil {
		targetState = current.State
		fromState = current.State
	}
	if opts.TargetState != nil {
		targetState = *opts.TargetState
	}

	dryRun, err := s.effectiveDryRun(ctx, opts)
	if err != nil {
		return nil, err
	}
	if dryRun {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"anime_id":     animeID,
			"number":       number,
			"changes":      len(changes),
			"target_state": targetState,
		}).Info("Dry run: would publish episode")
		result := &models.PublishResult{Created: current == nil, DryRun: true}
		if current != nil {
			result.ID = current.ID
		}
		return result, nil
	}

	entityID := fmt.Sprintf("%s/%d", animeID, number)
	if err := s.checkTargetState(opts.Actor, targetState, "episode", entityID, fromState); err != nil {
		metrics.RecordPublishBlocked("state")
		return nil, err
	}

	if current != nil && len(changes) == 0 && targetState == current.State {
		return &models.PublishResult{ID: current.ID, Created: false}, nil
	}

	now := time.Now().UTC()
	created := current == nil
	var entity *models.Episode

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if created {
			entity = &models.Episode{
				ID:           uuid.New().String(),
				AnimeID:      animeID,
				Number:       number,
				StreamURL:    staged.StreamURL,
				Translations: staged.Translations,
				Qualities:    staged.Qualities,
				State:        targetState,
				Source:       models.SourceParser,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := s.episodes.Create(ctx, entity); err != nil {
				return err
			}

			after, _ := json.Marshal(entity)
			return s.audit.Record(ctx, &models.AuditEntry{
				ActorKind:  models.ActorSystem,
				Action:     "episode.create",
				EntityType: "episode",
				EntityID:   entity.ID,
				After:      after,
				Reason:     fmt.Sprintf("published from source %d for anime %s episode %d", stagedSourceID, animeID, number),
				CreatedAt:  now,
			})
		}

		before, _ := json.Marshal(current)
		entity = current
		entity.StreamURL = staged.StreamURL
		entity.Translations = staged.Translations
		entity.Qualities = staged.Qualities
		entity.State = targetState
		entity.Source = models.SourceParser
		entity.UpdatedBy = nil
		entity.UpdatedAt = now
		if err := s.episodes.Update(ctx, entity); err != nil {
			return err
		}

		if len(changes) == 0 {
			return nil
		}

		after, _ := json.Marshal(entity)
		return s.audit.Record(ctx, &models.AuditEntry{
			ActorKind:  models.ActorSystem,
			Action:     "episode.update",
			EntityType: "episode",
			EntityID:   entity.ID,
			Before:     before,
			After:      after,
			Reason:     fmt.Sprintf("published from source %d for anime %s episode %d", stagedSourceID, animeID, number),
			CreatedAt:  now,
		})
	})
	if err != nil {
		metrics.RecordPublish("episode", "error")
		return nil, err
	}

	if created {
		metrics.RecordPublish("episode", "created")
	} else {
		metrics.RecordPublish("episode", "updated")
	}

	if err := s.emitter.EmitEpisodePublished(ctx, entity, stagedSourceID, created); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Publish event emission failed")
	}

	return &models.PublishResult{ID: entity.ID, Created: created}, nil
}

// PreviewDiff computes the changes PublishAnime would make without writing
// anything.
func (s *Service) PreviewDiff(ctx context.Context, sourceID int, externalID string) (*models.PublishDiff, error) {
	ctx, span := tracing.StartSpan(ctx, "publish.Service.PreviewDiff")
	defer span.End()

	staged, err := s.stagedTitles.GetBySourceAndExternalID(ctx, sourceID, externalID)
	if err != nil {
		return nil, err
	}
	if staged == nil {
		return nil, &NotFoundError{Entity: "staged title", ID: fmt.Sprintf("%d/%s", sourceID, externalID)}
	}

	binding, err := s.bindings.GetByExternalAnimeID(ctx, staged.ID)
	if err != nil {
		return nil, err
	}

	if binding == nil {
		return &models.PublishDiff{Created: true, Changes: diffAnime(nil, staged)}, nil
	}

	current, err := s.animes.GetByID(ctx, binding.AnimeID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &NotFoundError{Entity: "anime", ID: binding.AnimeID}
	}

	return &models.PublishDiff{AnimeID: current.ID, Created: false, Changes: diffAnime(current, staged)}, nil
}

func (s *Service) checkAnimeCompliance(current *models.Anime, changes []models.FieldChange, actor models.Actor) error {
	if current.Source == models.SourceManual {
		metrics.RecordPublishBlocked("manual_override")
		return &ManualOverrideError{Entity: "anime", ID: current.ID}
	}

	if actor.OverrideLocks {
		return nil
	}
	var violated []string
	for _, change := range changes {
		if current.ProtectsField(change.Field) {
			violated = append(violated, change.Field)
		}
	}
	if len(violated) > 0 {
		metrics.RecordPublishBlocked("lock")
		return &LockViolationError{Entity: "anime", ID: current.ID, Fields: violated}
	}
	return nil
}

func (s *Service) checkEpisodeCompliance(current *models.Episode, changes []models.FieldChange, actor models.Actor) error {
	if current.Source == models.SourceManual {
		metrics.RecordPublishBlocked("manual_override")
		return &ManualOverrideError{Entity: "episode", ID: current.ID}
	}

	if actor.OverrideLocks {
		return nil
	}
	var violated []string
	for _, change := range changes {
		if current.ProtectsField(change.Field) {
			violated = append(violated, change.Field)
		}
	}
	if len(violated) > 0 {
		metrics.RecordPublishBlocked("lock")
		return &LockViolationError{Entity: "episode", ID: current.ID, Fields: violated}
	}
	return nil
}

// checkTargetState validates both the transition and the actor's right to
// produce the target state. Automated actors may only leave entities in
// draft, pending, or broken.
func (s *Service) checkTargetState(actor models.Actor, target models.EntityState, entity, id string, from models.EntityState) error {
	if err := statemachine.Validate(from, target); err != nil {
		return &StateError{Entity: entity, ID: id, Reason: err.Error()}
	}
	if actor.Kind != models.ActorUser && !statemachine.AllowedForAutomation(target) {
		return &StateError{
			Entity: entity,
			ID:     id,
			Reason: fmt.Sprintf("automated writers cannot leave entities in state %s", target),
		}
	}
	return nil
}

func (s *Service) effectiveDryRun(ctx context.Context, opts Options) (bool, error) {
	if opts.DryRun != nil {
		return *opts.DryRun, nil
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return false, err
	}
	return settings.DryRunDefault, nil
}

// findStagedEpisode resolves the staged episode for a canonical anime and
// number through its bindings. When several sources stage the same number the
// first binding wins.
func (s *Service) findStagedEpisode(ctx context.Context, animeID string, number int) (*models.ExternalEpisode, int, error) {
	bindings, err := s.bindings.ListByAnimeID(ctx, animeID)
	if err != nil {
		return nil, 0, err
	}

	for _, b := range bindings {
		staged, err := s.stagedEpisodes.GetByNumber(ctx, b.ExternalAnimeID, number)
		if err != nil {
			return nil, 0, err
		}
		if staged != nil {
			return staged, staged.SourceID, nil
		}
	}
	return nil, 0, nil
}
