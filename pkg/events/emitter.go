// Package events handles event emission for content lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes lifecycle events after canonical writes commit. Emission
// is outside the transaction; a failed emit is logged and surfaced but never
// rolls back the write it describes.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitAnimePublished emits an anime.published event
func (e *Emitter) EmitAnimePublished(ctx context.Context, anime *models.Anime, sourceID int, created bool) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitAnimePublished")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"name":           anime.Name,
		"state":          anime.State,
		"created":        created,
	})

	event := &kafka.ContentEvent{
		EventType:  "anime.published",
		EntityID:   anime.ID,
		EntityType: "anime",
		SourceID:   sourceID,
		Data:       data,
	}

	if err := e.producer.PublishContentEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit anime.published event")
		return err
	}

	return nil
}

// EmitEpisodePublished emits an episode.published event
func (e *Emitter) EmitEpisodePublished(ctx context.Context, episode *models.Episode, sourceID int, created bool) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEpisodePublished")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"anime_id":       episode.AnimeID,
		"number":         episode.Number,
		"state":          episode.State,
		"created":        created,
	})

	event := &kafka.ContentEvent{
		EventType:  "episode.published",
		EntityID:   episode.ID,
		EntityType: "episode",
		SourceID:   sourceID,
		Data:       data,
	}

	if err := e.producer.PublishContentEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit episode.published event")
		return err
	}

	return nil
}

// EmitAutoupdateConflict emits an autoupdate.conflict event when a manual
// override blocked an automated write and the record was flagged for review.
func (e *Emitter) EmitAutoupdateConflict(ctx context.Context, animeID string, number int, sourceID int) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitAutoupdateConflict")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"anime_id":       animeID,
		"number":         number,
	})

	event := &kafka.ContentEvent{
		EventType:  "autoupdate.conflict",
		EntityID:   animeID,
		EntityType: "episode",
		SourceID:   sourceID,
		Data:       data,
	}

	if err := e.producer.PublishContentEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit autoupdate.conflict event")
		return err
	}

	return nil
}
