package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
)

// AnimeLockStore reads titles and manages their edit locks.
type AnimeLockStore interface {
	GetByID(ctx context.Context, id string) (*models.Anime, error)
	SetLock(ctx context.Context, id string, fields []string, lockedBy *string, reason string, now time.Time) error
	ClearLock(ctx context.Context, id string, now time.Time) error
}

// LockAuditStore appends compliance trail entries.
type LockAuditStore interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
}

// LockHandler manages edit locks on canonical titles
type LockHandler struct {
	animes AnimeLockStore
	audit  LockAuditStore
	logger ectologger.Logger
}

// NewLockHandler creates a new lock handler
func NewLockHandler(animes AnimeLockStore, audit LockAuditStore, logger ectologger.Logger) *LockHandler {
	return &LockHandler{animes: animes, audit: audit, logger: logger}
}

// RegisterRoutes registers lock routes
func (h *LockHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/animes/:id/lock", h.Lock)
	g.DELETE("/animes/:id/lock", h.Unlock)
}

type lockRequest struct {
	// Fields limits the lock to the named attributes. Empty locks the whole
	// entity.
	Fields []string `json:"fields,omitempty"`
	Reason string   `json:"reason"`
}

// Lock places an edit lock on a title. Only people hold locks.
func (h *LockHandler) Lock(c echo.Context) error {
	ctx := c.Request().Context()

	actor := ActorFromRequest(c)
	if actor.Kind != models.ActorUser {
		return httperror.NewHTTPError(http.StatusUnauthorized, "an actor id is required to manage locks")
	}

	id := c.Param("id")
	entity, err := h.animes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if entity == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "anime %s not found", id)
	}

	var req lockRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	now := time.Now().UTC()
	if err := h.animes.SetLock(ctx, id, req.Fields, actor.ID, req.Reason, now); err != nil {
		return err
	}

	after, _ := json.Marshal(map[string]any{"fields": req.Fields, "reason": req.Reason})
	if err := h.audit.Record(ctx, &models.AuditEntry{
		ActorID:    actor.ID,
		ActorKind:  actor.Kind,
		Action:     "anime.lock",
		EntityType: "anime",
		EntityID:   id,
		After:      after,
		Reason:     req.Reason,
		CreatedAt:  now,
	}); err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("Failed to record lock audit entry")
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"anime_id": id,
		"fields":   req.Fields,
	}).Info("Edit lock placed")

	return NoContentResponse(c)
}

// Unlock removes the edit lock from a title.
func (h *LockHandler) Unlock(c echo.Context) error {
	ctx := c.Request().Context()

	actor := ActorFromRequest(c)
	if actor.Kind != models.ActorUser {
		return httperror.NewHTTPError(http.StatusUnauthorized, "an actor id is required to manage locks")
	}

	id := c.Param("id")
	entity, err := h.animes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if entity == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "anime %s not found", id)
	}

	now := time.Now().UTC()
	if err := h.animes.ClearLock(ctx, id, now); err != nil {
		return err
	}

	if err := h.audit.Record(ctx, &models.AuditEntry{
		ActorID:    actor.ID,
		ActorKind:  actor.Kind,
		Action:     "anime.unlock",
		EntityType: "anime",
		EntityID:   id,
		Reason:     "edit lock removed via API",
		CreatedAt:  now,
	}); err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("Failed to record unlock audit entry")
	}

	return NoContentResponse(c)
}
