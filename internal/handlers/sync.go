package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/services/sync"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SyncService runs sync passes.
type SyncService interface {
	SyncAll(ctx context.Context, opts sync.Options) (*models.SyncSummary, error)
	SyncSource(ctx context.Context, sourceID int, opts sync.Options) (*models.SyncSummary, error)
}

// SyncHandler handles manual sync triggers
type SyncHandler struct {
	service SyncService
	logger  ectologger.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(service SyncService, logger ectologger.Logger) *SyncHandler {
	return &SyncHandler{service: service, logger: logger}
}

// RegisterRoutes registers sync routes
func (h *SyncHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/sync", h.SyncAll)
	g.POST("/sync/sources/:source_id", h.SyncSource)
}

// SyncAll triggers a sync pass over every registered source. Without
// persist=true the pass is a preview and stages nothing.
func (h *SyncHandler) SyncAll(c echo.Context) error {
	ctx := c.Request().Context()

	opts, err := syncOptions(c)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithField("persist", opts.Persist).Info("Manual sync requested")

	summary, err := h.service.SyncAll(ctx, opts)
	if err != nil {
		return err
	}
	return SuccessResponse(c, summary)
}

// SyncSource triggers a sync pass for one source.
func (h *SyncHandler) SyncSource(c echo.Context) error {
	ctx := c.Request().Context()

	sourceID, err := ParseIntParam(c, "source_id")
	if err != nil {
		return err
	}

	opts, err := syncOptions(c)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"source_id": sourceID,
		"persist":   opts.Persist,
	}).Info("Manual source sync requested")

	summary, err := h.service.SyncSource(ctx, sourceID, opts)
	if err != nil {
		return err
	}
	return SuccessResponse(c, summary)
}

func syncOptions(c echo.Context) (sync.Options, error) {
	persist, err := ParseBoolQuery(c, "persist", false)
	if err != nil {
		return sync.Options{}, err
	}
	publish, err := ParseBoolQuery(c, "publish", false)
	if err != nil {
		return sync.Options{}, err
	}
	return sync.Options{Persist: persist, Publish: publish}, nil
}
