package handlers

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/services/publish"
	"github.com/Ramsey-B/fern/pkg/models"
)

// PublishService is the publish compliance gate.
type PublishService interface {
	PublishAnime(ctx context.Context, sourceID int, externalID string, opts publish.Options) (*models.PublishResult, error)
	PublishEpisode(ctx context.Context, animeID string, number int, opts publish.Options) (*models.PublishResult, error)
	PreviewDiff(ctx context.Context, sourceID int, externalID string) (*models.PublishDiff, error)
}

// PublishHandler handles publish and diff preview operations
type PublishHandler struct {
	service   PublishService
	validator *validator.Validate
	logger    ectologger.Logger
}

// NewPublishHandler creates a new publish handler
func NewPublishHandler(service PublishService, logger ectologger.Logger) *PublishHandler {
	return &PublishHandler{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// RegisterRoutes registers publish routes
func (h *PublishHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/publish/animes", h.PublishAnime)
	g.GET("/publish/animes/diff", h.PreviewDiff)
	g.POST("/publish/animes/:anime_id/episodes/:number", h.PublishEpisode)
}

type publishAnimeRequest struct {
	SourceID    int                 `json:"source_id" validate:"required"`
	ExternalID  string              `json:"external_id" validate:"required"`
	DryRun      *bool               `json:"dry_run,omitempty"`
	TargetState *models.EntityState `json:"target_state,omitempty" validate:"omitempty,oneof=draft pending published broken archived"`
}

type publishEpisodeRequest struct {
	DryRun      *bool               `json:"dry_run,omitempty"`
	TargetState *models.EntityState `json:"target_state,omitempty" validate:"omitempty,oneof=draft pending published broken archived"`
}

// PublishAnime publishes one staged title into the canonical store.
func (h *PublishHandler) PublishAnime(c echo.Context) error {
	ctx := c.Request().Context()

	var req publishAnimeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	opts := publish.Options{
		Actor:       ActorFromRequest(c),
		DryRun:      req.DryRun,
		TargetState: req.TargetState,
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"source_id":   req.SourceID,
		"external_id": req.ExternalID,
	}).Info("Publish requested")

	result, err := h.service.PublishAnime(ctx, req.SourceID, req.ExternalID, opts)
	if err != nil {
		return mapPublishError(err)
	}

	if result.Created && !result.DryRun {
		return CreatedResponse(c, result)
	}
	return SuccessResponse(c, result)
}

// PublishEpisode publishes one staged episode onto a canonical anime.
func (h *PublishHandler) PublishEpisode(c echo.Context) error {
	ctx := c.Request().Context()

	animeID := c.Param("anime_id")
	if animeID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "missing anime_id")
	}
	number, err := ParseIntParam(c, "number")
	if err != nil {
		return err
	}

	var req publishEpisodeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	opts := publish.Options{
		Actor:       ActorFromRequest(c),
		DryRun:      req.DryRun,
		TargetState: req.TargetState,
	}

	result, err := h.service.PublishEpisode(ctx, animeID, number, opts)
	if err != nil {
		return mapPublishError(err)
	}

	if result.Created && !result.DryRun {
		return CreatedResponse(c, result)
	}
	return SuccessResponse(c, result)
}

// PreviewDiff returns the changes a publish would make without writing.
func (h *PublishHandler) PreviewDiff(c echo.Context) error {
	ctx := c.Request().Context()

	sourceID, err := parseIntQuery(c, "source_id")
	if err != nil {
		return err
	}
	externalID := c.QueryParam("external_id")
	if externalID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "missing external_id")
	}

	diff, err := h.service.PreviewDiff(ctx, sourceID, externalID)
	if err != nil {
		return mapPublishError(err)
	}
	return SuccessResponse(c, diff)
}
