package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
)

// AutoupdateService runs autoupdate passes.
type AutoupdateService interface {
	Run(ctx context.Context, force bool) *models.AutoupdateSummary
}

// AutoupdateHandler handles manual autoupdate triggers
type AutoupdateHandler struct {
	service AutoupdateService
	logger  ectologger.Logger
}

// NewAutoupdateHandler creates a new autoupdate handler
func NewAutoupdateHandler(service AutoupdateService, logger ectologger.Logger) *AutoupdateHandler {
	return &AutoupdateHandler{service: service, logger: logger}
}

// RegisterRoutes registers autoupdate routes
func (h *AutoupdateHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/autoupdate/run", h.Run)
}

// Run triggers one autoupdate pass. force=true bypasses the enable flag and
// the per-slot recency check. Failures are reported in the summary body, not
// as an HTTP error.
func (h *AutoupdateHandler) Run(c echo.Context) error {
	ctx := c.Request().Context()

	force, err := ParseBoolQuery(c, "force", false)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithField("force", force).Info("Manual autoupdate requested")

	summary := h.service.Run(ctx, force)
	return SuccessResponse(c, summary)
}
