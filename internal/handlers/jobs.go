package handlers

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
)

// JobStore reads job history.
type JobStore interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	ListRecent(ctx context.Context, kind models.JobKind, limit int) ([]models.Job, error)
	ListLogs(ctx context.Context, jobID string) ([]models.JobLog, error)
}

// JobHandler exposes the pipeline job history
type JobHandler struct {
	store  JobStore
	logger ectologger.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(store JobStore, logger ectologger.Logger) *JobHandler {
	return &JobHandler{store: store, logger: logger}
}

// RegisterRoutes registers job routes
func (h *JobHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/jobs", h.List)
	g.GET("/jobs/:id", h.Get)
	g.GET("/jobs/:id/logs", h.Logs)
}

// List returns recent jobs, optionally filtered by kind.
func (h *JobHandler) List(c echo.Context) error {
	kind := models.JobKind(c.QueryParam("kind"))
	switch kind {
	case "", models.JobCatalogSync, models.JobScheduleSync, models.JobEpisodeSync, models.JobAutoupdate:
	default:
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown job kind %q", kind)
	}

	limit, err := ParseLimitQuery(c, 50, 500)
	if err != nil {
		return err
	}

	jobs, err := h.store.ListRecent(c.Request().Context(), kind, limit)
	if err != nil {
		return err
	}
	return SuccessResponse(c, jobs)
}

// Get returns one job record.
func (h *JobHandler) Get(c echo.Context) error {
	entity, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, entity)
}

// Logs returns the operational log lines of one job.
func (h *JobHandler) Logs(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	// 404 on unknown job rather than an empty log list.
	if _, err := h.store.Get(ctx, id); err != nil {
		return err
	}

	logs, err := h.store.ListLogs(ctx, id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, logs)
}
