package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/audit"
	"github.com/Ramsey-B/fern/pkg/models"
)

// AuditReader lists compliance trail entries.
type AuditReader interface {
	List(ctx context.Context, filter audit.ListFilter) ([]models.AuditEntry, error)
}

// AuditHandler exposes the audit trail
type AuditHandler struct {
	store  AuditReader
	logger ectologger.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(store AuditReader, logger ectologger.Logger) *AuditHandler {
	return &AuditHandler{store: store, logger: logger}
}

// RegisterRoutes registers audit routes
func (h *AuditHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/audit", h.List)
}

// List returns audit entries newest first, filterable by entity and action.
func (h *AuditHandler) List(c echo.Context) error {
	limit, err := ParseLimitQuery(c, 100, 1000)
	if err != nil {
		return err
	}

	entries, err := h.store.List(c.Request().Context(), audit.ListFilter{
		EntityType: c.QueryParam("entity_type"),
		EntityID:   c.QueryParam("entity_id"),
		Action:     c.QueryParam("action"),
		Limit:      limit,
	})
	if err != nil {
		return err
	}
	return SuccessResponse(c, entries)
}
