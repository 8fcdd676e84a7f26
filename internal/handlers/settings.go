package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SettingsStore reads and writes the operational configuration.
type SettingsStore interface {
	Get(ctx context.Context) (*models.Settings, error)
	Save(ctx context.Context, entity *models.Settings, now time.Time) error
}

// SettingsAuditStore appends compliance trail entries.
type SettingsAuditStore interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
}

// SettingsHandler handles the operational configuration API
type SettingsHandler struct {
	store     SettingsStore
	audit     SettingsAuditStore
	validator *validator.Validate
	logger    ectologger.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(store SettingsStore, audit SettingsAuditStore, logger ectologger.Logger) *SettingsHandler {
	return &SettingsHandler{
		store:     store,
		audit:     audit,
		validator: validator.New(),
		logger:    logger,
	}
}

// RegisterRoutes registers settings routes
func (h *SettingsHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/settings", h.Get)
	g.PUT("/settings", h.Update)
}

// Get returns the current settings.
func (h *SettingsHandler) Get(c echo.Context) error {
	entity, err := h.store.Get(c.Request().Context())
	if err != nil {
		return err
	}
	return SuccessResponse(c, entity)
}

// Update applies a partial settings change. Unset fields keep their current
// value; the write is versioned and audited.
func (h *SettingsHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.UpdateSettingsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	entity, err := h.store.Get(ctx)
	if err != nil {
		return err
	}
	before, _ := json.Marshal(entity)

	applySettingsPatch(entity, &req)

	now := time.Now().UTC()
	if err := h.store.Save(ctx, entity, now); err != nil {
		return err
	}

	actor := ActorFromRequest(c)
	after, _ := json.Marshal(entity)
	if err := h.audit.Record(ctx, &models.AuditEntry{
		ActorID:    actor.ID,
		ActorKind:  actor.Kind,
		Action:     "settings.update",
		EntityType: "settings",
		EntityID:   "1",
		Before:     before,
		After:      after,
		Reason:     "settings updated via API",
		CreatedAt:  now,
	}); err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("Failed to record settings audit entry")
	}

	h.logger.WithContext(ctx).WithField("version", entity.Version).Info("Settings updated")
	return SuccessResponse(c, entity)
}

func applySettingsPatch(entity *models.Settings, req *models.UpdateSettingsRequest) {
	if req.Mode != nil {
		entity.Mode = *req.Mode
	}
	if req.EnableAutoupdate != nil {
		entity.EnableAutoupdate = *req.EnableAutoupdate
	}
	if req.UpdateIntervalMinutes != nil {
		entity.UpdateIntervalMinutes = *req.UpdateIntervalMinutes
	}
	if req.DryRunDefault != nil {
		entity.DryRunDefault = *req.DryRunDefault
	}
	if req.AllowedTranslationTypes != nil {
		entity.AllowedTranslationTypes = database.NewJSONB(*req.AllowedTranslationTypes)
	}
	if req.AllowedTranslations != nil {
		entity.AllowedTranslations = database.NewJSONB(*req.AllowedTranslations)
	}
	if req.AllowedQualities != nil {
		entity.AllowedQualities = database.NewJSONB(*req.AllowedQualities)
	}
	if req.PreferredTranslationPriority != nil {
		entity.PreferredTranslationPriority = database.NewJSONB(*req.PreferredTranslationPriority)
	}
	if req.PreferredQualityPriority != nil {
		entity.PreferredQualityPriority = database.NewJSONB(*req.PreferredQualityPriority)
	}
	if req.BlacklistTitles != nil {
		entity.BlacklistTitles = database.NewJSONB(*req.BlacklistTitles)
	}
	if req.BlacklistExternalIDs != nil {
		entity.BlacklistExternalIDs = database.NewJSONB(*req.BlacklistExternalIDs)
	}
}
