// Package audit persists the append-only compliance trail.
package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/fern/pkg/appctx"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var columns = []string{
	"id", "actor_id", "actor_kind", "action", "entity_type", "entity_id",
	"before", "after", "reason", "request_id", "created_at",
}

// Repository handles audit trail persistence
type Repository struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

// NewRepository creates a new audit repository
func NewRepository(db *sqlx.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Record appends one audit entry. When called inside a transaction the entry
// commits or rolls back with the mutation it describes. The request id is
// taken from the context when present.
func (r *Repository) Record(ctx context.Context, entry *models.AuditEntry) error {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.Record")
	defer span.End()

	if entry.RequestID == nil {
		if requestID := appctx.GetRequestID(ctx); requestID != "" {
			entry.RequestID = &requestID
		}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_log (
			actor_id, actor_kind, action, entity_type, entity_id,
			before, after, reason, request_id, created_at
		) VALUES (
			:actor_id, :actor_kind, :action, :entity_type, :entity_id,
			:before, :after, :reason, :request_id, :created_at
		)
	`

	if _, err := sqlx.NamedExecContext(ctx, database.FromContext(ctx, r.db), query, entry); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"action":      entry.Action,
			"entity_type": entry.EntityType,
			"entity_id":   entry.EntityID,
		}).Error("Failed to record audit entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record audit entry")
	}
	return nil
}

// ListFilter narrows audit queries.
type ListFilter struct {
	EntityType string
	EntityID   string
	Action     string
	Limit      int
}

// List returns audit entries newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.AuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("audit_log")
	var where []string
	if filter.EntityType != "" {
		where = append(where, sb.Equal("entity_type", filter.EntityType))
	}
	if filter.EntityID != "" {
		where = append(where, sb.Equal("entity_id", filter.EntityID))
	}
	if filter.Action != "" {
		where = append(where, sb.Equal("action", filter.Action))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("id DESC")
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	sb.Limit(limit)

	query, args := sb.Build()
	var entries []models.AuditEntry
	if err := sqlx.SelectContext(ctx, database.FromContext(ctx, r.db), &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list audit entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list audit entries")
	}
	return entries, nil
}
