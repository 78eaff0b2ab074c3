package pendingchange

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

var pendingChangeColumns = []string{
	"id", "advisor_id", "client_id", "source", "status", "recording_id",
	"changes", "changes_count", "conflicts_count", "decisions", "overrides",
	"list_removals", "notes", "resolved_by", "created_at", "updated_at",
	"resolved_at", "deleted_at",
}

// Repository handles review session persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new pending change repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database for transaction-spanning callers.
func (r *Repository) DB() database.DB {
	return r.db
}

// Create persists a new pending review session.
func (r *Repository) Create(ctx context.Context, advisorID string, req models.CreatePendingChangeRequest) (*models.PendingChange, error) {
	ctx, span := tracing.StartSpan(ctx, "pendingchange.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"advisor_id": advisorID,
		"client_id":  req.ClientID,
		"source":     req.Source,
	})

	changesJSON, err := json.Marshal(req.Changes)
	if err != nil {
		log.WithError(err).Error("Failed to encode changes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode changes")
	}
	removalsJSON, err := json.Marshal(req.ListRemovals)
	if err != nil {
		log.WithError(err).Error("Failed to encode list removals")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode list removals")
	}

	conflicts := 0
	for _, c := range req.Changes {
		if c.IsConflict {
			conflicts++
		}
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("pending_changes")
	ib.Cols("id", "advisor_id", "client_id", "source", "status", "recording_id",
		"changes", "changes_count", "conflicts_count", "decisions", "overrides", "list_removals")
	ib.Values(uuid.New().String(), advisorID, req.ClientID, req.Source, models.StatusPending,
		req.RecordingID, changesJSON, len(req.Changes), conflicts, []byte("{}"), []byte("{}"), removalsJSON)
	ib.SQL("RETURNING " + strings.Join(pendingChangeColumns, ", "))

	query, args := ib.Build()
	var created models.PendingChange
	if err := r.db.GetContext(ctx, &created, query, args...); err != nil {
		log.WithError(err).Error("Failed to create pending change")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create pending change")
	}

	log.WithFields(map[string]any{"pending_change_id": created.ID, "changes_count": created.ChangesCount}).Info("Created pending change")
	return &created, nil
}

// GetByID retrieves a review session by ID. Returns nil if not found.
func (r *Repository) GetByID(ctx context.Context, advisorID, id string) (*models.PendingChange, error) {
	ctx, span := tracing.StartSpan(ctx, "pendingchange.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(pendingChangeColumns...)
	sb.From("pending_changes")
	sb.Where(
		sb.Equal("advisor_id", advisorID),
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var pc models.PendingChange
	if err := r.db.GetContext(ctx, &pc, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "pending_change_id": id}).Error("Failed to get pending change")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get pending change")
	}
	return &pc, nil
}

// List returns a page of review sessions, optionally filtered by status.
func (r *Repository) List(ctx context.Context, advisorID, status string, page, pageSize int) (*models.PendingChangeListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "pendingchange.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	countSB := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSB.Select("COUNT(*)")
	countSB.From("pending_changes")
	countWhere := []string{
		countSB.Equal("advisor_id", advisorID),
		countSB.IsNull("deleted_at"),
	}
	if status != "" {
		countWhere = append(countWhere, countSB.Equal("status", status))
	}
	countSB.Where(countWhere...)

	query, args := countSB.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "status": status}).Error("Failed to count pending changes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending changes")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(pendingChangeColumns...)
	sb.From("pending_changes")
	where := []string{
		sb.Equal("advisor_id", advisorID),
		sb.IsNull("deleted_at"),
	}
	if status != "" {
		where = append(where, sb.Equal("status", status))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	var items []models.PendingChange
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "status": status}).Error("Failed to list pending changes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending changes")
	}

	return &models.PendingChangeListResponse{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// ListByClient returns every review session for a client, newest first.
func (r *Repository) ListByClient(ctx context.Context, advisorID, clientID string) ([]models.PendingChange, error) {
	ctx, span := tracing.StartSpan(ctx, "pendingchange.Repository.ListByClient")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(pendingChangeColumns...)
	sb.From("pending_changes")
	sb.Where(
		sb.Equal("advisor_id", advisorID),
		sb.Equal("client_id", clientID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var items []models.PendingChange
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "client_id": clientID}).Error("Failed to list pending changes by client")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending changes")
	}
	return items, nil
}

// CountPendingByClient returns how many sessions are awaiting review for a
// client. This powers the review badge in the UI.
func (r *Repository) CountPendingByClient(ctx context.Context, advisorID, clientID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "pendingchange.Repository.CountPendingByClient")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("pending_changes")
	sb.Where(
		sb.Equal("advisor_id", advisorID),
		sb.Equal("client_id", clientID),
		sb.Equal("status", models.StatusPending),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "client_id": clientID}).Error("Failed to count pending changes")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count pending changes")
	}
	return count, nil
}

// SaveDecisions stores the merged decisions and overrides on a pending
// session without changing its status.
func (r *Repository) SaveDecisions(ctx context.Context, advisorID, id string, decisions map[string]string, overrides map[string]any) (*models.PendingChange, error) {
	ctx, span := tracing.StartSpan(ctx, "pendingchange.Repository.SaveDecisions")
	defer span.End()

	decisionsJSON, err := json.Marshal(decisions)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode decisions")
	}
	overridesJSON, err := json.Marshal(overrides)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode overrides")
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("pending_changes")
	ub.Set(
		ub.Assign("decisions", decisionsJSON),
		ub.Assign("overrides", overridesJSON),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(
		ub.Equal("advisor_id", advisorID),
		ub.Equal("id", id),
		ub.Equal("status", models.StatusPending),
		ub.IsNull("deleted_at"),
	)
	ub.SQL("RETURNING " + strings.Join(pendingChangeColumns, ", "))

	query, args := ub.Build()
	var updated models.PendingChange
	if err := r.db.GetContext(ctx, &updated, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "pending_change_id": id}).Error("Failed to save decisions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to save decisions")
	}
	return &updated, nil
}

// MarkApplied stamps a pending session applied with its final decisions.
// Returns nil if the session is not pending anymore, so concurrent applies
// resolve to exactly one winner.
func (r *Repository) MarkApplied(ctx context.Context, advisorID, id string, decisions map[string]string, overrides map[string]any, resolvedBy string) (*models.PendingChange, error) {
	return r.resolve(ctx, advisorID, id, models.StatusApplied, decisions, overrides, nil, resolvedBy)
}

// MarkRejected stamps a pending session rejected.
func (r *Repository) MarkRejected(ctx context.Context, advisorID, id string, reason *string, resolvedBy string) (*models.PendingChange, error) {
	return r.resolve(ctx, advisorID, id, models.StatusRejected, nil, nil, reason, resolvedBy)
}

func (r *Repository) resolve(ctx context.Context, advisorID, id, status string, decisions map[string]string, overrides map[string]any, notes *string, resolvedBy string) (*models.PendingChange, error) {
	ctx, span := tracing.StartSpan(ctx, "pendingchange.Repository.resolve")
	defer span.End()

	now := time.Now().UTC()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("pending_changes")
	assignments := []string{
		ub.Assign("status", status),
		ub.Assign("resolved_at", now),
		ub.Assign("updated_at", now),
	}
	if resolvedBy != "" {
		assignments = append(assignments, ub.Assign("resolved_by", resolvedBy))
	}
	if decisions != nil {
		decisionsJSON, err := json.Marshal(decisions)
		if err != nil {
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode decisions")
		}
		assignments = append(assignments, ub.Assign("decisions", decisionsJSON))
	}
	if overrides != nil {
		overridesJSON, err := json.Marshal(overrides)
		if err != nil {
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode overrides")
		}
		assignments = append(assignments, ub.Assign("overrides", overridesJSON))
	}
	if notes != nil {
		assignments = append(assignments, ub.Assign("notes", *notes))
	}
	ub.Set(assignments...)
	ub.Where(
		ub.Equal("advisor_id", advisorID),
		ub.Equal("id", id),
		ub.Equal("status", models.StatusPending),
		ub.IsNull("deleted_at"),
	)
	ub.SQL("RETURNING " + strings.Join(pendingChangeColumns, ", "))

	query, args := ub.Build()
	var updated models.PendingChange
	if err := r.db.GetContext(ctx, &updated, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "pending_change_id": id, "status": status}).Error("Failed to resolve pending change")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve pending change")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"pending_change_id": id, "status": status}).Info("Resolved pending change")
	return &updated, nil
}
