package portfolio

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

var holdingColumns = []string{
	"id", "advisor_id", "client_id", "category", "kind", "label",
	"amount", "monthly_amount", "remaining_capital", "end_date", "data",
	"created_at", "updated_at", "deleted_at",
}

// HoldingRepository handles the financial line items attached to a client.
// All categories (income lines, liabilities, financial assets, property
// assets, other savings) share one table with a category discriminator.
type HoldingRepository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db database.DB, logger ectologger.Logger) *HoldingRepository {
	return &HoldingRepository{
		db:     db,
		logger: logger,
	}
}

// ListByClient returns every holding for a client across all categories.
func (r *HoldingRepository) ListByClient(ctx context.Context, advisorID, clientID string) ([]models.Holding, error) {
	ctx, span := tracing.StartSpan(ctx, "portfolio.HoldingRepository.ListByClient")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(holdingColumns...)
	sb.From("holdings")
	sb.Where(
		sb.Equal("advisor_id", advisorID),
		sb.Equal("client_id", clientID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("category ASC", "created_at ASC")

	query, args := sb.Build()
	var holdings []models.Holding
	if err := r.db.SelectContext(ctx, &holdings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "client_id": clientID}).Error("Failed to list holdings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list holdings")
	}
	return holdings, nil
}

// ListByCategory returns the client's holdings for one category in insertion order.
func (r *HoldingRepository) ListByCategory(ctx context.Context, advisorID, clientID, category string) ([]models.Holding, error) {
	ctx, span := tracing.StartSpan(ctx, "portfolio.HoldingRepository.ListByCategory")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(holdingColumns...)
	sb.From("holdings")
	sb.Where(
		sb.Equal("advisor_id", advisorID),
		sb.Equal("client_id", clientID),
		sb.Equal("category", category),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var holdings []models.Holding
	if err := r.db.SelectContext(ctx, &holdings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "client_id": clientID, "category": category}).Error("Failed to list holdings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list holdings")
	}
	return holdings, nil
}

// SyncCategory reconciles incoming elements with the stored holdings of one
// category. Elements carrying an id update that row; elements without one
// match by kind (case-insensitive), then by position, and insert otherwise.
// Stored rows absent from the incoming list are left untouched.
func (r *HoldingRepository) SyncCategory(ctx context.Context, advisorID, clientID, category string, items []map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "portfolio.HoldingRepository.SyncCategory")
	defer span.End()

	existing, err := r.ListByCategory(ctx, advisorID, clientID, category)
	if err != nil {
		return err
	}

	byID := make(map[string]*models.Holding, len(existing))
	byKind := make(map[string]*models.Holding, len(existing))
	for i := range existing {
		byID[existing[i].ID] = &existing[i]
		byKind[strings.ToLower(existing[i].Kind)] = &existing[i]
	}
	consumed := make(map[string]bool, len(existing))

	for i, item := range items {
		var target *models.Holding
		if id, ok := item["id"].(string); ok && id != "" {
			target = byID[id]
		}
		if target == nil {
			if kind, ok := item["kind"].(string); ok {
				if m := byKind[strings.ToLower(strings.TrimSpace(kind))]; m != nil && !consumed[m.ID] {
					target = m
				}
			}
		}
		if target == nil && i < len(existing) && !consumed[existing[i].ID] {
			target = &existing[i]
		}

		if target != nil {
			consumed[target.ID] = true
			if err := r.update(ctx, advisorID, target, item); err != nil {
				return err
			}
			continue
		}
		if err := r.insert(ctx, advisorID, clientID, category, item); err != nil {
			return err
		}
	}

	return nil
}

func (r *HoldingRepository) update(ctx context.Context, advisorID string, current *models.Holding, item map[string]any) error {
	known, extra := splitHoldingElement(item)

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("holdings")
	assignments := []string{ub.Assign("updated_at", sqlbuilder.Raw("NOW()"))}
	for col, val := range known {
		assignments = append(assignments, ub.Assign(col, val))
	}
	if len(extra) > 0 {
		// merge new extra keys over the stored jsonb payload
		merged := map[string]any{}
		for k, v := range current.Data.Data {
			merged[k] = v
		}
		for k, v := range extra {
			merged[k] = v
		}
		assignments = append(assignments, ub.Assign("data", database.NewJSONB(merged)))
	}
	ub.Set(assignments...)
	ub.Where(
		ub.Equal("advisor_id", advisorID),
		ub.Equal("id", current.ID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "holding_id": current.ID}).Error("Failed to update holding")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update holding")
	}
	return nil
}

func (r *HoldingRepository) insert(ctx context.Context, advisorID, clientID, category string, item map[string]any) error {
	kind, _ := item["kind"].(string)
	if strings.TrimSpace(kind) == "" {
		return nil
	}

	known, extra := splitHoldingElement(item)
	delete(known, "kind")

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("holdings")
	cols := []string{"id", "advisor_id", "client_id", "category", "kind", "data"}
	vals := []any{uuid.New().String(), advisorID, clientID, category, kind, database.NewJSONB(extra)}
	for col, val := range known {
		cols = append(cols, col)
		vals = append(vals, val)
	}
	ib.Cols(cols...)
	ib.Values(vals...)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "client_id": clientID, "category": category}).Error("Failed to insert holding")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert holding")
	}
	return nil
}

// splitHoldingElement separates an element into column-backed values and the
// remainder destined for the jsonb data column. The id key is dropped.
func splitHoldingElement(item map[string]any) (known map[string]any, extra map[string]any) {
	known = map[string]any{}
	extra = map[string]any{}
	for key, val := range item {
		switch key {
		case "id":
		case "kind", "label", "end_date":
			if s, ok := val.(string); ok && s != "" {
				known[key] = s
			}
		case "amount", "monthly_amount", "remaining_capital":
			if f, ok := val.(float64); ok {
				known[key] = f
			}
		default:
			extra[key] = val
		}
	}
	return known, extra
}
