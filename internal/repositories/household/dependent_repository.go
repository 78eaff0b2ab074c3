package household

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

var dependentColumns = []string{
	"id", "advisor_id", "client_id", "first_name", "birth_date",
	"created_at", "updated_at", "deleted_at",
}

// DependentRepository handles the children attached to a client
type DependentRepository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewDependentRepository creates a new dependent repository
func NewDependentRepository(db database.DB, logger ectologger.Logger) *DependentRepository {
	return &DependentRepository{
		db:     db,
		logger: logger,
	}
}

// ListByClient returns the client's dependents in insertion order.
func (r *DependentRepository) ListByClient(ctx context.Context, advisorID, clientID string) ([]models.Dependent, error) {
	ctx, span := tracing.StartSpan(ctx, "household.DependentRepository.ListByClient")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(dependentColumns...)
	sb.From("dependents")
	sb.Where(
		sb.Equal("advisor_id", advisorID),
		sb.Equal("client_id", clientID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var dependents []models.Dependent
	if err := r.db.SelectContext(ctx, &dependents, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "client_id": clientID}).Error("Failed to list dependents")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list dependents")
	}
	return dependents, nil
}

// Sync reconciles incoming dependent elements with the stored rows.
// Elements carrying an id update that row; elements without one match an
// existing row by first name, then by position, and insert otherwise.
// Rows absent from the incoming list are left untouched: extractors see
// partial households, so absence is not a delete.
func (r *DependentRepository) Sync(ctx context.Context, advisorID, clientID string, items []map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "household.DependentRepository.Sync")
	defer span.End()

	existing, err := r.ListByClient(ctx, advisorID, clientID)
	if err != nil {
		return err
	}

	byID := make(map[string]*models.Dependent, len(existing))
	byName := make(map[string]*models.Dependent, len(existing))
	for i := range existing {
		byID[existing[i].ID] = &existing[i]
		byName[strings.ToLower(existing[i].FirstName)] = &existing[i]
	}
	consumed := make(map[string]bool, len(existing))

	for i, item := range items {
		var target *models.Dependent
		if id, ok := item["id"].(string); ok && id != "" {
			target = byID[id]
		}
		if target == nil {
			if name, ok := item["first_name"].(string); ok {
				if m := byName[strings.ToLower(strings.TrimSpace(name))]; m != nil && !consumed[m.ID] {
					target = m
				}
			}
		}
		if target == nil && i < len(existing) && !consumed[existing[i].ID] {
			target = &existing[i]
		}

		if target != nil {
			consumed[target.ID] = true
			if err := r.update(ctx, advisorID, target.ID, item); err != nil {
				return err
			}
			continue
		}
		if err := r.insert(ctx, advisorID, clientID, item); err != nil {
			return err
		}
	}

	return nil
}

func (r *DependentRepository) update(ctx context.Context, advisorID, id string, item map[string]any) error {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("dependents")
	assignments := []string{ub.Assign("updated_at", sqlbuilder.Raw("NOW()"))}
	if name, ok := item["first_name"].(string); ok && name != "" {
		assignments = append(assignments, ub.Assign("first_name", name))
	}
	if birthDate, ok := item["birth_date"].(string); ok && birthDate != "" {
		assignments = append(assignments, ub.Assign("birth_date", birthDate))
	}
	ub.Set(assignments...)
	ub.Where(
		ub.Equal("advisor_id", advisorID),
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "dependent_id": id}).Error("Failed to update dependent")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update dependent")
	}
	return nil
}

func (r *DependentRepository) insert(ctx context.Context, advisorID, clientID string, item map[string]any) error {
	name, _ := item["first_name"].(string)
	if strings.TrimSpace(name) == "" {
		// unnamed elements carry nothing to identify later; skip them
		return nil
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("dependents")
	cols := []string{"id", "advisor_id", "client_id", "first_name"}
	vals := []any{uuid.New().String(), advisorID, clientID, name}
	if birthDate, ok := item["birth_date"].(string); ok && birthDate != "" {
		cols = append(cols, "birth_date")
		vals = append(vals, birthDate)
	}
	ib.Cols(cols...)
	ib.Values(vals...)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "client_id": clientID}).Error("Failed to insert dependent")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert dependent")
	}
	return nil
}
