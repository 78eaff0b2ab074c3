package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

var clientColumns = []string{
	"id", "advisor_id", "civility", "first_name", "last_name", "email", "phone",
	"address", "postal_code", "city", "birth_date", "marital_status", "profession",
	"annual_income", "needs", "notes", "created_at", "updated_at", "deleted_at",
}

// updatableColumns is the allow-list for UpdateFields; everything else on
// the row is service-managed.
var updatableColumns = map[string]bool{
	"civility": true, "first_name": true, "last_name": true, "email": true,
	"phone": true, "address": true, "postal_code": true, "city": true,
	"birth_date": true, "marital_status": true, "profession": true,
	"annual_income": true, "needs": true, "notes": true,
}

// Repository handles client golden record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new client repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database so callers can open transactions that
// span this repository and its siblings.
func (r *Repository) DB() database.DB {
	return r.db
}

// GetByID retrieves a client by ID. Returns nil if not found.
func (r *Repository) GetByID(ctx context.Context, advisorID, id string) (*models.Client, error) {
	return r.get(ctx, advisorID, id, false)
}

// GetForUpdate retrieves a client by ID and locks the row for the duration
// of the surrounding transaction.
func (r *Repository) GetForUpdate(ctx context.Context, advisorID, id string) (*models.Client, error) {
	return r.get(ctx, advisorID, id, true)
}

func (r *Repository) get(ctx context.Context, advisorID, id string, forUpdate bool) (*models.Client, error) {
	ctx, span := tracing.StartSpan(ctx, "client.Repository.get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(clientColumns...)
	sb.From("clients")
	sb.Where(
		sb.Equal("advisor_id", advisorID),
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)
	if forUpdate {
		sb.SQL("FOR UPDATE")
	}

	query, args := sb.Build()
	var client models.Client
	if err := r.db.GetContext(ctx, &client, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "client_id": id}).Error("Failed to get client")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get client")
	}
	return &client, nil
}

// UpdateFields writes the given scalar fields to the client row. Keys are
// diff field names and must come from the updatable allow-list.
func (r *Repository) UpdateFields(ctx context.Context, advisorID, id string, updates map[string]any) (*models.Client, error) {
	ctx, span := tracing.StartSpan(ctx, "client.Repository.UpdateFields")
	defer span.End()

	if len(updates) == 0 {
		return r.GetByID(ctx, advisorID, id)
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("clients")

	assignments := []string{ub.Assign("updated_at", sqlbuilder.Raw("NOW()"))}
	for column, value := range updates {
		if !updatableColumns[column] {
			return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "column %q is not updatable", column)
		}
		if column == "needs" {
			needsJSON, err := json.Marshal(toStringList(value))
			if err != nil {
				return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode needs")
			}
			assignments = append(assignments, ub.Assign(column, needsJSON))
			continue
		}
		assignments = append(assignments, ub.Assign(column, value))
	}
	ub.Set(assignments...)
	ub.Where(
		ub.Equal("advisor_id", advisorID),
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)
	ub.SQL("RETURNING " + strings.Join(clientColumns, ", "))

	query, args := ub.Build()
	var client models.Client
	if err := r.db.GetContext(ctx, &client, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "client_id": id, "fields": len(updates)}).Error("Failed to update client fields")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update client")
	}
	return &client, nil
}

func toStringList(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, e := range val {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}
