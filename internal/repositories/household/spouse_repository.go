package household

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

var spouseColumns = []string{
	"id", "advisor_id", "client_id", "civility", "first_name", "last_name",
	"birth_date", "profession", "annual_income", "created_at", "updated_at", "deleted_at",
}

// spouseElementColumns maps element keys onto spouse columns.
var spouseElementColumns = []string{"civility", "first_name", "last_name", "birth_date", "profession", "annual_income"}

// SpouseRepository handles the single spouse row attached to a client
type SpouseRepository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewSpouseRepository creates a new spouse repository
func NewSpouseRepository(db database.DB, logger ectologger.Logger) *SpouseRepository {
	return &SpouseRepository{
		db:     db,
		logger: logger,
	}
}

// GetByClient retrieves the spouse for a client. Returns nil if none exists.
func (r *SpouseRepository) GetByClient(ctx context.Context, advisorID, clientID string) (*models.Spouse, error) {
	ctx, span := tracing.StartSpan(ctx, "household.SpouseRepository.GetByClient")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(spouseColumns...)
	sb.From("spouses")
	sb.Where(
		sb.Equal("advisor_id", advisorID),
		sb.Equal("client_id", clientID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var spouse models.Spouse
	if err := r.db.GetContext(ctx, &spouse, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "client_id": clientID}).Error("Failed to get spouse")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get spouse")
	}
	return &spouse, nil
}

// Upsert writes the spouse element for a client. Keys the element carries
// overwrite the stored value; keys it omits are left alone.
func (r *SpouseRepository) Upsert(ctx context.Context, advisorID, clientID string, elem map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "household.SpouseRepository.Upsert")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto("spouses")

	cols := []string{"id", "advisor_id", "client_id"}
	vals := []any{uuid.New().String(), advisorID, clientID}
	provided := make([]string, 0, len(spouseElementColumns))
	for _, col := range spouseElementColumns {
		if v, ok := elem[col]; ok {
			cols = append(cols, col)
			vals = append(vals, v)
			provided = append(provided, col)
		}
	}
	ib.Cols(cols...)
	ib.Values(vals...)

	ub := ib.OnConflict("advisor_id", "client_id")
	assignments := []string{
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		ub.Assign("deleted_at", nil),
	}
	for _, col := range provided {
		assignments = append(assignments, ub.Assign(col, database.Excluded(col)))
	}
	ub.Set(assignments...)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "client_id": clientID}).Error("Failed to upsert spouse")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert spouse")
	}
	return nil
}
