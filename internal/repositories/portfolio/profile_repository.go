package portfolio

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

var profileColumns = []string{
	"id", "advisor_id", "client_id", "kind", "data",
	"created_at", "updated_at", "deleted_at",
}

// ProfileRepository handles the advice profiles derived from a client's needs
type ProfileRepository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewProfileRepository creates a new advice profile repository
func NewProfileRepository(db database.DB, logger ectologger.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:     db,
		logger: logger,
	}
}

// ListByClient returns the client's advice profiles.
func (r *ProfileRepository) ListByClient(ctx context.Context, advisorID, clientID string) ([]models.AdviceProfile, error) {
	ctx, span := tracing.StartSpan(ctx, "portfolio.ProfileRepository.ListByClient")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(profileColumns...)
	sb.From("advice_profiles")
	sb.Where(
		sb.Equal("advisor_id", advisorID),
		sb.Equal("client_id", clientID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var profiles []models.AdviceProfile
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "client_id": clientID}).Error("Failed to list advice profiles")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list advice profiles")
	}
	return profiles, nil
}

// DeleteByKinds soft deletes the client's advice profiles of the given kinds.
// Called when a need is removed from the client record, so the profile the
// need fed no longer survives it.
func (r *ProfileRepository) DeleteByKinds(ctx context.Context, advisorID, clientID string, kinds []string) error {
	ctx, span := tracing.StartSpan(ctx, "portfolio.ProfileRepository.DeleteByKinds")
	defer span.End()

	if len(kinds) == 0 {
		return nil
	}

	kindVals := make([]any, len(kinds))
	for i, kind := range kinds {
		kindVals[i] = kind
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("advice_profiles")
	ub.Set(
		ub.Assign("deleted_at", sqlbuilder.Raw("NOW()")),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(
		ub.Equal("advisor_id", advisorID),
		ub.Equal("client_id", clientID),
		ub.In("kind", kindVals...),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"advisor_id": advisorID, "client_id": clientID, "kinds": kinds}).Error("Failed to delete advice profiles")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete advice profiles")
	}
	return nil
}
