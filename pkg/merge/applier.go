// Package merge commits accepted review decisions to the client record.
package merge

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/fields"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/review"
	"github.com/Ramsey-B/aster/pkg/tracing"
	"github.com/Ramsey-B/aster/pkg/values"
)

// ClientStore reads and writes the client row.
type ClientStore interface {
	DB() database.DB
	GetForUpdate(ctx context.Context, advisorID, id string) (*models.Client, error)
	UpdateFields(ctx context.Context, advisorID, id string, updates map[string]any) (*models.Client, error)
}

// SpouseStore writes the spouse row.
type SpouseStore interface {
	Upsert(ctx context.Context, advisorID, clientID string, elem map[string]any) error
}

// DependentStore reconciles dependent rows.
type DependentStore interface {
	Sync(ctx context.Context, advisorID, clientID string, items []map[string]any) error
}

// HoldingStore reconciles holding rows within one category.
type HoldingStore interface {
	SyncCategory(ctx context.Context, advisorID, clientID, category string, items []map[string]any) error
}

// ProfileStore removes advice profiles orphaned by need removals.
type ProfileStore interface {
	DeleteByKinds(ctx context.Context, advisorID, clientID string, kinds []string) error
}

// SessionStore resolves the session once its changes are committed.
type SessionStore interface {
	MarkApplied(ctx context.Context, advisorID, id string, decisions map[string]string, overrides map[string]any, resolvedBy string) (*models.PendingChange, error)
}

// Applier commits a decided session inside a single transaction: the client
// row, its sub entities and the session resolution either all land or none do.
type Applier struct {
	logger     ectologger.Logger
	clients    ClientStore
	spouses    SpouseStore
	dependents DependentStore
	holdings   HoldingStore
	profiles   ProfileStore
	sessions   SessionStore
}

// NewApplier creates a new applier
func NewApplier(
	logger ectologger.Logger,
	clients ClientStore,
	spouses SpouseStore,
	dependents DependentStore,
	holdings HoldingStore,
	profiles ProfileStore,
	sessions SessionStore,
) *Applier {
	return &Applier{
		logger:     logger,
		clients:    clients,
		spouses:    spouses,
		dependents: dependents,
		holdings:   holdings,
		profiles:   profiles,
		sessions:   sessions,
	}
}

// Apply commits the session's accepted changes. The client row is locked for
// the duration, and every accepted scalar is checked against the value the
// reviewer saw: if curated data moved underneath the session, the apply
// aborts with the fresh value instead of silently overwriting it.
func (a *Applier) Apply(ctx context.Context, advisorID string, session *models.PendingChange, resolvedBy string) (*models.ApplyResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Applier.Apply")
	defer span.End()

	ctxTx, tx, err := a.clients.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).Error("Failed to begin apply transaction")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctxTx)

	current, err := a.clients.GetForUpdate(ctxTx, advisorID, session.ClientID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "client not found")
	}

	decisions := session.Decisions.Data
	overrides := session.Overrides.Data
	currentScalars := current.ScalarSnapshot()

	updates := map[string]any{}
	var spouseElem map[string]any
	collections := map[string][]map[string]any{}
	appliedFields := []string{}
	skippedFields := []string{}
	needsAccepted := false

	for _, change := range session.Changes.Data {
		if decisions[change.Field] != models.DecisionAccept {
			skippedFields = append(skippedFields, change.Field)
			continue
		}

		newValue := change.NewValue
		if override, ok := overrides[change.Field]; ok {
			newValue = override
		}

		f, ok := fields.ByName(change.Field)
		if !ok {
			skippedFields = append(skippedFields, change.Field)
			continue
		}

		switch f.Kind {
		case fields.KindScalar, fields.KindList:
			// Stale detection only covers scalar and list fields; object and
			// collection values reconcile per element during sync instead of
			// comparing whole values against the diff baseline.
			stored := currentScalars[change.Field]
			if !values.Equal(stored, change.CurrentValue) && !values.Equal(stored, newValue) {
				return nil, review.NewApplyConflict(change.Field, stored)
			}
			updates[change.Field] = newValue
			if change.Field == "needs" {
				needsAccepted = true
			}
		case fields.KindObject:
			spouseElem = toElement(newValue)
		case fields.KindCollection:
			collections[f.Name] = toElements(newValue)
		}
		appliedFields = append(appliedFields, change.Field)
	}

	removedNeeds := []string{}
	if needsAccepted {
		if removals := session.ListRemovals.Data["needs"]; len(removals) > 0 {
			removedNeeds = removals
			kinds := make([]string, 0, len(removals))
			for _, need := range removals {
				if kind, ok := models.ProfileKindForNeed(need); ok {
					kinds = append(kinds, kind)
				}
			}
			if err := a.profiles.DeleteByKinds(ctxTx, advisorID, session.ClientID, kinds); err != nil {
				return nil, err
			}
		}
	}

	updatedClient := current
	if len(updates) > 0 {
		updatedClient, err = a.clients.UpdateFields(ctxTx, advisorID, session.ClientID, updates)
		if err != nil {
			return nil, err
		}
	}

	if spouseElem != nil {
		if err := a.spouses.Upsert(ctxTx, advisorID, session.ClientID, spouseElem); err != nil {
			return nil, err
		}
	}

	for name, items := range collections {
		if name == "dependents" {
			if err := a.dependents.Sync(ctxTx, advisorID, session.ClientID, items); err != nil {
				return nil, err
			}
			continue
		}
		f, _ := fields.ByName(name)
		if err := a.holdings.SyncCategory(ctxTx, advisorID, session.ClientID, f.Category, items); err != nil {
			return nil, err
		}
	}

	resolved, err := a.sessions.MarkApplied(ctxTx, advisorID, session.ID, decisions, overrides, resolvedBy)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, review.NewStateError(models.StatusApplied, "pending change was resolved concurrently")
	}

	if err := tx.Commit(ctxTx); err != nil {
		a.logger.WithContext(ctx).WithError(err).Error("Failed to commit apply transaction")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	return &models.ApplyResult{
		PendingChange: resolved,
		Client:        updatedClient,
		AppliedFields: appliedFields,
		SkippedFields: skippedFields,
		RemovedNeeds:  removedNeeds,
	}, nil
}

func toElement(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

func toElements(v any) []map[string]any {
	switch val := v.(type) {
	case []map[string]any:
		return val
	case []any:
		out := make([]map[string]any, 0, len(val))
		for _, e := range val {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
