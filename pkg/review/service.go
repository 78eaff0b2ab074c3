package review

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/diff"
	"github.com/Ramsey-B/aster/pkg/fields"
	"github.com/Ramsey-B/aster/pkg/listmerge"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/snapshot"
	"github.com/Ramsey-B/aster/pkg/tracing"
	"github.com/Ramsey-B/aster/pkg/values"
)

// ClientStore reads clients for session creation.
type ClientStore interface {
	GetByID(ctx context.Context, advisorID, id string) (*models.Client, error)
}

// SpouseStore reads the spouse attached to a client.
type SpouseStore interface {
	GetByClient(ctx context.Context, advisorID, clientID string) (*models.Spouse, error)
}

// DependentStore reads the dependents attached to a client.
type DependentStore interface {
	ListByClient(ctx context.Context, advisorID, clientID string) ([]models.Dependent, error)
}

// HoldingStore reads the holdings attached to a client.
type HoldingStore interface {
	ListByClient(ctx context.Context, advisorID, clientID string) ([]models.Holding, error)
}

// ProfileStore reads the advice profiles attached to a client.
type ProfileStore interface {
	ListByClient(ctx context.Context, advisorID, clientID string) ([]models.AdviceProfile, error)
}

// SessionStore persists pending change sessions.
type SessionStore interface {
	Create(ctx context.Context, advisorID string, req models.CreatePendingChangeRequest) (*models.PendingChange, error)
	GetByID(ctx context.Context, advisorID, id string) (*models.PendingChange, error)
	List(ctx context.Context, advisorID, status string, page, pageSize int) (*models.PendingChangeListResponse, error)
	ListByClient(ctx context.Context, advisorID, clientID string) ([]models.PendingChange, error)
	CountPendingByClient(ctx context.Context, advisorID, clientID string) (int, error)
	SaveDecisions(ctx context.Context, advisorID, id string, decisions map[string]string, overrides map[string]any) (*models.PendingChange, error)
	MarkRejected(ctx context.Context, advisorID, id string, reason *string, resolvedBy string) (*models.PendingChange, error)
}

// Applier commits a decided session against the client record. The merge
// package provides the implementation.
type Applier interface {
	Apply(ctx context.Context, advisorID string, session *models.PendingChange, resolvedBy string) (*models.ApplyResult, error)
}

// Emitter publishes review lifecycle events. A nil emitter disables them.
type Emitter interface {
	EmitReviewCreated(ctx context.Context, session *models.PendingChange) error
	EmitReviewApplied(ctx context.Context, result *models.ApplyResult) error
	EmitReviewRejected(ctx context.Context, session *models.PendingChange) error
}

// Service runs the pending change lifecycle
type Service struct {
	logger     ectologger.Logger
	clients    ClientStore
	spouses    SpouseStore
	dependents DependentStore
	holdings   HoldingStore
	profiles   ProfileStore
	sessions   SessionStore
	applier    Applier
	emitter    Emitter
	differ     *diff.Builder
	pageSize   int
}

// NewService creates a new review service
func NewService(
	logger ectologger.Logger,
	clients ClientStore,
	spouses SpouseStore,
	dependents DependentStore,
	holdings HoldingStore,
	profiles ProfileStore,
	sessions SessionStore,
	applier Applier,
	emitter Emitter,
	pageSize int,
) *Service {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Service{
		logger:     logger,
		clients:    clients,
		spouses:    spouses,
		dependents: dependents,
		holdings:   holdings,
		profiles:   profiles,
		sessions:   sessions,
		applier:    applier,
		emitter:    emitter,
		differ:     diff.NewBuilder(),
		pageSize:   pageSize,
	}
}

// CreateInput carries an extracted payload destined for review.
type CreateInput struct {
	ClientID    string         `json:"client_id" validate:"required"`
	Source      string         `json:"source" validate:"required,oneof=audio import manual"`
	RecordingID *string        `json:"recording_id,omitempty"`
	Data        map[string]any `json:"data" validate:"required"`
}

// CreateFromSnapshot normalizes an extracted payload, diffs it against the
// client's current record and persists the result as a pending session.
// Returns nil without error when the payload proposes nothing new.
func (s *Service) CreateFromSnapshot(ctx context.Context, advisorID string, in CreateInput) (*models.PendingChange, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.CreateFromSnapshot")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"advisor_id": advisorID,
		"client_id":  in.ClientID,
		"source":     in.Source,
	})

	switch in.Source {
	case models.SourceAudio, models.SourceImport, models.SourceManual:
	default:
		return nil, NewValidationErrorf("unknown source '%s'", in.Source)
	}

	clientRecord, err := s.clients.GetByID(ctx, advisorID, in.ClientID)
	if err != nil {
		return nil, err
	}
	if clientRecord == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "client not found")
	}

	snap := snapshot.Normalize(in.Data)

	currentFields, err := s.currentFields(ctx, advisorID, clientRecord)
	if err != nil {
		return nil, err
	}

	listRemovals := map[string][]string{}
	emptiedNeeds := false
	if raw, ok := snap.Fields["needs"]; ok {
		res := listmerge.Resolve(clientRecord.Needs.Data, toStrings(raw), snap.NeedsAction)
		if len(res.Removed) > 0 {
			listRemovals["needs"] = res.Removed
		}
		if res.Downgraded {
			log.Info("Demoted needs replace to add")
		}
		switch {
		case values.Equal(res.Merged, clientRecord.Needs.Data):
			delete(snap.Fields, "needs")
		case len(res.Merged) == 0:
			// an empty merged list would read as "nothing proposed" to
			// the differ, so the change item is built by hand below
			delete(snap.Fields, "needs")
			emptiedNeeds = true
		default:
			snap.Fields["needs"] = toAnyList(res.Merged)
		}
	}

	changes := s.differ.Build(currentFields, snap.Fields)
	if emptiedNeeds {
		changes = insertNeedsRemoval(changes, clientRecord.Needs.Data)
	}

	if len(changes) == 0 && len(listRemovals) == 0 {
		log.Info("Snapshot proposes no changes, skipping session")
		return nil, nil
	}

	session, err := s.sessions.Create(ctx, advisorID, models.CreatePendingChangeRequest{
		ClientID:     in.ClientID,
		Source:       in.Source,
		RecordingID:  in.RecordingID,
		Changes:      changes,
		ListRemovals: listRemovals,
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{
		"pending_change_id": session.ID,
		"changes_count":     session.ChangesCount,
		"conflicts_count":   session.ConflictsCount,
	}).Info("Created pending change session")

	if s.emitter != nil {
		if err := s.emitter.EmitReviewCreated(ctx, session); err != nil {
			log.WithError(err).Warn("Failed to emit review created event")
		}
	}
	return session, nil
}

// Get retrieves one session.
func (s *Service) Get(ctx context.Context, advisorID, id string) (*models.PendingChange, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Get")
	defer span.End()

	session, err := s.sessions.GetByID(ctx, advisorID, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "pending change not found")
	}
	return session, nil
}

// List returns a page of sessions, optionally filtered by status.
func (s *Service) List(ctx context.Context, advisorID, status string, page, pageSize int) (*models.PendingChangeListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.List")
	defer span.End()

	switch status {
	case "", models.StatusPending, models.StatusApplied, models.StatusRejected:
	default:
		return nil, NewValidationErrorf("unknown status '%s'", status)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > s.pageSize {
		pageSize = s.pageSize
	}
	return s.sessions.List(ctx, advisorID, status, page, pageSize)
}

// ListByClient returns every session attached to one client.
func (s *Service) ListByClient(ctx context.Context, advisorID, clientID string) ([]models.PendingChange, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.ListByClient")
	defer span.End()

	return s.sessions.ListByClient(ctx, advisorID, clientID)
}

// CountPendingByClient returns how many sessions still await review for a client.
func (s *Service) CountPendingByClient(ctx context.Context, advisorID, clientID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.CountPendingByClient")
	defer span.End()

	return s.sessions.CountPendingByClient(ctx, advisorID, clientID)
}

// GetClientView returns the golden record with every dependent collection
// the review UI shows current values from.
func (s *Service) GetClientView(ctx context.Context, advisorID, clientID string) (*models.ClientView, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.GetClientView")
	defer span.End()

	clientRecord, err := s.clients.GetByID(ctx, advisorID, clientID)
	if err != nil {
		return nil, err
	}
	if clientRecord == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "client not found")
	}

	spouse, err := s.spouses.GetByClient(ctx, advisorID, clientID)
	if err != nil {
		return nil, err
	}
	dependents, err := s.dependents.ListByClient(ctx, advisorID, clientID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.holdings.ListByClient(ctx, advisorID, clientID)
	if err != nil {
		return nil, err
	}
	profiles, err := s.profiles.ListByClient(ctx, advisorID, clientID)
	if err != nil {
		return nil, err
	}

	grouped := map[string][]map[string]any{}
	for i := range holdings {
		grouped[holdings[i].Category] = append(grouped[holdings[i].Category], holdings[i].AsMap())
	}

	return &models.ClientView{
		Client:     *clientRecord,
		Spouse:     spouse,
		Dependents: dependents,
		Holdings:   grouped,
		Profiles:   profiles,
	}, nil
}

// SubmitDecisions validates and stores partial decisions on a pending
// session without resolving it. Resubmitting merges over earlier decisions.
func (s *Service) SubmitDecisions(ctx context.Context, advisorID, id string, decisions map[string]string, overrides map[string]any) (*models.PendingChange, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.SubmitDecisions")
	defer span.End()

	session, err := s.Get(ctx, advisorID, id)
	if err != nil {
		return nil, err
	}
	if !session.IsPending() {
		return nil, NewStateError(session.Status, "pending change already "+session.Status)
	}

	mergedDecisions, mergedOverrides, err := s.mergeDecisions(session, decisions, overrides)
	if err != nil {
		return nil, err
	}

	updated, err := s.sessions.SaveDecisions(ctx, advisorID, id, mergedDecisions, mergedOverrides)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, NewStateError(models.StatusApplied, "pending change was resolved concurrently")
	}
	return updated, nil
}

// ApplyInput carries the final decisions for an apply.
type ApplyInput struct {
	Decisions  map[string]string `json:"decisions,omitempty"`
	Overrides  map[string]any    `json:"overrides,omitempty"`
	ResolvedBy string            `json:"resolved_by,omitempty"`
}

// Apply resolves a pending session: accepted fields are committed to the
// client record in one transaction, rejected and skipped fields are dropped,
// and the session is marked applied. Critical conflicting fields must carry
// an explicit decision.
func (s *Service) Apply(ctx context.Context, advisorID, id string, in ApplyInput) (*models.ApplyResult, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Apply")
	defer span.End()

	session, err := s.Get(ctx, advisorID, id)
	if err != nil {
		return nil, err
	}
	if !session.IsPending() {
		return nil, NewStateError(session.Status, "pending change already "+session.Status)
	}

	mergedDecisions, mergedOverrides, err := s.mergeDecisions(session, in.Decisions, in.Overrides)
	if err != nil {
		return nil, err
	}
	for _, change := range session.Changes.Data {
		if change.IsCritical && change.IsConflict {
			if _, ok := mergedDecisions[change.Field]; !ok {
				return nil, NewValidationErrorf("critical field requires an explicit decision").AddField(change.Field)
			}
		}
	}

	session.Decisions = database.NewJSONB(mergedDecisions)
	session.Overrides = database.NewJSONB(mergedOverrides)

	result, err := s.applier.Apply(ctx, advisorID, session, in.ResolvedBy)
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"advisor_id":        advisorID,
		"pending_change_id": id,
		"applied_fields":    result.AppliedFields,
		"skipped_fields":    result.SkippedFields,
	}).Info("Applied pending change")

	if s.emitter != nil {
		if err := s.emitter.EmitReviewApplied(ctx, result); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to emit review applied event")
		}
	}
	return result, nil
}

// AcceptAll applies a session accepting every change.
func (s *Service) AcceptAll(ctx context.Context, advisorID, id, resolvedBy string) (*models.ApplyResult, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.AcceptAll")
	defer span.End()

	session, err := s.Get(ctx, advisorID, id)
	if err != nil {
		return nil, err
	}
	decisions := make(map[string]string, len(session.Changes.Data))
	for _, change := range session.Changes.Data {
		decisions[change.Field] = models.DecisionAccept
	}
	return s.Apply(ctx, advisorID, id, ApplyInput{Decisions: decisions, ResolvedBy: resolvedBy})
}

// RejectAll resolves a session as rejected without touching the client.
func (s *Service) RejectAll(ctx context.Context, advisorID, id string, reason *string, resolvedBy string) (*models.PendingChange, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.RejectAll")
	defer span.End()

	session, err := s.Get(ctx, advisorID, id)
	if err != nil {
		return nil, err
	}
	if !session.IsPending() {
		return nil, NewStateError(session.Status, "pending change already "+session.Status)
	}

	rejected, err := s.sessions.MarkRejected(ctx, advisorID, id, reason, resolvedBy)
	if err != nil {
		return nil, err
	}
	if rejected == nil {
		return nil, NewStateError(models.StatusApplied, "pending change was resolved concurrently")
	}

	if s.emitter != nil {
		if err := s.emitter.EmitReviewRejected(ctx, rejected); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to emit review rejected event")
		}
	}
	return rejected, nil
}

// AutoApplySafe applies the non-conflicting subset of a session: clean
// changes are accepted, conflicting ones skipped. Fails when nothing in the
// session is safe.
func (s *Service) AutoApplySafe(ctx context.Context, advisorID, id, resolvedBy string) (*models.ApplyResult, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.AutoApplySafe")
	defer span.End()

	session, err := s.Get(ctx, advisorID, id)
	if err != nil {
		return nil, err
	}

	decisions := make(map[string]string, len(session.Changes.Data))
	safe := 0
	for _, change := range session.Changes.Data {
		if change.IsConflict {
			decisions[change.Field] = models.DecisionSkip
			continue
		}
		decisions[change.Field] = models.DecisionAccept
		safe++
	}
	if safe == 0 {
		return nil, NewValidationError("every change conflicts with curated data, review required")
	}
	return s.Apply(ctx, advisorID, id, ApplyInput{Decisions: decisions, ResolvedBy: resolvedBy})
}

// mergeDecisions folds incoming decisions and overrides over the ones stored
// on the session, validating both against the session's change list.
// Override values are coerced into the shape of the change they replace.
func (s *Service) mergeDecisions(session *models.PendingChange, decisions map[string]string, overrides map[string]any) (map[string]string, map[string]any, error) {
	mergedDecisions := map[string]string{}
	for field, decision := range session.Decisions.Data {
		mergedDecisions[field] = decision
	}
	mergedOverrides := map[string]any{}
	for field, value := range session.Overrides.Data {
		mergedOverrides[field] = value
	}

	for field, decision := range decisions {
		if _, ok := session.ChangeFor(field); !ok {
			return nil, nil, NewValidationErrorf("no change proposed for this field").AddField(field)
		}
		switch decision {
		case models.DecisionAccept, models.DecisionReject, models.DecisionSkip:
			mergedDecisions[field] = decision
		default:
			return nil, nil, NewValidationErrorf("unknown decision '%s'", decision).AddField(field)
		}
	}

	for field, raw := range overrides {
		change, ok := session.ChangeFor(field)
		if !ok {
			return nil, nil, NewValidationErrorf("no change proposed for this field").AddField(field)
		}
		if mergedDecisions[field] != models.DecisionAccept {
			return nil, nil, NewValidationErrorf("override requires an accept decision").AddField(field)
		}
		coerced, err := values.CoerceOverride(raw, change.NewValue)
		if err != nil {
			return nil, nil, NewValidationErrorf("%v", err).AddField(field)
		}
		mergedOverrides[field] = coerced
	}

	return mergedDecisions, mergedOverrides, nil
}

// currentFields assembles the client's full field map, scalars plus the
// relational entities, in the shape the differ compares against.
func (s *Service) currentFields(ctx context.Context, advisorID string, clientRecord *models.Client) (map[string]any, error) {
	current := clientRecord.ScalarSnapshot()

	spouse, err := s.spouses.GetByClient(ctx, advisorID, clientRecord.ID)
	if err != nil {
		return nil, err
	}
	if spouse != nil {
		current["spouse"] = spouse.AsMap()
	}

	dependents, err := s.dependents.ListByClient(ctx, advisorID, clientRecord.ID)
	if err != nil {
		return nil, err
	}
	if len(dependents) > 0 {
		items := make([]any, len(dependents))
		for i := range dependents {
			items[i] = dependents[i].AsMap()
		}
		current["dependents"] = items
	}

	holdings, err := s.holdings.ListByClient(ctx, advisorID, clientRecord.ID)
	if err != nil {
		return nil, err
	}
	for i := range holdings {
		category := holdings[i].Category
		list, _ := current[category].([]any)
		current[category] = append(list, holdings[i].AsMap())
	}

	return current, nil
}

// insertNeedsRemoval places a needs change that empties the list at its
// registry position, before the relational fields.
func insertNeedsRemoval(changes []models.ChangeItem, currentNeeds []string) []models.ChangeItem {
	item := models.ChangeItem{
		Field:        "needs",
		Label:        "Needs",
		CurrentValue: toAnyList(currentNeeds),
		NewValue:     []any{},
		HasChange:    true,
		IsConflict:   len(currentNeeds) > 0,
	}

	at := len(changes)
	for i, change := range changes {
		if f, ok := fields.ByName(change.Field); ok && f.IsRelational() {
			at = i
			break
		}
	}

	out := make([]models.ChangeItem, 0, len(changes)+1)
	out = append(out, changes[:at]...)
	out = append(out, item)
	out = append(out, changes[at:]...)
	return out
}

func toStrings(v any) []string {
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
	}
	return nil
}

func toAnyList(list []string) []any {
	out := make([]any, len(list))
	for i, s := range list {
		out[i] = s
	}
	return out
}
