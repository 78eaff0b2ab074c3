package merge

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/review"
)

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) IsOpen() bool { return !t.committed && !t.rolledBack }
func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (t *fakeTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *fakeTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *fakeTx) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (t *fakeTx) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	return nil, nil
}
func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}
func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	tx *fakeTx
}

func (d *fakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (d *fakeDB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (d *fakeDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (d *fakeDB) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (d *fakeDB) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	return nil, nil
}
func (d *fakeDB) PingContext(ctx context.Context) error { return nil }
func (d *fakeDB) Close() error                          { return nil }
func (d *fakeDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, d.tx, nil
}

type fakeClientStore struct {
	db      *fakeDB
	client  *models.Client
	updates map[string]any
}

func (f *fakeClientStore) DB() database.DB { return f.db }
func (f *fakeClientStore) GetForUpdate(ctx context.Context, advisorID, id string) (*models.Client, error) {
	return f.client, nil
}
func (f *fakeClientStore) UpdateFields(ctx context.Context, advisorID, id string, updates map[string]any) (*models.Client, error) {
	f.updates = updates
	return f.client, nil
}

type fakeSpouseStore struct {
	elem map[string]any
	err  error
}

func (f *fakeSpouseStore) Upsert(ctx context.Context, advisorID, clientID string, elem map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.elem = elem
	return nil
}

type fakeDependentStore struct {
	items []map[string]any
}

func (f *fakeDependentStore) Sync(ctx context.Context, advisorID, clientID string, items []map[string]any) error {
	f.items = items
	return nil
}

type fakeHoldingStore struct {
	synced map[string][]map[string]any
}

func (f *fakeHoldingStore) SyncCategory(ctx context.Context, advisorID, clientID, category string, items []map[string]any) error {
	if f.synced == nil {
		f.synced = map[string][]map[string]any{}
	}
	f.synced[category] = items
	return nil
}

type fakeProfileStore struct {
	kinds []string
}

func (f *fakeProfileStore) DeleteByKinds(ctx context.Context, advisorID, clientID string, kinds []string) error {
	f.kinds = kinds
	return nil
}

type fakeSessionStore struct {
	decisions  map[string]string
	overrides  map[string]any
	resolvedBy string
}

func (f *fakeSessionStore) MarkApplied(ctx context.Context, advisorID, id string, decisions map[string]string, overrides map[string]any, resolvedBy string) (*models.PendingChange, error) {
	f.decisions = decisions
	f.overrides = overrides
	f.resolvedBy = resolvedBy
	return &models.PendingChange{ID: id, AdvisorID: advisorID, Status: models.StatusApplied}, nil
}

type applierFixture struct {
	tx         *fakeTx
	clients    *fakeClientStore
	spouses    *fakeSpouseStore
	dependents *fakeDependentStore
	holdings   *fakeHoldingStore
	profiles   *fakeProfileStore
	sessions   *fakeSessionStore
	applier    *Applier
}

func newApplierFixture(client *models.Client) *applierFixture {
	f := &applierFixture{
		tx:         &fakeTx{},
		spouses:    &fakeSpouseStore{},
		dependents: &fakeDependentStore{},
		holdings:   &fakeHoldingStore{},
		profiles:   &fakeProfileStore{},
		sessions:   &fakeSessionStore{},
	}
	f.clients = &fakeClientStore{db: &fakeDB{tx: f.tx}, client: client}
	logger := zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
	f.applier = NewApplier(logger, f.clients, f.spouses, f.dependents, f.holdings, f.profiles, f.sessions)
	return f
}

func strPtr(s string) *string { return &s }

func session(changes []models.ChangeItem, decisions map[string]string, overrides map[string]any) *models.PendingChange {
	return &models.PendingChange{
		ID:        "pc-1",
		AdvisorID: "a1",
		ClientID:  "c1",
		Source:    models.SourceAudio,
		Status:    models.StatusPending,
		Changes:   database.NewJSONB(changes),
		Decisions: database.NewJSONB(decisions),
		Overrides: database.NewJSONB(overrides),
	}
}

func TestApplyScalars(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted scalar lands on the client row", func(t *testing.T) {
		f := newApplierFixture(&models.Client{ID: "c1", AdvisorID: "a1", Email: strPtr("old@example.com")})

		result, err := f.applier.Apply(ctx, "a1", session(
			[]models.ChangeItem{
				{Field: "email", CurrentValue: "old@example.com", NewValue: "new@example.com"},
				{Field: "profession", NewValue: "architect"},
			},
			map[string]string{"email": models.DecisionAccept, "profession": models.DecisionReject},
			nil,
		), "advisor-7")
		require.NoError(t, err)

		assert.Equal(t, map[string]any{"email": "new@example.com"}, f.clients.updates)
		assert.Equal(t, []string{"email"}, result.AppliedFields)
		assert.Equal(t, []string{"profession"}, result.SkippedFields)
		assert.Equal(t, "advisor-7", f.sessions.resolvedBy)
		assert.Equal(t, models.StatusApplied, result.PendingChange.Status)
		assert.True(t, f.tx.committed)
	})

	t.Run("override replaces the proposed value", func(t *testing.T) {
		f := newApplierFixture(&models.Client{ID: "c1", AdvisorID: "a1", Email: strPtr("old@example.com")})

		_, err := f.applier.Apply(ctx, "a1", session(
			[]models.ChangeItem{{Field: "email", CurrentValue: "old@example.com", NewValue: "new@example.com"}},
			map[string]string{"email": models.DecisionAccept},
			map[string]any{"email": "corrected@example.com"},
		), "advisor-7")
		require.NoError(t, err)

		assert.Equal(t, "corrected@example.com", f.clients.updates["email"])
	})

	t.Run("stored value that moved since review aborts the apply", func(t *testing.T) {
		f := newApplierFixture(&models.Client{ID: "c1", AdvisorID: "a1", Email: strPtr("someone-else@example.com")})

		_, err := f.applier.Apply(ctx, "a1", session(
			[]models.ChangeItem{{Field: "email", CurrentValue: "old@example.com", NewValue: "new@example.com"}},
			map[string]string{"email": models.DecisionAccept},
			nil,
		), "advisor-7")
		require.Error(t, err)
		assert.True(t, review.IsApplyConflict(err))
		assert.False(t, f.tx.committed)
		assert.True(t, f.tx.rolledBack)
		assert.Nil(t, f.clients.updates)
	})

	t.Run("stored value already at the proposed value is not stale", func(t *testing.T) {
		f := newApplierFixture(&models.Client{ID: "c1", AdvisorID: "a1", Email: strPtr("new@example.com")})

		_, err := f.applier.Apply(ctx, "a1", session(
			[]models.ChangeItem{{Field: "email", CurrentValue: "old@example.com", NewValue: "new@example.com"}},
			map[string]string{"email": models.DecisionAccept},
			nil,
		), "advisor-7")
		require.NoError(t, err)
		assert.True(t, f.tx.committed)
	})

	t.Run("nothing accepted touches nothing", func(t *testing.T) {
		f := newApplierFixture(&models.Client{ID: "c1", AdvisorID: "a1"})

		result, err := f.applier.Apply(ctx, "a1", session(
			[]models.ChangeItem{{Field: "profession", NewValue: "architect"}},
			map[string]string{"profession": models.DecisionSkip},
			nil,
		), "advisor-7")
		require.NoError(t, err)

		assert.Nil(t, f.clients.updates)
		assert.Empty(t, result.AppliedFields)
		assert.Equal(t, []string{"profession"}, result.SkippedFields)
		assert.True(t, f.tx.committed)
	})
}

func TestApplyRelational(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted spouse is upserted", func(t *testing.T) {
		f := newApplierFixture(&models.Client{ID: "c1", AdvisorID: "a1"})

		_, err := f.applier.Apply(ctx, "a1", session(
			[]models.ChangeItem{{
				Field:    "spouse",
				NewValue: map[string]any{"first_name": "Marie", "profession": "teacher"},
			}},
			map[string]string{"spouse": models.DecisionAccept},
			nil,
		), "advisor-7")
		require.NoError(t, err)

		assert.Equal(t, "Marie", f.spouses.elem["first_name"])
	})

	t.Run("accepted dependents are synced", func(t *testing.T) {
		f := newApplierFixture(&models.Client{ID: "c1", AdvisorID: "a1"})

		_, err := f.applier.Apply(ctx, "a1", session(
			[]models.ChangeItem{{
				Field:    "dependents",
				NewValue: []any{map[string]any{"first_name": "Anna"}},
			}},
			map[string]string{"dependents": models.DecisionAccept},
			nil,
		), "advisor-7")
		require.NoError(t, err)

		require.Len(t, f.dependents.items, 1)
		assert.Equal(t, "Anna", f.dependents.items[0]["first_name"])
	})

	t.Run("accepted holdings are synced within their category", func(t *testing.T) {
		f := newApplierFixture(&models.Client{ID: "c1", AdvisorID: "a1"})

		_, err := f.applier.Apply(ctx, "a1", session(
			[]models.ChangeItem{{
				Field:    "liabilities",
				NewValue: []any{map[string]any{"kind": "mortgage", "monthly_amount": float64(850)}},
			}},
			map[string]string{"liabilities": models.DecisionAccept},
			nil,
		), "advisor-7")
		require.NoError(t, err)

		require.Len(t, f.holdings.synced["liabilities"], 1)
		assert.Equal(t, "mortgage", f.holdings.synced["liabilities"][0]["kind"])
	})
}

func TestApplyAtomicity(t *testing.T) {
	ctx := context.Background()

	t.Run("sub entity failure rolls back the client update", func(t *testing.T) {
		f := newApplierFixture(&models.Client{ID: "c1", AdvisorID: "a1", Email: strPtr("old@example.com")})
		f.spouses.err = errors.New("connection reset")

		_, err := f.applier.Apply(ctx, "a1", session(
			[]models.ChangeItem{
				{Field: "email", CurrentValue: "old@example.com", NewValue: "new@example.com"},
				{Field: "spouse", NewValue: map[string]any{"first_name": "Marie"}},
			},
			map[string]string{"email": models.DecisionAccept, "spouse": models.DecisionAccept},
			nil,
		), "advisor-7")
		require.Error(t, err)

		assert.False(t, f.tx.committed)
		assert.True(t, f.tx.rolledBack)
		assert.Nil(t, f.sessions.decisions)
	})
}

func TestApplyNeedsCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted needs removal deletes the orphaned profiles", func(t *testing.T) {
		f := newApplierFixture(&models.Client{
			ID:        "c1",
			AdvisorID: "a1",
			Needs:     database.NewJSONB([]string{"protection", "savings"}),
		})

		s := session(
			[]models.ChangeItem{{
				Field:        "needs",
				CurrentValue: []any{"protection", "savings"},
				NewValue:     []any{"protection"},
			}},
			map[string]string{"needs": models.DecisionAccept},
			nil,
		)
		s.ListRemovals = database.NewJSONB(map[string][]string{"needs": {"savings"}})

		result, err := f.applier.Apply(ctx, "a1", s, "advisor-7")
		require.NoError(t, err)

		assert.Equal(t, []string{"savings"}, f.profiles.kinds)
		assert.Equal(t, []string{"savings"}, result.RemovedNeeds)
		assert.Equal(t, []any{"protection"}, f.clients.updates["needs"])
	})

	t.Run("rejected needs change leaves profiles alone", func(t *testing.T) {
		f := newApplierFixture(&models.Client{
			ID:        "c1",
			AdvisorID: "a1",
			Needs:     database.NewJSONB([]string{"protection", "savings"}),
		})

		s := session(
			[]models.ChangeItem{{
				Field:        "needs",
				CurrentValue: []any{"protection", "savings"},
				NewValue:     []any{"protection"},
			}},
			map[string]string{"needs": models.DecisionReject},
			nil,
		)
		s.ListRemovals = database.NewJSONB(map[string][]string{"needs": {"savings"}})

		result, err := f.applier.Apply(ctx, "a1", s, "advisor-7")
		require.NoError(t, err)

		assert.Nil(t, f.profiles.kinds)
		assert.Empty(t, result.RemovedNeeds)
	})

	t.Run("cascade matches curated need spelling regardless of case", func(t *testing.T) {
		f := newApplierFixture(&models.Client{
			ID:        "c1",
			AdvisorID: "a1",
			Needs:     database.NewJSONB([]string{"Protection"}),
		})

		s := session(
			[]models.ChangeItem{{
				Field:        "needs",
				CurrentValue: []any{"Protection"},
				NewValue:     []any{},
			}},
			map[string]string{"needs": models.DecisionAccept},
			nil,
		)
		s.ListRemovals = database.NewJSONB(map[string][]string{"needs": {"Protection"}})

		result, err := f.applier.Apply(ctx, "a1", s, "advisor-7")
		require.NoError(t, err)

		assert.Equal(t, []string{"protection"}, f.profiles.kinds)
		assert.Equal(t, []string{"Protection"}, result.RemovedNeeds)
	})

	t.Run("removed needs outside the known kinds delete nothing", func(t *testing.T) {
		f := newApplierFixture(&models.Client{
			ID:        "c1",
			AdvisorID: "a1",
			Needs:     database.NewJSONB([]string{"estate planning"}),
		})

		s := session(
			[]models.ChangeItem{{
				Field:        "needs",
				CurrentValue: []any{"estate planning"},
				NewValue:     []any{},
			}},
			map[string]string{"needs": models.DecisionAccept},
			nil,
		)
		s.ListRemovals = database.NewJSONB(map[string][]string{"needs": {"estate planning"}})

		result, err := f.applier.Apply(ctx, "a1", s, "advisor-7")
		require.NoError(t, err)

		assert.Empty(t, f.profiles.kinds)
		assert.Equal(t, []string{"estate planning"}, result.RemovedNeeds)
	})
}
