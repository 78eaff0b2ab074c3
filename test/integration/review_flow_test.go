package integration

import (
	"context"
	"os"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	clientrepo "github.com/Ramsey-B/aster/internal/repositories/client"
	"github.com/Ramsey-B/aster/internal/repositories/household"
	"github.com/Ramsey-B/aster/internal/repositories/pendingchange"
	"github.com/Ramsey-B/aster/internal/repositories/portfolio"
	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/merge"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/review"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// getTestDB connects to the test database described by the DB_* env vars and
// skips the test when none is reachable. The schema is expected to be
// migrated (db/pg).
func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "aster"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skip("Database not configured")
	}

	return database.NewDatabaseInstance(db, getTestLogger())
}

type testEnv struct {
	db         database.DB
	clients    *clientrepo.Repository
	spouses    *household.SpouseRepository
	dependents *household.DependentRepository
	holdings   *portfolio.HoldingRepository
	profiles   *portfolio.ProfileRepository
	sessions   *pendingchange.Repository
	svc        *review.Service
}

func newTestEnv(t *testing.T) *testEnv {
	db := getTestDB(t)
	logger := getTestLogger()

	env := &testEnv{
		db:         db,
		clients:    clientrepo.NewRepository(db, logger),
		spouses:    household.NewSpouseRepository(db, logger),
		dependents: household.NewDependentRepository(db, logger),
		holdings:   portfolio.NewHoldingRepository(db, logger),
		profiles:   portfolio.NewProfileRepository(db, logger),
		sessions:   pendingchange.NewRepository(db, logger),
	}
	applier := merge.NewApplier(logger, env.clients, env.spouses, env.dependents, env.holdings, env.profiles, env.sessions)
	env.svc = review.NewService(logger, env.clients, env.spouses, env.dependents, env.holdings, env.profiles, env.sessions, applier, nil, 50)
	return env
}

func (e *testEnv) insertClient(t *testing.T, ctx context.Context, advisorID string) string {
	id := uuid.New().String()
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO clients (id, advisor_id, first_name, email, needs)
		VALUES ($1, $2, $3, $4, $5)`,
		id, advisorID, "Jean", "old@example.com", `["protection"]`)
	require.NoError(t, err)
	return id
}

func TestReviewFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newTestEnv(t)
	ctx := context.Background()
	advisorID := "it-" + uuid.New().String()
	clientID := env.insertClient(t, ctx, advisorID)

	session, err := env.svc.CreateFromSnapshot(ctx, advisorID, review.CreateInput{
		ClientID: clientID,
		Source:   models.SourceAudio,
		Data: map[string]any{
			"email":      "new@example.com",
			"profession": "architect",
			"needs":      []any{"retirement"},
			"dependents": []any{
				map[string]any{"first_name": "Anna", "birth_date": "12/05/2019"},
			},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, models.StatusPending, session.Status)
	assert.Equal(t, 4, session.ChangesCount)
	// email and needs collide with curated data, profession and dependents are clean
	assert.Equal(t, 2, session.ConflictsCount)

	count, err := env.svc.CountPendingByClient(ctx, advisorID, clientID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	result, err := env.svc.Apply(ctx, advisorID, session.ID, review.ApplyInput{
		Decisions: map[string]string{
			"email":      models.DecisionAccept,
			"profession": models.DecisionReject,
			"needs":      models.DecisionAccept,
			"dependents": models.DecisionAccept,
		},
		ResolvedBy: "advisor-7",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, result.PendingChange.Status)
	assert.ElementsMatch(t, []string{"email", "needs", "dependents"}, result.AppliedFields)
	assert.Equal(t, []string{"profession"}, result.SkippedFields)

	fresh, err := env.clients.GetByID(ctx, advisorID, clientID)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	require.NotNil(t, fresh.Email)
	assert.Equal(t, "new@example.com", *fresh.Email)
	assert.Nil(t, fresh.Profession)
	assert.Equal(t, []string{"protection", "retirement"}, fresh.Needs.Data)

	children, err := env.dependents.ListByClient(ctx, advisorID, clientID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "Anna", children[0].FirstName)
	require.NotNil(t, children[0].BirthDate)
	assert.Equal(t, "2019-05-12", *children[0].BirthDate)

	// terminal sessions do not accept a second resolution
	_, err = env.svc.Apply(ctx, advisorID, session.ID, review.ApplyInput{})
	assert.True(t, review.IsStateError(err))

	count, err = env.svc.CountPendingByClient(ctx, advisorID, clientID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRejectFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newTestEnv(t)
	ctx := context.Background()
	advisorID := "it-" + uuid.New().String()
	clientID := env.insertClient(t, ctx, advisorID)

	session, err := env.svc.CreateFromSnapshot(ctx, advisorID, review.CreateInput{
		ClientID: clientID,
		Source:   models.SourceImport,
		Data:     map[string]any{"email": "imported@example.com"},
	})
	require.NoError(t, err)
	require.NotNil(t, session)

	reason := "wrong spreadsheet"
	rejected, err := env.svc.RejectAll(ctx, advisorID, session.ID, &reason, "advisor-7")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)

	fresh, err := env.clients.GetByID(ctx, advisorID, clientID)
	require.NoError(t, err)
	require.NotNil(t, fresh.Email)
	assert.Equal(t, "old@example.com", *fresh.Email)
}

func TestHoldingSyncFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newTestEnv(t)
	ctx := context.Background()
	advisorID := "it-" + uuid.New().String()
	clientID := env.insertClient(t, ctx, advisorID)

	session, err := env.svc.CreateFromSnapshot(ctx, advisorID, review.CreateInput{
		ClientID: clientID,
		Source:   models.SourceAudio,
		Data: map[string]any{
			"liabilities": []any{
				map[string]any{"kind": "mortgage", "monthly_amount": "850,25", "lender": "Credit Mutuel"},
			},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, session)

	_, err = env.svc.AcceptAll(ctx, advisorID, session.ID, "advisor-7")
	require.NoError(t, err)

	rows, err := env.holdings.ListByCategory(ctx, advisorID, clientID, "liabilities")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "mortgage", rows[0].Kind)
	require.NotNil(t, rows[0].MonthlyAmount)
	assert.Equal(t, 850.25, *rows[0].MonthlyAmount)
	// keys with no column land in the data payload
	assert.Equal(t, "Credit Mutuel", rows[0].Data.Data["lender"])

	// re-running the same extraction matches on kind instead of duplicating
	session2, err := env.svc.CreateFromSnapshot(ctx, advisorID, review.CreateInput{
		ClientID: clientID,
		Source:   models.SourceAudio,
		Data: map[string]any{
			"liabilities": []any{
				map[string]any{"kind": "mortgage", "monthly_amount": float64(900)},
			},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, session2)

	_, err = env.svc.AcceptAll(ctx, advisorID, session2.ID, "advisor-7")
	require.NoError(t, err)

	rows, err = env.holdings.ListByCategory(ctx, advisorID, clientID, "liabilities")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].MonthlyAmount)
	assert.Equal(t, float64(900), *rows[0].MonthlyAmount)
}
