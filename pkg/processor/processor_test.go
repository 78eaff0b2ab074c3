package processor

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/review"
)

type stubClients struct {
	client *models.Client
}

func (s *stubClients) GetByID(ctx context.Context, advisorID, id string) (*models.Client, error) {
	return s.client, nil
}

type stubSpouses struct{}

func (s *stubSpouses) GetByClient(ctx context.Context, advisorID, clientID string) (*models.Spouse, error) {
	return nil, nil
}

type stubDependents struct{}

func (s *stubDependents) ListByClient(ctx context.Context, advisorID, clientID string) ([]models.Dependent, error) {
	return nil, nil
}

type stubHoldings struct{}

func (s *stubHoldings) ListByClient(ctx context.Context, advisorID, clientID string) ([]models.Holding, error) {
	return nil, nil
}

type stubSessions struct {
	created *models.CreatePendingChangeRequest
	session *models.PendingChange
}

func (s *stubSessions) Create(ctx context.Context, advisorID string, req models.CreatePendingChangeRequest) (*models.PendingChange, error) {
	s.created = &req
	conflicts := 0
	for _, c := range req.Changes {
		if c.IsConflict {
			conflicts++
		}
	}
	s.session = &models.PendingChange{
		ID:             "pc-1",
		AdvisorID:      advisorID,
		ClientID:       req.ClientID,
		Source:         req.Source,
		Status:         models.StatusPending,
		Changes:        database.NewJSONB(req.Changes),
		ChangesCount:   len(req.Changes),
		ConflictsCount: conflicts,
	}
	return s.session, nil
}

func (s *stubSessions) GetByID(ctx context.Context, advisorID, id string) (*models.PendingChange, error) {
	return s.session, nil
}

func (s *stubSessions) List(ctx context.Context, advisorID, status string, page, pageSize int) (*models.PendingChangeListResponse, error) {
	return nil, nil
}

func (s *stubSessions) ListByClient(ctx context.Context, advisorID, clientID string) ([]models.PendingChange, error) {
	return nil, nil
}

func (s *stubSessions) CountPendingByClient(ctx context.Context, advisorID, clientID string) (int, error) {
	return 0, nil
}

func (s *stubSessions) SaveDecisions(ctx context.Context, advisorID, id string, decisions map[string]string, overrides map[string]any) (*models.PendingChange, error) {
	return nil, nil
}

func (s *stubSessions) MarkRejected(ctx context.Context, advisorID, id string, reason *string, resolvedBy string) (*models.PendingChange, error) {
	return nil, nil
}

type stubApplier struct {
	session    *models.PendingChange
	resolvedBy string
}

func (s *stubApplier) Apply(ctx context.Context, advisorID string, session *models.PendingChange, resolvedBy string) (*models.ApplyResult, error) {
	s.session = session
	s.resolvedBy = resolvedBy
	resolved := *session
	resolved.Status = models.StatusApplied
	return &models.ApplyResult{PendingChange: &resolved}, nil
}

func newTestProcessor(clients *stubClients, sessions *stubSessions) *Processor {
	logger := zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
	reviews := review.NewService(logger, clients, &stubSpouses{}, &stubDependents{}, &stubHoldings{}, nil, sessions, nil, nil, 50)
	return NewProcessor(logger, reviews, false)
}

func newAutoApplyProcessor(clients *stubClients, sessions *stubSessions, applier *stubApplier) *Processor {
	logger := zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
	reviews := review.NewService(logger, clients, &stubSpouses{}, &stubDependents{}, &stubHoldings{}, nil, sessions, applier, nil, 50)
	return NewProcessor(logger, reviews, true)
}

func strPtr(s string) *string { return &s }

func TestProcessMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("stages a valid extraction for review", func(t *testing.T) {
		clients := &stubClients{client: &models.Client{ID: "c1", AdvisorID: "a1", Email: strPtr("old@example.com")}}
		sessions := &stubSessions{}
		p := newTestProcessor(clients, sessions)

		err := p.ProcessMessage(ctx, &kafka.IncomingMessage{
			Value: []byte(`{"advisor_id":"a1","client_id":"c1","source":"audio","data":{"email":"new@example.com"}}`),
		})
		require.NoError(t, err)
		require.NotNil(t, sessions.created)
		assert.Equal(t, "c1", sessions.created.ClientID)
		assert.Equal(t, models.SourceAudio, sessions.created.Source)
	})

	t.Run("defaults a missing source to audio", func(t *testing.T) {
		clients := &stubClients{client: &models.Client{ID: "c1", AdvisorID: "a1"}}
		sessions := &stubSessions{}
		p := newTestProcessor(clients, sessions)

		err := p.ProcessMessage(ctx, &kafka.IncomingMessage{
			Value: []byte(`{"advisor_id":"a1","client_id":"c1","data":{"email":"x@example.com"}}`),
		})
		require.NoError(t, err)
		require.NotNil(t, sessions.created)
		assert.Equal(t, models.SourceAudio, sessions.created.Source)
	})

	t.Run("malformed payload is skipped, not retried", func(t *testing.T) {
		sessions := &stubSessions{}
		p := newTestProcessor(&stubClients{}, sessions)

		err := p.ProcessMessage(ctx, &kafka.IncomingMessage{Value: []byte(`not json`)})
		assert.NoError(t, err)
		assert.Nil(t, sessions.created)
	})

	t.Run("message missing required fields is skipped", func(t *testing.T) {
		sessions := &stubSessions{}
		p := newTestProcessor(&stubClients{}, sessions)

		err := p.ProcessMessage(ctx, &kafka.IncomingMessage{
			Value: []byte(`{"client_id":"c1","data":{"email":"x@example.com"}}`),
		})
		assert.NoError(t, err)
		assert.Nil(t, sessions.created)
	})

	t.Run("unknown client is skipped", func(t *testing.T) {
		sessions := &stubSessions{}
		p := newTestProcessor(&stubClients{}, sessions)

		err := p.ProcessMessage(ctx, &kafka.IncomingMessage{
			Value: []byte(`{"advisor_id":"a1","client_id":"missing","data":{"email":"x@example.com"}}`),
		})
		assert.NoError(t, err)
		assert.Nil(t, sessions.created)
	})

	t.Run("auto-apply resolves a conflict-free session", func(t *testing.T) {
		clients := &stubClients{client: &models.Client{ID: "c1", AdvisorID: "a1"}}
		sessions := &stubSessions{}
		applier := &stubApplier{}
		p := newAutoApplyProcessor(clients, sessions, applier)

		err := p.ProcessMessage(ctx, &kafka.IncomingMessage{
			Value: []byte(`{"advisor_id":"a1","client_id":"c1","data":{"email":"x@example.com"}}`),
		})
		require.NoError(t, err)
		require.NotNil(t, applier.session)
		assert.Equal(t, models.DecisionAccept, applier.session.Decisions.Data["email"])
		assert.Equal(t, "auto-apply", applier.resolvedBy)
	})

	t.Run("auto-apply leaves a conflicting session pending", func(t *testing.T) {
		clients := &stubClients{client: &models.Client{ID: "c1", AdvisorID: "a1", Email: strPtr("old@example.com")}}
		sessions := &stubSessions{}
		applier := &stubApplier{}
		p := newAutoApplyProcessor(clients, sessions, applier)

		err := p.ProcessMessage(ctx, &kafka.IncomingMessage{
			Value: []byte(`{"advisor_id":"a1","client_id":"c1","data":{"email":"new@example.com"}}`),
		})
		require.NoError(t, err)
		require.NotNil(t, sessions.created)
		assert.Nil(t, applier.session)
	})

	t.Run("unknown source is skipped", func(t *testing.T) {
		clients := &stubClients{client: &models.Client{ID: "c1", AdvisorID: "a1"}}
		sessions := &stubSessions{}
		p := newTestProcessor(clients, sessions)

		err := p.ProcessMessage(ctx, &kafka.IncomingMessage{
			Value: []byte(`{"advisor_id":"a1","client_id":"c1","source":"webhook","data":{"email":"x@example.com"}}`),
		})
		assert.NoError(t, err)
		assert.Nil(t, sessions.created)
	})
}
