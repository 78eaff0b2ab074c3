// Package events handles event emission for review lifecycle changes
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	// Review events
	EventTypeReviewCreated  EventType = "review.created"
	EventTypeReviewApplied  EventType = "review.applied"
	EventTypeReviewRejected EventType = "review.rejected"

	// Client events
	EventTypeClientUpdated EventType = "client.updated"
)

// Emitter handles event emission for Aster
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitReviewCreated emits a review.created event
func (e *Emitter) EmitReviewCreated(ctx context.Context, session *models.PendingChange) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitReviewCreated")
	defer span.End()

	event := &kafka.ReviewEvent{
		EventType:      string(EventTypeReviewCreated),
		SchemaVersion:  SchemaVersion,
		AdvisorID:      session.AdvisorID,
		ClientID:       session.ClientID,
		ReviewID:       session.ID,
		Source:         session.Source,
		ChangesCount:   session.ChangesCount,
		ConflictsCount: session.ConflictsCount,
	}

	if err := e.producer.PublishReviewEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit review.created event")
		return err
	}

	return nil
}

// EmitReviewApplied emits a review.applied event followed by a
// client.updated event carrying the fresh record.
func (e *Emitter) EmitReviewApplied(ctx context.Context, result *models.ApplyResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitReviewApplied")
	defer span.End()

	session := result.PendingChange
	events := []*kafka.ReviewEvent{
		{
			EventType:     string(EventTypeReviewApplied),
			SchemaVersion: SchemaVersion,
			AdvisorID:     session.AdvisorID,
			ClientID:      session.ClientID,
			ReviewID:      session.ID,
			Source:        session.Source,
			AppliedFields: result.AppliedFields,
			SkippedFields: result.SkippedFields,
			RemovedNeeds:  result.RemovedNeeds,
		},
	}
	if result.Client != nil && len(result.AppliedFields) > 0 {
		events = append(events, &kafka.ReviewEvent{
			EventType:     string(EventTypeClientUpdated),
			SchemaVersion: SchemaVersion,
			AdvisorID:     session.AdvisorID,
			ClientID:      session.ClientID,
			ReviewID:      session.ID,
			Client:        result.Client.ScalarSnapshot(),
		})
	}

	if err := e.producer.PublishReviewEvents(ctx, events); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit review.applied event")
		return err
	}

	return nil
}

// EmitReviewRejected emits a review.rejected event
func (e *Emitter) EmitReviewRejected(ctx context.Context, session *models.PendingChange) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitReviewRejected")
	defer span.End()

	event := &kafka.ReviewEvent{
		EventType:     string(EventTypeReviewRejected),
		SchemaVersion: SchemaVersion,
		AdvisorID:     session.AdvisorID,
		ClientID:      session.ClientID,
		ReviewID:      session.ID,
		Source:        session.Source,
	}

	if err := e.producer.PublishReviewEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit review.rejected event")
		return err
	}

	return nil
}
