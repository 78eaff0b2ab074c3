// Package processor handles incoming extraction messages. This is the
// ingestion layer: every parsed transcription or import lands as a pending
// change session awaiting advisor review, never directly on the client record.
package processor

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	pkgcontext "github.com/Ramsey-B/aster/pkg/context"
	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/review"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Processor handles extraction message processing
type Processor struct {
	logger  ectologger.Logger
	reviews *review.Service
	// autoApply resolves the safe subset of each staged session immediately,
	// leaving only the conflicting fields for the advisor.
	autoApply bool
}

// NewProcessor creates a new extraction message processor
func NewProcessor(logger ectologger.Logger, reviews *review.Service, autoApply bool) *Processor {
	return &Processor{
		logger:    logger,
		reviews:   reviews,
		autoApply: autoApply,
	}
}

// ProcessMessage turns one extraction result into a review session.
// Malformed messages are logged and skipped; transient failures are returned
// so the consumer retries them.
func (p *Processor) ProcessMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.ProcessMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"key":    msg.Key,
		"topic":  msg.Topic,
		"offset": msg.Offset,
	})

	if msg.Extraction == nil {
		if err := msg.ParseExtraction(); err != nil {
			log.WithError(err).Error("Failed to parse extraction message")
			return nil // Skip message, don't retry
		}
	}

	extraction := msg.Extraction
	if err := extraction.Validate(); err != nil {
		log.WithError(err).Error("Invalid extraction message, skipping")
		return nil
	}

	source := extraction.Source
	if source == "" {
		source = models.SourceAudio
	}

	ctx = pkgcontext.SetAdvisorID(ctx, extraction.AdvisorID)
	log = log.WithFields(map[string]any{
		"advisor_id": extraction.AdvisorID,
		"client_id":  extraction.ClientID,
		"source":     source,
	})

	session, err := p.reviews.CreateFromSnapshot(ctx, extraction.AdvisorID, review.CreateInput{
		ClientID:    extraction.ClientID,
		Source:      source,
		RecordingID: extraction.RecordingID,
		Data:        extraction.Data,
	})
	if err != nil {
		if review.IsValidationError(err) {
			// the payload will never get better on retry
			log.WithError(err).Error("Extraction rejected, skipping")
			return nil
		}
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound {
			log.WithError(err).Error("Client not found, skipping extraction")
			return nil
		}
		log.WithError(err).Error("Failed to create review session")
		return err
	}

	if session == nil {
		log.Info("Extraction proposed no changes")
		return nil
	}

	log = log.WithFields(map[string]any{
		"pending_change_id": session.ID,
		"changes_count":     session.ChangesCount,
	})
	log.Info("Staged extraction for review")

	// a session with no conflicts has nothing for the advisor to arbitrate
	if p.autoApply && session.ConflictsCount == 0 {
		if _, err := p.reviews.AcceptAll(ctx, extraction.AdvisorID, session.ID, "auto-apply"); err != nil {
			// the session is already staged; leave it pending rather than
			// redelivering the message and staging it twice
			log.WithError(err).Error("Failed to auto-apply conflict-free session")
			return nil
		}
		log.Info("Auto-applied conflict-free session")
	}
	return nil
}
