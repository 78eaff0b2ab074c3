package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExtractionMessage is the payload the extraction pipeline publishes when a
// recording transcription or a spreadsheet import has been parsed.
type ExtractionMessage struct {
	AdvisorID   string         `json:"advisor_id"`
	ClientID    string         `json:"client_id"`
	Source      string         `json:"source"`
	RecordingID *string        `json:"recording_id,omitempty"`
	Data        map[string]any `json:"data"`
	ExtractedAt *time.Time     `json:"extracted_at,omitempty"`
}

// Validate checks the message carries enough to create a review session.
func (m *ExtractionMessage) Validate() error {
	if m.AdvisorID == "" {
		return fmt.Errorf("extraction message missing advisor_id")
	}
	if m.ClientID == "" {
		return fmt.Errorf("extraction message missing client_id")
	}
	if len(m.Data) == 0 {
		return fmt.Errorf("extraction message missing data")
	}
	return nil
}

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string

	// Parsed content
	Extraction *ExtractionMessage
}

// ParseExtraction parses the message value as an extraction result.
func (m *IncomingMessage) ParseExtraction() error {
	var msg ExtractionMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return err
	}
	if msg.AdvisorID == "" {
		msg.AdvisorID = m.Headers["advisor_id"]
	}
	m.Extraction = &msg
	return nil
}

// GetAdvisorID returns the advisor the message belongs to.
func (m *IncomingMessage) GetAdvisorID() string {
	if m.Extraction != nil && m.Extraction.AdvisorID != "" {
		return m.Extraction.AdvisorID
	}
	return m.Headers["advisor_id"]
}

// ReviewEvent is published on the output topic when a session changes state.
type ReviewEvent struct {
	EventType      string         `json:"event_type"`
	SchemaVersion  string         `json:"schema_version"`
	AdvisorID      string         `json:"advisor_id"`
	ClientID       string         `json:"client_id"`
	ReviewID       string         `json:"review_id"`
	Source         string         `json:"source,omitempty"`
	ChangesCount   int            `json:"changes_count,omitempty"`
	ConflictsCount int            `json:"conflicts_count,omitempty"`
	AppliedFields  []string       `json:"applied_fields,omitempty"`
	SkippedFields  []string       `json:"skipped_fields,omitempty"`
	RemovedNeeds   []string       `json:"removed_needs,omitempty"`
	Client         map[string]any `json:"client,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}
