package models

import (
	"time"

	"github.com/Ramsey-B/aster/pkg/database"
)

// Sources a pending change can originate from.
const (
	SourceAudio  = "audio"
	SourceImport = "import"
	SourceManual = "manual"
)

// Review session statuses. A session is created pending and ends applied or
// rejected; terminal sessions are retained for audit.
const (
	StatusPending  = "pending"
	StatusApplied  = "applied"
	StatusRejected = "rejected"
)

// Decisions a reviewer can record per field.
const (
	DecisionAccept = "accept"
	DecisionReject = "reject"
	DecisionSkip   = "skip"
)

// ChangeItem is one field-level difference between the curated record and an
// extracted candidate snapshot.
type ChangeItem struct {
	Field            string   `json:"field"`
	Label            string   `json:"label"`
	CurrentValue     any      `json:"current_value"`
	NewValue         any      `json:"new_value"`
	HasChange        bool     `json:"has_change"`
	IsConflict       bool     `json:"is_conflict"`
	IsCritical       bool     `json:"is_critical"`
	IsRelational     bool     `json:"is_relational"`
	RelationalFields []string `json:"relational_fields,omitempty"`
}

// PendingChange is a review session: the frozen diff of one extraction run
// against the curated client record, plus the reviewer's decisions.
type PendingChange struct {
	ID             string                                 `json:"id" db:"id"`
	AdvisorID      string                                 `json:"advisor_id" db:"advisor_id"`
	ClientID       string                                 `json:"client_id" db:"client_id"`
	Source         string                                 `json:"source" db:"source"`
	Status         string                                 `json:"status" db:"status"`
	RecordingID    *string                                `json:"recording_id,omitempty" db:"recording_id"`
	Changes        database.JSONB[[]ChangeItem]           `json:"changes" db:"changes"`
	ChangesCount   int                                    `json:"changes_count" db:"changes_count"`
	ConflictsCount int                                    `json:"conflicts_count" db:"conflicts_count"`
	Decisions      database.JSONB[map[string]string]      `json:"decisions" db:"decisions"`
	Overrides      database.JSONB[map[string]any]         `json:"overrides" db:"overrides"`
	ListRemovals   database.JSONB[map[string][]string]    `json:"list_removals" db:"list_removals"`
	Notes          *string                                `json:"notes,omitempty" db:"notes"`
	ResolvedBy     *string                                `json:"resolved_by,omitempty" db:"resolved_by"`
	CreatedAt      time.Time                              `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time                              `json:"updated_at" db:"updated_at"`
	ResolvedAt     *time.Time                             `json:"resolved_at,omitempty" db:"resolved_at"`
	DeletedAt      *time.Time                             `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsPending reports whether the session still accepts decisions.
func (p *PendingChange) IsPending() bool {
	return p.Status == StatusPending
}

// ChangeFor returns the change item for a field, if this session carries one.
func (p *PendingChange) ChangeFor(field string) (*ChangeItem, bool) {
	for i := range p.Changes.Data {
		if p.Changes.Data[i].Field == field {
			return &p.Changes.Data[i], true
		}
	}
	return nil, false
}

// CreatePendingChangeRequest carries everything needed to persist a new
// review session.
type CreatePendingChangeRequest struct {
	ClientID     string              `json:"client_id" validate:"required"`
	Source       string              `json:"source" validate:"required,oneof=audio import manual"`
	RecordingID  *string             `json:"recording_id,omitempty"`
	Changes      []ChangeItem        `json:"changes" validate:"required"`
	ListRemovals map[string][]string `json:"list_removals,omitempty"`
}

// PendingChangeListResponse is a page of review sessions.
type PendingChangeListResponse struct {
	Items      []PendingChange `json:"items"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
}

// ApplyResult reports what an apply committed.
type ApplyResult struct {
	PendingChange *PendingChange `json:"pending_change"`
	Client        *Client        `json:"client"`
	AppliedFields []string       `json:"applied_fields"`
	SkippedFields []string       `json:"skipped_fields"`
	RemovedNeeds  []string       `json:"removed_needs,omitempty"`
}
