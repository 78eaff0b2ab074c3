package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/Ramsey-B/aster/pkg/database"
)

// Client is the curated golden record for a person advised by an advisor.
// Scalar columns are diffed field by field; collections live in their own
// tables and are diffed as relational fields.
type Client struct {
	ID            string                   `json:"id" db:"id"`
	AdvisorID     string                   `json:"advisor_id" db:"advisor_id"`
	Civility      *string                  `json:"civility,omitempty" db:"civility"`
	FirstName     *string                  `json:"first_name,omitempty" db:"first_name"`
	LastName      *string                  `json:"last_name,omitempty" db:"last_name"`
	Email         *string                  `json:"email,omitempty" db:"email"`
	Phone         *string                  `json:"phone,omitempty" db:"phone"`
	Address       *string                  `json:"address,omitempty" db:"address"`
	PostalCode    *string                  `json:"postal_code,omitempty" db:"postal_code"`
	City          *string                  `json:"city,omitempty" db:"city"`
	BirthDate     *string                  `json:"birth_date,omitempty" db:"birth_date"`
	MaritalStatus *string                  `json:"marital_status,omitempty" db:"marital_status"`
	Profession    *string                  `json:"profession,omitempty" db:"profession"`
	AnnualIncome  *float64                 `json:"annual_income,omitempty" db:"annual_income"`
	Needs         database.JSONB[[]string] `json:"needs" db:"needs"`
	Notes         *string                  `json:"notes,omitempty" db:"notes"`
	CreatedAt     time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at" db:"updated_at"`
	DeletedAt     *time.Time               `json:"deleted_at,omitempty" db:"deleted_at"`
}

// ScalarSnapshot returns the client's diffable scalar fields keyed by field
// name. Unset fields are omitted so they read as empty current values.
func (c *Client) ScalarSnapshot() map[string]any {
	snap := make(map[string]any)
	put := func(field string, v *string) {
		if v != nil && *v != "" {
			snap[field] = *v
		}
	}
	put("civility", c.Civility)
	put("first_name", c.FirstName)
	put("last_name", c.LastName)
	put("email", c.Email)
	put("phone", c.Phone)
	put("address", c.Address)
	put("postal_code", c.PostalCode)
	put("city", c.City)
	put("birth_date", c.BirthDate)
	put("marital_status", c.MaritalStatus)
	put("profession", c.Profession)
	if c.AnnualIncome != nil {
		snap["annual_income"] = *c.AnnualIncome
	}
	if len(c.Needs.Data) > 0 {
		needs := make([]any, len(c.Needs.Data))
		for i, n := range c.Needs.Data {
			needs[i] = n
		}
		snap["needs"] = needs
	}
	return snap
}

// ClientView is the read model served by the client API: the golden record
// plus every dependent collection the review UI shows current values from.
type ClientView struct {
	Client     Client                      `json:"client"`
	Spouse     *Spouse                     `json:"spouse,omitempty"`
	Dependents []Dependent                 `json:"dependents"`
	Holdings   map[string][]map[string]any `json:"holdings"`
	Profiles   []AdviceProfile             `json:"profiles"`
}

// Spouse is the single companion record attached to a client.
type Spouse struct {
	ID           string     `json:"id" db:"id"`
	AdvisorID    string     `json:"advisor_id" db:"advisor_id"`
	ClientID     string     `json:"client_id" db:"client_id"`
	Civility     *string    `json:"civility,omitempty" db:"civility"`
	FirstName    *string    `json:"first_name,omitempty" db:"first_name"`
	LastName     *string    `json:"last_name,omitempty" db:"last_name"`
	BirthDate    *string    `json:"birth_date,omitempty" db:"birth_date"`
	Profession   *string    `json:"profession,omitempty" db:"profession"`
	AnnualIncome *float64   `json:"annual_income,omitempty" db:"annual_income"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// AsMap returns the spouse as a diffable element map.
func (s *Spouse) AsMap() map[string]any {
	m := map[string]any{"id": s.ID}
	put := func(key string, v *string) {
		if v != nil && *v != "" {
			m[key] = *v
		}
	}
	put("civility", s.Civility)
	put("first_name", s.FirstName)
	put("last_name", s.LastName)
	put("birth_date", s.BirthDate)
	put("profession", s.Profession)
	if s.AnnualIncome != nil {
		m["annual_income"] = *s.AnnualIncome
	}
	return m
}

// Dependent is a child attached to a client. Extracted items without an id
// are matched to existing rows by first name, so a re-run of the same
// recording does not duplicate children.
type Dependent struct {
	ID        string     `json:"id" db:"id"`
	AdvisorID string     `json:"advisor_id" db:"advisor_id"`
	ClientID  string     `json:"client_id" db:"client_id"`
	FirstName string     `json:"first_name" db:"first_name"`
	BirthDate *string    `json:"birth_date,omitempty" db:"birth_date"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

func (d *Dependent) AsMap() map[string]any {
	m := map[string]any{
		"id":         d.ID,
		"first_name": d.FirstName,
	}
	if d.BirthDate != nil && *d.BirthDate != "" {
		m["birth_date"] = *d.BirthDate
	}
	return m
}

// Holding is one row of a client's financial collections. The category
// column discriminates the collection (income_lines, liabilities,
// financial_assets, property_assets, other_savings); columns the category
// does not use stay NULL and extractor keys with no column land in data.
type Holding struct {
	ID               string                          `json:"id" db:"id"`
	AdvisorID        string                          `json:"advisor_id" db:"advisor_id"`
	ClientID         string                          `json:"client_id" db:"client_id"`
	Category         string                          `json:"category" db:"category"`
	Kind             string                          `json:"kind" db:"kind"`
	Label            *string                         `json:"label,omitempty" db:"label"`
	Amount           *float64                        `json:"amount,omitempty" db:"amount"`
	MonthlyAmount    *float64                        `json:"monthly_amount,omitempty" db:"monthly_amount"`
	RemainingCapital *float64                        `json:"remaining_capital,omitempty" db:"remaining_capital"`
	EndDate          *string                         `json:"end_date,omitempty" db:"end_date"`
	Data             database.JSONB[map[string]any]  `json:"data" db:"data"`
	CreatedAt        time.Time                       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time                       `json:"updated_at" db:"updated_at"`
	DeletedAt        *time.Time                      `json:"deleted_at,omitempty" db:"deleted_at"`
}

func (h *Holding) AsMap() map[string]any {
	m := map[string]any{
		"id":   h.ID,
		"kind": h.Kind,
	}
	if h.Label != nil && *h.Label != "" {
		m["label"] = *h.Label
	}
	if h.Amount != nil {
		m["amount"] = *h.Amount
	}
	if h.MonthlyAmount != nil {
		m["monthly_amount"] = *h.MonthlyAmount
	}
	if h.RemainingCapital != nil {
		m["remaining_capital"] = *h.RemainingCapital
	}
	if h.EndDate != nil && *h.EndDate != "" {
		m["end_date"] = *h.EndDate
	}
	for k, v := range h.Data.Data {
		if _, taken := m[k]; !taken {
			m[k] = v
		}
	}
	return m
}

// AdviceProfile is a per-need advisory document attached to a client,
// one row per kind (protection, retirement, savings).
type AdviceProfile struct {
	ID        string          `json:"id" db:"id"`
	AdvisorID string          `json:"advisor_id" db:"advisor_id"`
	ClientID  string          `json:"client_id" db:"client_id"`
	Kind      string          `json:"kind" db:"kind"`
	Data      json.RawMessage `json:"data" db:"data"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Advice profile kinds, matching the values carried in the needs list.
const (
	ProfileKindProtection = "protection"
	ProfileKindRetirement = "retirement"
	ProfileKindSavings    = "savings"
)

// ProfileKindForNeed maps a needs list entry to the advice profile kind it
// drives. Entries keep their curated spelling, so the match ignores case and
// surrounding whitespace. Needs outside the known set have no profile.
func ProfileKindForNeed(need string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(need)) {
	case ProfileKindProtection:
		return ProfileKindProtection, true
	case ProfileKindRetirement:
		return ProfileKindRetirement, true
	case ProfileKindSavings:
		return ProfileKindSavings, true
	default:
		return "", false
	}
}
