package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/listmerge"
)

func TestNormalizeScalars(t *testing.T) {
	snap := Normalize(map[string]any{
		"email":         "  Jean.Dupont@Example.COM ",
		"phone":         "+33 6 12 34 56 78",
		"postal_code":   "69 003",
		"first_name":    "  jean   pierre ",
		"civility":      " Mr ",
		"annual_income": "45000,50",
		"unknown_key":   "dropped",
	})

	assert.Equal(t, "jean.dupont@example.com", snap.Fields["email"])
	assert.Equal(t, "+33612345678", snap.Fields["phone"])
	assert.Equal(t, "69003", snap.Fields["postal_code"])
	assert.Equal(t, "jean pierre", snap.Fields["first_name"])
	assert.Equal(t, "mr", snap.Fields["civility"])
	assert.Equal(t, float64(45000.50), snap.Fields["annual_income"])
	assert.NotContains(t, snap.Fields, "unknown_key")
}

func TestNormalizeDates(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "iso passes through", raw: "1980-03-15", expected: "1980-03-15"},
		{name: "slashed date is rewritten", raw: "15/03/1980", expected: "1980-03-15"},
		{name: "single digit day and month padded", raw: "5/3/1980", expected: "1980-03-05"},
		{name: "unparseable text passes through trimmed", raw: " mid march 1980 ", expected: "mid march 1980"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Normalize(map[string]any{"birth_date": tt.raw})
			assert.Equal(t, tt.expected, snap.Fields["birth_date"])
		})
	}
}

func TestNormalizeNeeds(t *testing.T) {
	t.Run("array form", func(t *testing.T) {
		snap := Normalize(map[string]any{"needs": []any{"Retirement", " savings ", "retirement"}})
		assert.Equal(t, []any{"Retirement", "savings"}, snap.Fields["needs"])
		assert.Equal(t, listmerge.ActionAdd, snap.NeedsAction)
	})

	t.Run("comma-joined text form", func(t *testing.T) {
		snap := Normalize(map[string]any{"needs": "protection, savings,,protection"})
		assert.Equal(t, []any{"protection", "savings"}, snap.Fields["needs"])
	})

	t.Run("needs_action is lifted out", func(t *testing.T) {
		snap := Normalize(map[string]any{
			"needs":        []any{"savings"},
			"needs_action": " Remove ",
		})
		assert.Equal(t, listmerge.ActionRemove, snap.NeedsAction)
		assert.NotContains(t, snap.Fields, "needs_action")
	})

	t.Run("unknown action defaults to add", func(t *testing.T) {
		snap := Normalize(map[string]any{
			"needs":        []any{"savings"},
			"needs_action": "overwrite",
		})
		assert.Equal(t, listmerge.ActionAdd, snap.NeedsAction)
	})
}

func TestNormalizeElements(t *testing.T) {
	t.Run("spouse element", func(t *testing.T) {
		snap := Normalize(map[string]any{
			"spouse": map[string]any{
				"First_Name":    " marie  claire ",
				"birth_date":    "2/1/1985",
				"annual_income": "38 000",
				"notes":         "   ",
			},
		})

		elem, ok := snap.Fields["spouse"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "marie claire", elem["first_name"])
		assert.Equal(t, "1985-01-02", elem["birth_date"])
		assert.Equal(t, float64(38000), elem["annual_income"])
		assert.NotContains(t, elem, "notes")
	})

	t.Run("collection drops non-object entries and empty elements", func(t *testing.T) {
		snap := Normalize(map[string]any{
			"dependents": []any{
				map[string]any{"first_name": "Anna"},
				"not an object",
				map[string]any{"notes": nil},
			},
		})

		items, ok := snap.Fields["dependents"].([]any)
		require.True(t, ok)
		require.Len(t, items, 1)
		assert.Equal(t, map[string]any{"first_name": "Anna"}, items[0])
	})

	t.Run("holding amounts coerced", func(t *testing.T) {
		snap := Normalize(map[string]any{
			"liabilities": []any{
				map[string]any{
					"kind":              "mortgage",
					"monthly_amount":    "850,25",
					"remaining_capital": float64(120000),
					"end_date":          "01/06/2041",
				},
			},
		})

		items := snap.Fields["liabilities"].([]any)
		require.Len(t, items, 1)
		elem := items[0].(map[string]any)
		assert.Equal(t, float64(850.25), elem["monthly_amount"])
		assert.Equal(t, float64(120000), elem["remaining_capital"])
		assert.Equal(t, "2041-06-01", elem["end_date"])
	})
}
