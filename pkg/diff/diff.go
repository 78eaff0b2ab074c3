// Package diff computes field-level change lists between the curated client
// snapshot and an extracted candidate snapshot.
package diff

import (
	"sort"

	"github.com/Ramsey-B/aster/pkg/fields"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/values"
)

// Builder builds change lists. Fields walk in registry order, so the output
// is deterministic for a given pair of snapshots.
type Builder struct{}

// NewBuilder creates a new diff builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build diffs the candidate snapshot against the current one. Only fields
// the candidate actually proposes are considered: empty candidate values
// never produce a change, so an extractor that heard nothing for a field
// cannot erase curated data.
func (b *Builder) Build(current, candidate map[string]any) []models.ChangeItem {
	changes := make([]models.ChangeItem, 0)

	for _, f := range fields.Registry {
		newValue, ok := candidate[f.Name]
		if !ok || values.IsEmpty(newValue) {
			continue
		}

		currentValue := current[f.Name]
		if values.Equal(currentValue, newValue) {
			continue
		}

		item := models.ChangeItem{
			Field:        f.Name,
			Label:        f.Label,
			CurrentValue: currentValue,
			NewValue:     newValue,
			HasChange:    true,
			IsConflict:   !values.IsEmpty(currentValue),
			IsCritical:   f.Critical,
			IsRelational: f.IsRelational(),
		}

		if item.IsRelational {
			item.RelationalFields = relationalFields(newValue)
		}

		changes = append(changes, item)
	}

	return changes
}

// relationalFields collects the union of element keys across the proposed
// value, so reviewers see which attributes the extraction touched.
func relationalFields(v any) []string {
	seen := make(map[string]bool)

	collect := func(m map[string]any) {
		for k := range m {
			seen[k] = true
		}
	}

	switch val := v.(type) {
	case map[string]any:
		collect(val)
	case []any:
		for _, elem := range val {
			if m, ok := elem.(map[string]any); ok {
				collect(m)
			}
		}
	case []map[string]any:
		for _, m := range val {
			collect(m)
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CountConflicts returns the number of conflicting items in a change list.
func CountConflicts(changes []models.ChangeItem) int {
	count := 0
	for _, c := range changes {
		if c.IsConflict {
			count++
		}
	}
	return count
}
