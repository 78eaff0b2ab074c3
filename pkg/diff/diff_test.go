package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	builder := NewBuilder()

	t.Run("unchanged fields produce no items", func(t *testing.T) {
		current := map[string]any{"first_name": "Jean", "city": "Lyon"}
		candidate := map[string]any{"first_name": "jean", "city": "LYON"}

		changes := builder.Build(current, candidate)
		assert.Empty(t, changes)
	})

	t.Run("empty candidate values never erase curated data", func(t *testing.T) {
		current := map[string]any{"email": "jean@example.com"}
		candidate := map[string]any{"email": "", "phone": nil, "needs": []any{}}

		changes := builder.Build(current, candidate)
		assert.Empty(t, changes)
	})

	t.Run("new value on empty field is not a conflict", func(t *testing.T) {
		current := map[string]any{}
		candidate := map[string]any{"profession": "architect"}

		changes := builder.Build(current, candidate)
		require.Len(t, changes, 1)
		assert.Equal(t, "profession", changes[0].Field)
		assert.Equal(t, "Profession", changes[0].Label)
		assert.False(t, changes[0].IsConflict)
		assert.False(t, changes[0].IsCritical)
	})

	t.Run("new value over existing value is a conflict", func(t *testing.T) {
		current := map[string]any{"email": "old@example.com"}
		candidate := map[string]any{"email": "new@example.com"}

		changes := builder.Build(current, candidate)
		require.Len(t, changes, 1)
		assert.True(t, changes[0].IsConflict)
		assert.True(t, changes[0].IsCritical)
		assert.Equal(t, "old@example.com", changes[0].CurrentValue)
		assert.Equal(t, "new@example.com", changes[0].NewValue)
	})

	t.Run("items follow registry order", func(t *testing.T) {
		current := map[string]any{}
		candidate := map[string]any{
			"needs":      []any{"retirement"},
			"first_name": "Jean",
			"email":      "jean@example.com",
		}

		changes := builder.Build(current, candidate)
		require.Len(t, changes, 3)
		assert.Equal(t, "first_name", changes[0].Field)
		assert.Equal(t, "email", changes[1].Field)
		assert.Equal(t, "needs", changes[2].Field)
	})

	t.Run("relational fields carry the union of element keys", func(t *testing.T) {
		current := map[string]any{}
		candidate := map[string]any{
			"dependents": []any{
				map[string]any{"first_name": "Anna"},
				map[string]any{"first_name": "Lea", "birth_date": "2019-04-02"},
			},
		}

		changes := builder.Build(current, candidate)
		require.Len(t, changes, 1)
		assert.True(t, changes[0].IsRelational)
		assert.Equal(t, []string{"birth_date", "first_name"}, changes[0].RelationalFields)
	})

	t.Run("spouse object diffs as one element", func(t *testing.T) {
		current := map[string]any{
			"spouse": map[string]any{"first_name": "Marie", "profession": "teacher"},
		}
		candidate := map[string]any{
			"spouse": map[string]any{"first_name": "Marie", "profession": "director"},
		}

		changes := builder.Build(current, candidate)
		require.Len(t, changes, 1)
		assert.Equal(t, "spouse", changes[0].Field)
		assert.True(t, changes[0].IsConflict)
		assert.Equal(t, []string{"first_name", "profession"}, changes[0].RelationalFields)
	})
}

func TestCountConflicts(t *testing.T) {
	builder := NewBuilder()
	current := map[string]any{"email": "old@example.com"}
	candidate := map[string]any{"email": "new@example.com", "profession": "architect"}

	changes := builder.Build(current, candidate)
	require.Len(t, changes, 2)
	assert.Equal(t, 1, CountConflicts(changes))
}
