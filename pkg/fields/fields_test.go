package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	f, ok := ByName("needs")
	require.True(t, ok)
	assert.Equal(t, KindList, f.Kind)

	_, ok = ByName("nonexistent")
	assert.False(t, ok)
}

func TestIsCritical(t *testing.T) {
	assert.True(t, IsCritical("email"))
	assert.True(t, IsCritical("annual_income"))
	assert.False(t, IsCritical("profession"))
	assert.False(t, IsCritical("nonexistent"))
}

func TestHoldingCategories(t *testing.T) {
	cats := HoldingCategories()
	require.Len(t, cats, 5)

	for name, f := range cats {
		assert.Equal(t, KindCollection, f.Kind)
		assert.Equal(t, name, f.Category)
		assert.Equal(t, "kind", f.NaturalKey)
	}

	// dependents has its own table, not a holdings category
	assert.NotContains(t, cats, "dependents")
}

func TestRegistryNamesAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, f := range Registry {
		assert.False(t, seen[f.Name], "duplicate field %s", f.Name)
		seen[f.Name] = true
	}
}
