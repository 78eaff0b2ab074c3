package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected bool
	}{
		{name: "nil", value: nil, expected: true},
		{name: "blank string", value: "   ", expected: true},
		{name: "non-blank string", value: "x", expected: false},
		{name: "empty array", value: []any{}, expected: true},
		{name: "non-empty array", value: []any{"a"}, expected: false},
		{name: "empty string slice", value: []string{}, expected: true},
		{name: "empty object", value: map[string]any{}, expected: true},
		{name: "non-empty object", value: map[string]any{"k": "v"}, expected: false},
		{name: "zero number is not empty", value: float64(0), expected: false},
		{name: "false is not empty", value: false, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsEmpty(tt.value))
		})
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name     string
		a        any
		b        any
		expected bool
	}{
		{name: "identical strings", a: "hello", b: "hello", expected: true},
		{name: "case insensitive", a: "Jean Dupont", b: "jean dupont", expected: true},
		{name: "trimmed", a: "  jean  ", b: "jean", expected: true},
		{name: "different strings", a: "jean", b: "marie", expected: false},
		{name: "both nil", a: nil, b: nil, expected: true},
		{name: "nil vs value", a: nil, b: "x", expected: false},
		{name: "int vs float", a: 42, b: float64(42), expected: true},
		{name: "different numbers", a: 42, b: float64(43), expected: false},
		{name: "string is not number", a: "42", b: float64(42), expected: false},
		{name: "arrays in order", a: []any{"a", "B"}, b: []string{"A", "b"}, expected: true},
		{name: "arrays of different length", a: []any{"a"}, b: []any{"a", "b"}, expected: false},
		{name: "arrays out of order", a: []any{"a", "b"}, b: []any{"b", "a"}, expected: false},
		{
			name:     "objects key-wise",
			a:        map[string]any{"first_name": "Anna", "age": 4},
			b:        map[string]any{"age": float64(4), "first_name": "anna"},
			expected: true,
		},
		{
			name:     "objects differing on one key",
			a:        map[string]any{"first_name": "Anna"},
			b:        map[string]any{"first_name": "Lea"},
			expected: false,
		},
		{name: "bools", a: true, b: true, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Equal(tt.a, tt.b))
		})
	}
}

func TestCoerceOverride(t *testing.T) {
	tests := []struct {
		name      string
		raw       any
		reference any
		expected  any
		wantErr   bool
	}{
		{name: "nil passes through", raw: nil, reference: "x", expected: nil},
		{name: "string baseline trims", raw: "  jean ", reference: "old", expected: "jean"},
		{name: "number baseline accepts float", raw: float64(1200), reference: float64(1000), expected: float64(1200)},
		{name: "number baseline parses string", raw: "45000,50", reference: float64(1), expected: float64(45000.50)},
		{name: "number baseline keeps unparsable text", raw: "to be confirmed", reference: float64(1), expected: "to be confirmed"},
		{name: "number baseline trims unparsable text", raw: "  a lot ", reference: float64(1), expected: "a lot"},
		{name: "array baseline accepts slice", raw: []any{"a"}, reference: []any{"b"}, expected: []any{"a"}},
		{name: "array baseline parses JSON text", raw: `["retirement","savings"]`, reference: []any{}, expected: []any{"retirement", "savings"}},
		{name: "array baseline rejects scalar", raw: 12, reference: []any{}, wantErr: true},
		{
			name:      "object baseline parses JSON text",
			raw:       `{"first_name":"Marie"}`,
			reference: map[string]any{},
			expected:  map[string]any{"first_name": "Marie"},
		},
		{name: "bool baseline parses yes", raw: "yes", reference: true, expected: true},
		{name: "bool baseline rejects gibberish", raw: "maybe", reference: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoerceOverride(tt.raw, tt.reference)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
