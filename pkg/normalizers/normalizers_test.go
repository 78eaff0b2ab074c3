package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "spaces stripped", input: "06 12 34 56 78", expected: "0612345678"},
		{name: "leading plus kept", input: "+33 6 12 34 56 78", expected: "+33612345678"},
		{name: "punctuation stripped", input: "06.12.34.56.78", expected: "0612345678"},
		{name: "plus only kept at start", input: "06+12", expected: "0612"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePhone(tt.input))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "jean pierre", NormalizeName("  jean   pierre "))
	assert.Equal(t, "", NormalizeName("   "))
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "69003", DigitsOnly("69 003"))
	assert.Equal(t, "", DigitsOnly("abc"))
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "mr", ApplyChain("  Mr ", "trim", "lowercase"))
	// unknown normalizers pass the value through
	assert.Equal(t, "x", ApplyChain("x", "nonexistent"))
}
