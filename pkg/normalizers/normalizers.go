// Package normalizers provides string normalization functions for snapshot
// cleanup before diffing.
package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("nemail", NormalizeEmail)
	Register("nphone", NormalizePhone)
	Register("nname", NormalizeName)
	Register("digits_only", DigitsOnly)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone strips formatting from a phone number, keeping digits and a
// leading plus.
func NormalizePhone(s string) string {
	var result strings.Builder
	for i, r := range s {
		if unicode.IsDigit(r) || (i == 0 && r == '+') {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// DigitsOnly removes all non-digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeName trims and collapses internal whitespace in a name
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
