// Package values implements comparison and coercion over untyped snapshot
// values. Snapshots travel as decoded JSON, so everything here works on the
// any/map/slice shapes encoding/json produces.
package values

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// IsEmpty reports whether a value carries no information: nil, a blank
// string, or an empty array or object.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case []map[string]any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

// Equal compares two snapshot values. Strings compare trimmed and
// case-insensitively, numbers compare as float64, arrays compare
// element-wise in order, objects compare key-wise.
func Equal(a, b any) bool {
	return equalCanonical(Canonical(a), Canonical(b))
}

func equalCanonical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equalCanonical(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !equalCanonical(v, bvv) {
				return false
			}
		}
		return true
	default:
		return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
	}
}

// Canonical converts a value to the comparable form Equal works on:
// trimmed lowercase strings, float64 numbers, []any arrays and
// map[string]any objects.
func Canonical(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return strings.ToLower(strings.TrimSpace(val))
	case bool:
		return val
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return string(val)
		}
		return f
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = Canonical(s)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, m := range val {
			out[i] = Canonical(m)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = Canonical(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = Canonical(e)
		}
		return out
	default:
		return v
	}
}

// CoerceOverride converts a reviewer-supplied override into the shape of the
// reference value it replaces. Overrides arrive from form inputs, so array
// and object baselines accept JSON text, numeric baselines accept numeric
// strings, and boolean baselines accept the usual truthy spellings.
// Unparsable text over a numeric baseline is kept as the raw string; only
// array and object baselines reject malformed input.
func CoerceOverride(raw any, reference any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	switch reference.(type) {
	case []any, []string, []map[string]any:
		return coerceArray(raw)
	case map[string]any:
		return coerceObject(raw)
	case float64, float32, int, int32, int64, json.Number:
		return coerceNumber(raw)
	case bool:
		return coerceBool(raw)
	default:
		// string or untyped baseline: pass strings through, stringify scalars
		switch rv := raw.(type) {
		case string:
			return strings.TrimSpace(rv), nil
		case float64, bool:
			return rv, nil
		default:
			return nil, fmt.Errorf("override must be a scalar, got %T", raw)
		}
	}
}

func coerceArray(raw any) (any, error) {
	switch rv := raw.(type) {
	case []any:
		return rv, nil
	case []string:
		out := make([]any, len(rv))
		for i, s := range rv {
			out[i] = s
		}
		return out, nil
	case string:
		var out []any
		if err := json.Unmarshal([]byte(rv), &out); err != nil {
			return nil, fmt.Errorf("override is not a valid JSON array: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("override must be an array, got %T", raw)
	}
}

func coerceObject(raw any) (any, error) {
	switch rv := raw.(type) {
	case map[string]any:
		return rv, nil
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(rv), &out); err != nil {
			return nil, fmt.Errorf("override is not a valid JSON object: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("override must be an object, got %T", raw)
	}
}

func coerceNumber(raw any) (any, error) {
	switch rv := raw.(type) {
	case float64:
		return rv, nil
	case float32:
		return float64(rv), nil
	case int:
		return float64(rv), nil
	case int64:
		return float64(rv), nil
	case json.Number:
		f, err := rv.Float64()
		if err != nil {
			return nil, fmt.Errorf("override is not numeric: %w", err)
		}
		return f, nil
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(rv, ",", "."))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// free text over a numeric field stays text
			return strings.TrimSpace(rv), nil
		}
		return f, nil
	default:
		return nil, fmt.Errorf("override must be numeric, got %T", raw)
	}
}

func coerceBool(raw any) (any, error) {
	switch rv := raw.(type) {
	case bool:
		return rv, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(rv)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return nil, fmt.Errorf("override %q is not a boolean", rv)
	case float64:
		return rv != 0, nil
	default:
		return nil, fmt.Errorf("override must be a boolean, got %T", raw)
	}
}
