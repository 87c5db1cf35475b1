package engine

import (
	"encoding/json"
	"strings"
)

// lookupField walks a dotted path through nested payload maps.
// It returns (nil, false) when any path segment is absent or when an
// intermediate value is not a map.
func lookupField(payload map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")

	var current any = payload
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// numericValue coerces payload values decoded from JSON into float64.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// stringValue coerces payload values into strings for code matching.
func stringValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	default:
		return "", false
	}
}

// emptyValue reports whether a present payload value should still be
// treated as missing: nil, empty string, or empty collection.
func emptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
