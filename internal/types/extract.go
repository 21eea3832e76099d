package types

import (
	"encoding/json"
	"strconv"
)

// =============================================================================
// PAYLOAD FIELD EXTRACTION UTILITIES
// =============================================================================
//
// Directive payloads arrive as decoded JSON (map[string]interface{}) from
// sources we don't control: provider tool calls, inline fragments, preset
// files. These helpers replace bare type assertions that panic on mismatch.
// Each accepts a list of alias keys and returns the first extractable value,
// because the same semantic field travels under several names across
// provider dialects (e.g. a motion identifier under "motion", "name" or
// "value").
//
// Payload values can be any of these Go types after JSON decoding:
//   - string
//   - float64      (all JSON numbers via encoding/json)
//   - json.Number  (when a decoder uses UseNumber)
//   - bool
//   - int / int64 / float32 (manual construction in tests and presets)

// PayloadString returns the first alias key holding a non-empty string.
func PayloadString(p map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		v, ok := p[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// PayloadFloat returns the first alias key convertible to float64.
// Numeric strings are accepted because providers frequently quote numbers.
func PayloadFloat(p map[string]interface{}, keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := p[key]
		if !ok {
			continue
		}
		if f, ok := AsFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// PayloadInt returns the first alias key convertible to int.
func PayloadInt(p map[string]interface{}, keys ...string) (int, bool) {
	for _, key := range keys {
		v, ok := p[key]
		if !ok {
			continue
		}
		if f, ok := AsFloat(v); ok {
			return int(f), true
		}
	}
	return 0, false
}

// PayloadBool returns the first alias key holding a boolean.
func PayloadBool(p map[string]interface{}, keys ...string) (bool, bool) {
	for _, key := range keys {
		v, ok := p[key]
		if !ok {
			continue
		}
		if b, ok := v.(bool); ok {
			return b, true
		}
	}
	return false, false
}

// PayloadMap returns the first alias key holding a nested mapping.
func PayloadMap(p map[string]interface{}, keys ...string) (map[string]interface{}, bool) {
	for _, key := range keys {
		v, ok := p[key]
		if !ok {
			continue
		}
		if m, ok := v.(map[string]interface{}); ok {
			return m, true
		}
	}
	return nil, false
}

// AsFloat converts a single decoded JSON value to float64.
func AsFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// NumericMap filters a decoded mapping down to its numeric entries.
// Non-numeric values (descriptions, labels) are dropped, matching how
// expression preset definitions mix parameters with documentation. String
// values are NOT coerced here: a preset's "description" must never become
// a parameter.
func NumericMap(m map[string]interface{}) map[string]float64 {
	out := make(map[string]float64, len(m))
	for key, v := range m {
		switch n := v.(type) {
		case float64:
			out[key] = n
		case float32:
			out[key] = float64(n)
		case int:
			out[key] = float64(n)
		case int64:
			out[key] = float64(n)
		case json.Number:
			if f, err := n.Float64(); err == nil {
				out[key] = f
			}
		}
	}
	return out
}
