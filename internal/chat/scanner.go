package chat

import (
	"encoding/json"
	"strings"

	"deskmate/internal/types"
)

// =============================================================================
// INLINE DIRECTIVE SCANNER
// =============================================================================
//
// Models routinely emit control fragments inline with prose:
//
//   Sure, I'll wave! {"type": "motion", "payload": {"group": "tap_body"}}
//
// Scan walks the text left to right. At every '{' or '[' it attempts a
// balanced JSON decode. Fragments that classify as directives are extracted
// and their span removed from the text; well-formed JSON that is NOT a
// directive (a user pasting a config snippet, say) stays in the text
// untouched. Malformed candidates are skipped by advancing one rune.
//
// Scan is pure: same input, same output, no logging, no state.

// Scan extracts inline directives from text, returning the cleaned prose
// and the directives in order of appearance. Text with no directives is
// returned unchanged, so cleaning is idempotent.
func Scan(text string) (string, []types.Directive) {
	var (
		directives []types.Directive
		out        strings.Builder
		idx        int
	)
	for idx < len(text) {
		ch := text[idx]
		if ch != '{' && ch != '[' {
			out.WriteByte(ch)
			idx++
			continue
		}
		value, consumed, ok := decodeAt(text[idx:])
		if !ok {
			out.WriteByte(ch)
			idx++
			continue
		}
		found := classifyValue(value)
		if len(found) == 0 {
			// Valid JSON but not a directive. Keep the span verbatim and
			// skip past it so nested braces aren't re-scanned.
			out.WriteString(text[idx : idx+consumed])
			idx += consumed
			continue
		}
		directives = append(directives, found...)
		idx += consumed
	}
	cleaned := strings.TrimSpace(out.String())
	return cleaned, directives
}

// decodeAt decodes one JSON value at the start of s and reports how many
// bytes it consumed.
func decodeAt(s string) (interface{}, int, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, 0, false
	}
	return value, int(dec.InputOffset()), true
}

// classifyValue turns a decoded JSON value into zero or more directives.
// Non-directive values yield an empty slice.
func classifyValue(value interface{}) []types.Directive {
	switch v := value.(type) {
	case map[string]interface{}:
		if d, ok := classifyMap(v); ok {
			return []types.Directive{d}
		}
		return nil
	case []interface{}:
		var all []types.Directive
		for _, item := range v {
			all = append(all, classifyValue(item)...)
		}
		return all
	default:
		return nil
	}
}

// classifyMap decides whether a single JSON object is a directive.
//
// Three shapes qualify:
//   - {"type": T, "payload": {...}}          canonical envelope
//   - {"type": T, ...residual fields...}     flat envelope
//   - {"expression": E} or {"name": N}       shorthand, becomes an
//     expression directive
//
// A {"$schema": {...}} wrapper is unwrapped one level: the value of the
// $schema key is classified first, and when it does not qualify the outer
// object is classified as usual.
func classifyMap(m map[string]interface{}) (types.Directive, bool) {
	if inner, ok := m["$schema"].(map[string]interface{}); ok {
		if d, ok := classifyMap(inner); ok {
			return d, true
		}
	}

	if kind, ok := m["type"].(string); ok && kind != "" {
		if payload, ok := m["payload"].(map[string]interface{}); ok {
			return types.Directive{Kind: kind, Payload: payload}, true
		}
		payload := make(map[string]interface{}, len(m))
		for k, v := range m {
			if k == "type" || k == "payload" {
				continue
			}
			payload[k] = v
		}
		return types.Directive{Kind: kind, Payload: payload}, true
	}

	// Expression shorthand: an object whose only meaningful field is an
	// expression or preset name.
	if expr, ok := m["expression"].(string); ok && expr != "" {
		payload := make(map[string]interface{}, len(m))
		for k, v := range m {
			payload[k] = v
		}
		payload["name"] = expr
		return types.Directive{Kind: "expression", Payload: payload}, true
	}
	if name, ok := m["name"].(string); ok && name != "" && len(m) <= 2 {
		payload := make(map[string]interface{}, len(m))
		for k, v := range m {
			payload[k] = v
		}
		return types.Directive{Kind: "expression", Payload: payload}, true
	}

	return types.Directive{}, false
}
