package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"deskmate/internal/types"
)

// Placeholder replies substituted when normalization yields no visible text.
// The two cases are distinct on purpose: a reply that carried directives was
// not empty from the model's point of view.
const (
	placeholderAck   = "(action acknowledged)"
	placeholderEmpty = "(no content returned)"
)

// Normalizer converts raw backend payloads of several known wire dialects
// into a single StructuredResponse. It never fails: undecodable or
// unexpected shapes degrade to plain text.
type Normalizer struct {
	log *zap.Logger
}

func NewNormalizer(log *zap.Logger) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{log: log.Named("normalize")}
}

// Normalize produces a StructuredResponse from a raw payload. Status is
// always ok here; the transport layer overrides it for offline and error
// outcomes.
func (n *Normalizer) Normalize(raw interface{}) types.StructuredResponse {
	text, native := n.resolve(raw)

	cleaned, scanned := Scan(text)
	directives := append(native, scanned...)

	if cleaned == "" {
		if len(directives) > 0 {
			cleaned = placeholderAck
		} else {
			cleaned = placeholderEmpty
		}
	}

	return types.StructuredResponse{
		Text:       cleaned,
		Directives: directives,
		Status:     types.StatusOK,
		Raw:        raw,
	}
}

// resolve extracts the reply text and any provider-native directives from
// the raw payload, before inline scanning.
func (n *Normalizer) resolve(raw interface{}) (string, []types.Directive) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		// Some providers double-encode the whole body.
		if strings.HasPrefix(strings.TrimSpace(v), "{") {
			var decoded interface{}
			if err := json.Unmarshal([]byte(v), &decoded); err == nil {
				return n.resolve(decoded)
			}
		}
		return v, nil
	case map[string]interface{}:
		return n.resolveMap(v)
	case []interface{}:
		if len(v) == 0 {
			return "", nil
		}
		return stringify(v[0]), nil
	default:
		return stringify(v), nil
	}
}

func (n *Normalizer) resolveMap(m map[string]interface{}) (string, []types.Directive) {
	var (
		text       string
		directives []types.Directive
	)

	// OpenAI-compatible envelope: choices[0].message.{content,tool_calls}.
	if msg := firstChoiceMessage(m); msg != nil {
		if content, ok := msg["content"].(string); ok && content != "" {
			text = content
		}
		directives = append(directives, n.toolCallDirectives(msg)...)
	}

	// Flat dialects put the reply at the top level.
	if text == "" {
		if s, ok := types.PayloadString(m, "reply", "content", "message"); ok {
			text = s
		}
	}

	// Explicit commands array, top-level.
	if len(directives) == 0 {
		if cmds, ok := m["commands"].([]interface{}); ok {
			directives = append(directives, commandDirectives(cmds)...)
		}
	}

	// JSON-in-string content: the reply itself is another JSON document.
	// The inner reply replaces the text even when it is empty, so raw JSON
	// never leaks into the visible reply, and its commands are extracted
	// when nothing above produced directives yet.
	if strings.HasPrefix(strings.TrimSpace(text), "{") {
		var inner map[string]interface{}
		if err := json.Unmarshal([]byte(text), &inner); err == nil {
			s, _ := types.PayloadString(inner, "reply", "content", "text")
			text = s
			if len(directives) == 0 {
				if cmds, ok := inner["commands"].([]interface{}); ok {
					directives = append(directives, commandDirectives(cmds)...)
				}
			}
		}
	}

	return text, directives
}

// firstChoiceMessage digs out choices[0].message if the payload has the
// OpenAI completion shape.
func firstChoiceMessage(m map[string]interface{}) map[string]interface{} {
	choices, ok := m["choices"].([]interface{})
	if !ok || len(choices) == 0 {
		return nil
	}
	choice, ok := choices[0].(map[string]interface{})
	if !ok {
		return nil
	}
	msg, ok := choice["message"].(map[string]interface{})
	if !ok {
		return nil
	}
	return msg
}

// toolCallDirectives converts provider tool calls into directives. The
// function name becomes the kind; string arguments are decoded as JSON,
// falling back to a sentinel wrapper so nothing is lost.
func (n *Normalizer) toolCallDirectives(msg map[string]interface{}) []types.Directive {
	calls, ok := msg["tool_calls"].([]interface{})
	if !ok {
		return nil
	}
	var out []types.Directive
	for _, item := range calls {
		call, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		fn, ok := call["function"].(map[string]interface{})
		if !ok {
			continue
		}
		kind, ok := fn["name"].(string)
		if !ok || kind == "" {
			continue
		}
		payload := map[string]interface{}{}
		switch args := fn["arguments"].(type) {
		case string:
			if err := json.Unmarshal([]byte(args), &payload); err != nil {
				n.log.Debug("tool call arguments not JSON, wrapping raw",
					zap.String("kind", kind))
				payload = map[string]interface{}{"raw": args}
			}
		case map[string]interface{}:
			payload = args
		}
		out = append(out, types.Directive{Kind: kind, Payload: payload})
	}
	return out
}

// commandDirectives converts a commands array. Every field except "type"
// becomes payload, including any literal "payload" key, which stays nested.
func commandDirectives(cmds []interface{}) []types.Directive {
	var out []types.Directive
	for _, item := range cmds {
		cmd, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		kind, ok := cmd["type"].(string)
		if !ok || kind == "" {
			continue
		}
		payload := make(map[string]interface{}, len(cmd))
		for k, v := range cmd {
			if k == "type" {
				continue
			}
			payload[k] = v
		}
		out = append(out, types.Directive{Kind: kind, Payload: payload})
	}
	return out
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}
