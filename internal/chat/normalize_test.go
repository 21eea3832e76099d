package chat

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"deskmate/internal/types"
)

func decodeJSON(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return v
}

func TestNormalizeOpenAIContent(t *testing.T) {
	n := NewNormalizer(nil)
	raw := decodeJSON(t, `{
		"choices": [{"message": {"role": "assistant", "content": "hi there"}}]
	}`)
	resp := n.Normalize(raw)
	if resp.Text != "hi there" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Status != types.StatusOK {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestNormalizeToolCalls(t *testing.T) {
	n := NewNormalizer(nil)
	raw := decodeJSON(t, `{
		"choices": [{"message": {
			"content": "waving now",
			"tool_calls": [{"function": {"name": "motion", "arguments": "{\"group\": \"tap_body\"}"}}]
		}}]
	}`)
	resp := n.Normalize(raw)
	if resp.Text != "waving now" {
		t.Errorf("text = %q", resp.Text)
	}
	want := []types.Directive{{
		Kind:    "motion",
		Payload: map[string]interface{}{"group": "tap_body"},
	}}
	if diff := cmp.Diff(want, resp.Directives); diff != "" {
		t.Errorf("directives mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeToolCallBadArgumentsWrapped(t *testing.T) {
	n := NewNormalizer(nil)
	raw := decodeJSON(t, `{
		"choices": [{"message": {
			"content": "x",
			"tool_calls": [{"function": {"name": "motion", "arguments": "not json"}}]
		}}]
	}`)
	resp := n.Normalize(raw)
	if len(resp.Directives) != 1 {
		t.Fatalf("directives = %v", resp.Directives)
	}
	if resp.Directives[0].Payload["raw"] != "not json" {
		t.Errorf("payload = %v, want raw sentinel", resp.Directives[0].Payload)
	}
}

func TestNormalizeTopLevelReply(t *testing.T) {
	n := NewNormalizer(nil)
	raw := decodeJSON(t, `{"reply": "flat dialect"}`)
	if got := n.Normalize(raw).Text; got != "flat dialect" {
		t.Errorf("text = %q", got)
	}
}

func TestNormalizeCommandsArray(t *testing.T) {
	n := NewNormalizer(nil)
	raw := decodeJSON(t, `{
		"reply": "ok",
		"commands": [{"type": "scale", "value": 1.2, "payload": {"nested": true}}]
	}`)
	resp := n.Normalize(raw)
	if len(resp.Directives) != 1 {
		t.Fatalf("directives = %v", resp.Directives)
	}
	d := resp.Directives[0]
	if d.Kind != "scale" {
		t.Errorf("kind = %q", d.Kind)
	}
	if d.Payload["value"] != 1.2 {
		t.Errorf("value = %v", d.Payload["value"])
	}
	// A literal payload field in a command is data, not an envelope.
	if _, ok := d.Payload["payload"].(map[string]interface{}); !ok {
		t.Errorf("nested payload key lost: %v", d.Payload)
	}
}

func TestNormalizeJSONInContent(t *testing.T) {
	n := NewNormalizer(nil)
	raw := decodeJSON(t, `{
		"choices": [{"message": {"content": "{\"reply\": \"inner text\", \"commands\": [{\"type\": \"move\", \"dx\": 1, \"dy\": 2}]}"}}]
	}`)
	resp := n.Normalize(raw)
	if resp.Text != "inner text" {
		t.Errorf("text = %q", resp.Text)
	}
	if len(resp.Directives) != 1 || resp.Directives[0].Kind != "move" {
		t.Errorf("directives = %v", resp.Directives)
	}
}

func TestNormalizeJSONInContentCommandsOnly(t *testing.T) {
	n := NewNormalizer(nil)
	raw := decodeJSON(t, `{
		"choices": [{"message": {"content": "{\"commands\": [{\"type\": \"motion\", \"group\": \"Idle\"}]}"}}]
	}`)
	resp := n.Normalize(raw)
	if len(resp.Directives) != 1 || resp.Directives[0].Kind != "motion" {
		t.Fatalf("directives = %v, want one motion", resp.Directives)
	}
	// The inner document had no reply, so the raw JSON must not leak.
	if resp.Text != placeholderAck {
		t.Errorf("text = %q, want ack placeholder", resp.Text)
	}
}

func TestNormalizeToolCallsSuppressNestedCommands(t *testing.T) {
	n := NewNormalizer(nil)
	raw := decodeJSON(t, `{
		"choices": [{"message": {
			"content": "{\"reply\": \"done\", \"commands\": [{\"type\": \"scale\", \"value\": 2}]}",
			"tool_calls": [{"function": {"name": "motion", "arguments": "{}"}}]
		}}]
	}`)
	resp := n.Normalize(raw)
	if resp.Text != "done" {
		t.Errorf("text = %q", resp.Text)
	}
	if len(resp.Directives) != 1 || resp.Directives[0].Kind != "motion" {
		t.Errorf("directives = %v, want the tool call only", resp.Directives)
	}
}

func TestNormalizeDoubleEncodedString(t *testing.T) {
	n := NewNormalizer(nil)
	resp := n.Normalize(`{"reply": "unwrapped"}`)
	if resp.Text != "unwrapped" {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestNormalizeListPayload(t *testing.T) {
	n := NewNormalizer(nil)
	resp := n.Normalize([]interface{}{"first", "second"})
	if resp.Text != "first" {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestNormalizePlaceholdersDistinct(t *testing.T) {
	n := NewNormalizer(nil)
	empty := n.Normalize("")
	withDirective := n.Normalize(`{"commands": [{"type": "motion", "group": "idle"}]}`)
	if empty.Text == "" || withDirective.Text == "" {
		t.Fatal("placeholders must be non-empty")
	}
	if empty.Text == withDirective.Text {
		t.Errorf("placeholders must differ: both %q", empty.Text)
	}
	if len(withDirective.Directives) != 1 {
		t.Errorf("directives = %v", withDirective.Directives)
	}
}

func TestNormalizeNativeBeforeScanned(t *testing.T) {
	n := NewNormalizer(nil)
	raw := decodeJSON(t, `{
		"choices": [{"message": {
			"content": "text {\"type\": \"scanned\"}",
			"tool_calls": [{"function": {"name": "native", "arguments": "{}"}}]
		}}]
	}`)
	resp := n.Normalize(raw)
	if len(resp.Directives) != 2 {
		t.Fatalf("directives = %v", resp.Directives)
	}
	if resp.Directives[0].Kind != "native" || resp.Directives[1].Kind != "scanned" {
		t.Errorf("order wrong: %v", resp.Directives)
	}
}

func TestNormalizeMergedInlineScan(t *testing.T) {
	n := NewNormalizer(nil)
	raw := decodeJSON(t, `{"reply": "hello {\"type\": \"motion\", \"group\": \"tap\"} world"}`)
	resp := n.Normalize(raw)
	if resp.Text != "hello  world" {
		t.Errorf("text = %q", resp.Text)
	}
	if len(resp.Directives) != 1 || resp.Directives[0].Kind != "motion" {
		t.Errorf("directives = %v", resp.Directives)
	}
}
