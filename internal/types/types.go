// Package types defines the shared vocabulary of the directive engine:
// conversation turns, directives extracted from backend replies, and the
// structured response produced for every backend call. It carries no
// behavior beyond defensive payload field extraction (extract.go).
package types

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Response status values. Status is assigned by the transport layer, never
// by the normalizer.
const (
	StatusOK      = "ok"
	StatusOffline = "offline"
	StatusError   = "error"
)

// ConversationTurn is a single turn of chat history. Turns are immutable
// once created; history is append-only and only ever cleared wholesale.
type ConversationTurn struct {
	Role    string
	Content string
}

// Directive is a structured instruction embedded in or alongside a reply:
// play a motion, set an expression, move the model. Kind is free-form; the
// avatar layer recognizes a closed set and ignores the rest. Payload stays
// an open string-keyed map so unrecognized fields survive round trips.
type Directive struct {
	Kind    string
	Payload map[string]interface{}
}

// StructuredResponse is the outcome of one backend call: the human-readable
// reply text with every directive span stripped out, plus the directives in
// extraction order. Created once per call and consumed within the same
// dispatch cycle.
type StructuredResponse struct {
	Text       string
	Directives []Directive
	Status     string
	Err        string
	Raw        interface{}
}

// IsError reports whether the call failed at the transport level.
func (r StructuredResponse) IsError() bool {
	return r.Status == StatusError
}

// MotionRef locates a motion inside the loaded asset set.
type MotionRef struct {
	Group string
	Index int
}

// ParameterTarget is a transient parameter write; it has no persistent
// identity and is applied once per call.
type ParameterTarget struct {
	ID    string
	Value float64
}
