// Package stream implements the tool-call orchestration state machine that
// turns one inbound chat request into a sequence of server-sent events.
package stream

import "encoding/json"

// Event is one member of the closed set of SSE payloads. The set is sealed:
// every variant lives in this file and carries a "type" discriminator on
// the wire.
type Event interface {
	isEvent()
}

// ToolCallEvent announces that the model requested a capability.
type ToolCallEvent struct {
	Name string
	Args map[string]any
}

func (ToolCallEvent) isEvent() {}

// MarshalJSON emits {"type":"tool_call","name":...,"args":...}.
func (e ToolCallEvent) MarshalJSON() ([]byte, error) {
	args := e.Args
	if args == nil {
		args = map[string]any{}
	}
	return json.Marshal(struct {
		Type string         `json:"type"`
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	}{"tool_call", e.Name, args})
}

// DeltaEvent carries one incremental chunk of generated text.
type DeltaEvent struct {
	Text string
}

func (DeltaEvent) isEvent() {}

// MarshalJSON emits {"type":"delta","text":...}.
func (e DeltaEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{"delta", e.Text})
}

// ErrorEvent reports a recovered fault to the caller.
type ErrorEvent struct {
	Message string
}

func (ErrorEvent) isEvent() {}

// MarshalJSON emits {"type":"error","message":...}.
func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{"error", e.Message})
}

// DoneEvent terminates every stream, regardless of path.
type DoneEvent struct{}

func (DoneEvent) isEvent() {}

// MarshalJSON emits {"type":"done"}.
func (e DoneEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
	}{"done"})
}

// Emitter delivers events to the caller. Implementations flush each event
// immediately; a returned error means the caller is gone and the producer
// should stop.
type Emitter interface {
	// Emit sends one event.
	Emit(e Event) error

	// Comment sends an SSE comment line, used as keepalive padding.
	Comment() error
}
