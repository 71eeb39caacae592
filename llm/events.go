package llm

import (
	"encoding/json"
	"time"
)

// EventType discriminates ChatStreamEvent.
type EventType string

const (
	EventStreamStart   EventType = "stream_start"
	EventContentDelta  EventType = "content_delta"
	EventThinkingDelta EventType = "thinking_delta"
	EventToolCallDelta EventType = "tool_call_delta"
	EventUsageUpdate   EventType = "usage_update"
	EventStreamEnd     EventType = "stream_end"
	EventError         EventType = "error"
	EventCustom        EventType = "custom"
)

// StreamMetadata describes a stream at its start.
type StreamMetadata struct {
	ID        string    `json:"id,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ChatStreamEvent is the canonical event every provider stream is
// normalized into. One struct with a Type discriminator; only the
// fields for that type are set.
//
// Ordering contract: if a stream emits any events, exactly one
// EventStreamStart comes first, and at most one terminal event
// (EventStreamEnd or EventError) comes last.
//
// Tool-call identity is ToolID, never Index: providers are free to
// reuse positional indices across distinct calls.
type ChatStreamEvent struct {
	Type EventType `json:"type"`

	// stream_start
	Metadata *StreamMetadata `json:"metadata,omitempty"`

	// content_delta, thinking_delta, tool_call_delta
	Delta string `json:"delta,omitempty"`
	Index *int   `json:"index,omitempty"`

	// tool_call_delta
	ToolID   string `json:"tool_id,omitempty"`
	ToolName string `json:"tool_name,omitempty"`

	// usage_update
	Usage *Usage `json:"usage,omitempty"`

	// stream_end
	Response *ChatResponse `json:"response,omitempty"`

	// error
	Error string `json:"error,omitempty"`

	// custom
	CustomType string          `json:"custom_type,omitempty"`
	CustomData json.RawMessage `json:"custom_data,omitempty"`
}

// IsTerminal reports whether no further events are expected after this
// one.
func (e ChatStreamEvent) IsTerminal() bool {
	return e.Type == EventStreamEnd || e.Type == EventError
}

// NewStreamStartEvent returns the opening event of a stream.
func NewStreamStartEvent(meta StreamMetadata) ChatStreamEvent {
	return ChatStreamEvent{Type: EventStreamStart, Metadata: &meta}
}

// NewContentDeltaEvent returns a text fragment event. index may be nil
// for providers that do not report positions.
func NewContentDeltaEvent(delta string, index *int) ChatStreamEvent {
	return ChatStreamEvent{Type: EventContentDelta, Delta: delta, Index: index}
}

// NewThinkingDeltaEvent returns a reasoning-trace fragment event.
func NewThinkingDeltaEvent(delta string) ChatStreamEvent {
	return ChatStreamEvent{Type: EventThinkingDelta, Delta: delta}
}

// NewToolCallDeltaEvent returns one fragment of a tool call. A call is
// typically split across many deltas; the first usually carries the
// name and later ones extend the argument string.
func NewToolCallDeltaEvent(id, name, argsDelta string, index *int) ChatStreamEvent {
	return ChatStreamEvent{
		Type:     EventToolCallDelta,
		ToolID:   id,
		ToolName: name,
		Delta:    argsDelta,
		Index:    index,
	}
}

// NewUsageUpdateEvent returns a mergeable usage counter event.
func NewUsageUpdateEvent(usage Usage) ChatStreamEvent {
	return ChatStreamEvent{Type: EventUsageUpdate, Usage: &usage}
}

// NewStreamEndEvent returns the terminal event carrying the final
// response.
func NewStreamEndEvent(response ChatResponse) ChatStreamEvent {
	return ChatStreamEvent{Type: EventStreamEnd, Response: &response}
}

// NewErrorEvent returns a stream error event.
func NewErrorEvent(message string) ChatStreamEvent {
	return ChatStreamEvent{Type: EventError, Error: message}
}

// NewCustomEvent returns a provider-specific passthrough event.
func NewCustomEvent(eventType string, data json.RawMessage) ChatStreamEvent {
	return ChatStreamEvent{Type: EventCustom, CustomType: eventType, CustomData: data}
}
