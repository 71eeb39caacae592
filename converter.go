package llmcore

import (
	"context"
	"encoding/json"

	"github.com/xraph/llmcore/llm"
)

// StreamConverter normalizes a provider's raw stream frames into
// canonical events. One converter instance serves exactly one stream
// and may keep state across frames.
type StreamConverter interface {
	// ConvertEvent maps one wire frame to zero or more events.
	ConvertEvent(ctx context.Context, raw []byte) ([]llm.ChatStreamEvent, error)

	// HandleStreamEnd is called once when the transport closes without
	// a terminal frame having been forwarded. It returns the event to
	// terminate the stream with, if any. Converters that buffer a
	// pending completion release it here.
	HandleStreamEnd() (*llm.ChatStreamEvent, bool)

	// FinalizeOnDisconnect reports whether HandleStreamEnd should fire
	// on an abrupt close.
	FinalizeOnDisconnect() bool

	// SerializeEvent renders an event back to wire bytes, for proxy
	// and replay paths.
	SerializeEvent(ev llm.ChatStreamEvent) ([]byte, error)
}

// MarshalEventSSE renders an event as an SSE data frame.
func MarshalEventSSE(ev llm.ChatStreamEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, llm.NewParseError("failed to serialize stream event", err)
	}
	out := make([]byte, 0, len(data)+8)
	out = append(out, "data: "...)
	out = append(out, data...)
	out = append(out, "\n\n"...)
	return out, nil
}

// CanonicalConverter handles streams whose frames already carry the
// canonical event JSON, one event per frame. It is the reference
// implementation of the converter contract and the converter used by
// proxy/replay setups.
//
// Terminal handling: completions are buffered, not forwarded, because
// one connection can carry several response cycles. A new cycle's
// StreamStart replaces any pending completion, so only the last cycle's
// completion terminates the stream (released by HandleStreamEnd).
type CanonicalConverter struct {
	pendingEnd *llm.ChatStreamEvent
	sawStart   bool
	sawDelta   bool
}

// NewCanonicalConverter returns a converter for canonical-event frames.
func NewCanonicalConverter() *CanonicalConverter {
	return &CanonicalConverter{}
}

func (c *CanonicalConverter) ConvertEvent(_ context.Context, raw []byte) ([]llm.ChatStreamEvent, error) {
	var ev llm.ChatStreamEvent
	if err := parseJSONWithRepair(raw, &ev); err != nil {
		return nil, llm.NewParseError("malformed stream frame", err)
	}
	switch ev.Type {
	case llm.EventStreamStart:
		if c.sawStart {
			// A later cycle on the same connection: drop the duplicate
			// start and forget the previous cycle's completion.
			c.pendingEnd = nil
			return nil, nil
		}
		c.sawStart = true
		return []llm.ChatStreamEvent{ev}, nil
	case llm.EventStreamEnd:
		c.pendingEnd = &ev
		return nil, nil
	case llm.EventContentDelta, llm.EventThinkingDelta, llm.EventToolCallDelta:
		c.sawDelta = true
		return []llm.ChatStreamEvent{ev}, nil
	default:
		return []llm.ChatStreamEvent{ev}, nil
	}
}

func (c *CanonicalConverter) HandleStreamEnd() (*llm.ChatStreamEvent, bool) {
	if c.pendingEnd != nil {
		ev := *c.pendingEnd
		c.pendingEnd = nil
		return &ev, true
	}
	if c.sawDelta {
		// Severed mid-response: never fabricate a clean stop.
		ev := llm.NewStreamEndEvent(llm.ChatResponse{FinishReason: llm.FinishReasonUnknown})
		return &ev, true
	}
	return nil, false
}

func (c *CanonicalConverter) FinalizeOnDisconnect() bool { return true }

func (c *CanonicalConverter) SerializeEvent(ev llm.ChatStreamEvent) ([]byte, error) {
	return MarshalEventSSE(ev)
}
