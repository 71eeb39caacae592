package llmcore

import (
	"fmt"
	"strings"

	logger "github.com/xraph/go-utils/log"
	"github.com/xraph/llmcore/llm"
)

// Buffer names reported to the overflow handler.
const (
	OverflowContentBuffer  = "content_buffer"
	OverflowThinkingBuffer = "thinking_buffer"
	OverflowToolCalls      = "tool_calls"
	OverflowToolArguments  = "tool_arguments"
)

// OverflowHandler is invoked when an accumulating buffer would exceed
// its cap. attemptedSize is the size the buffer would have reached had
// the delta been accepted in full.
type OverflowHandler func(buffer string, attemptedSize int)

// ProcessorOptions bounds the memory of one in-flight stream.
type ProcessorOptions struct {
	// MaxContentBytes caps the content buffer. Default 10 MiB.
	MaxContentBytes int
	// MaxThinkingBytes caps the thinking buffer. Default 5 MiB.
	MaxThinkingBytes int
	// MaxToolCalls caps the number of distinct tool calls. Default 100.
	MaxToolCalls int
	// MaxToolArgumentBytes caps each call's accumulated argument
	// string. Zero means unlimited.
	MaxToolArgumentBytes int

	OnOverflow OverflowHandler
	Logger     logger.Logger
}

// DefaultProcessorOptions returns the default buffer caps.
func DefaultProcessorOptions() ProcessorOptions {
	return ProcessorOptions{
		MaxContentBytes:  10 * 1024 * 1024,
		MaxThinkingBytes: 5 * 1024 * 1024,
		MaxToolCalls:     100,
	}
}

// ProcessedEventType discriminates ProcessedEvent.
type ProcessedEventType string

const (
	ProcessedStreamStart ProcessedEventType = "stream_start"
	ProcessedContent     ProcessedEventType = "content"
	ProcessedThinking    ProcessedEventType = "thinking"
	ProcessedToolCall    ProcessedEventType = "tool_call"
	ProcessedUsage       ProcessedEventType = "usage"
	ProcessedStreamEnd   ProcessedEventType = "stream_end"
	ProcessedError       ProcessedEventType = "error"
	ProcessedCustom      ProcessedEventType = "custom"
)

// ProcessedEvent is the incremental notification a live consumer gets
// for each stream event, with accumulated state attached.
type ProcessedEvent struct {
	Type ProcessedEventType

	Delta       string
	Accumulated string
	Index       *int

	ToolCall *ToolCallState

	Usage    *llm.Usage
	Response *llm.ChatResponse
	Error    string
	Source   llm.ChatStreamEvent
}

// ToolCallState is one tool call's accumulated state.
type ToolCallState struct {
	ID        string
	Name      string
	Arguments string
}

// StreamProcessor folds a canonical event stream into buffered state
// and a final response. One processor serves exactly one stream; it is
// not safe for concurrent use.
type StreamProcessor struct {
	opts ProcessorOptions

	content  strings.Builder
	thinking strings.Builder

	toolCalls map[string]*ToolCallState
	toolOrder []string
	lastTool  string
	tempSeq   int

	usage    llm.Usage
	sawUsage bool

	metadata    *llm.StreamMetadata
	endResponse *llm.ChatResponse
}

// NewStreamProcessor returns a processor with the given options; zero
// caps fall back to the defaults.
func NewStreamProcessor(opts ProcessorOptions) *StreamProcessor {
	def := DefaultProcessorOptions()
	if opts.MaxContentBytes <= 0 {
		opts.MaxContentBytes = def.MaxContentBytes
	}
	if opts.MaxThinkingBytes <= 0 {
		opts.MaxThinkingBytes = def.MaxThinkingBytes
	}
	if opts.MaxToolCalls <= 0 {
		opts.MaxToolCalls = def.MaxToolCalls
	}
	return &StreamProcessor{
		opts:      opts,
		toolCalls: make(map[string]*ToolCallState),
	}
}

// ProcessEvent folds one event into the processor state and returns the
// incremental notification for it.
func (p *StreamProcessor) ProcessEvent(ev llm.ChatStreamEvent) ProcessedEvent {
	out := ProcessedEvent{Source: ev, Index: ev.Index}
	switch ev.Type {
	case llm.EventStreamStart:
		p.metadata = ev.Metadata
		out.Type = ProcessedStreamStart

	case llm.EventContentDelta:
		accepted := p.appendCapped(&p.content, ev.Delta, p.opts.MaxContentBytes, OverflowContentBuffer)
		out.Type = ProcessedContent
		out.Delta = accepted
		out.Accumulated = p.content.String()

	case llm.EventThinkingDelta:
		accepted := p.appendCapped(&p.thinking, ev.Delta, p.opts.MaxThinkingBytes, OverflowThinkingBuffer)
		out.Type = ProcessedThinking
		out.Delta = accepted
		out.Accumulated = p.thinking.String()

	case llm.EventToolCallDelta:
		out.Type = ProcessedToolCall
		out.ToolCall = p.applyToolDelta(ev)

	case llm.EventUsageUpdate:
		p.usage.Merge(ev.Usage)
		p.sawUsage = true
		merged := p.usage
		out.Type = ProcessedUsage
		out.Usage = &merged

	case llm.EventStreamEnd:
		p.endResponse = ev.Response
		final := p.FinalResponse()
		out.Type = ProcessedStreamEnd
		out.Response = &final

	case llm.EventError:
		out.Type = ProcessedError
		out.Error = ev.Error

	default:
		out.Type = ProcessedCustom
	}
	return out
}

// appendCapped appends delta truncated to the buffer's remaining
// capacity. Already-buffered data is never dropped.
func (p *StreamProcessor) appendCapped(buf *strings.Builder, delta string, limit int, name string) string {
	remaining := limit - buf.Len()
	if len(delta) <= remaining {
		buf.WriteString(delta)
		return delta
	}
	p.overflow(name, buf.Len()+len(delta))
	if remaining > 0 {
		delta = delta[:remaining]
		buf.WriteString(delta)
		return delta
	}
	return ""
}

func (p *StreamProcessor) applyToolDelta(ev llm.ChatStreamEvent) *ToolCallState {
	id := ev.ToolID
	if id == "" {
		// Providers sometimes omit the id on continuation deltas; they
		// belong to the most recent call.
		if p.lastTool != "" {
			id = p.lastTool
		} else {
			p.tempSeq++
			id = fmt.Sprintf("tool_call_%d", p.tempSeq)
		}
	}

	state, ok := p.toolCalls[id]
	if !ok {
		if len(p.toolOrder) >= p.opts.MaxToolCalls {
			// Over the cap: the call is acknowledged but nothing is
			// accumulated for it, so the rest of the stream survives.
			p.overflow(OverflowToolCalls, len(p.toolOrder)+1)
			return &ToolCallState{ID: id}
		}
		state = &ToolCallState{ID: id}
		p.toolCalls[id] = state
		p.toolOrder = append(p.toolOrder, id)
	}
	p.lastTool = id

	if ev.ToolName != "" {
		state.Name = ev.ToolName
	}
	if ev.Delta != "" {
		if limit := p.opts.MaxToolArgumentBytes; limit > 0 {
			remaining := limit - len(state.Arguments)
			if len(ev.Delta) > remaining {
				p.overflow(OverflowToolArguments, len(state.Arguments)+len(ev.Delta))
				if remaining <= 0 {
					snapshot := *state
					return &snapshot
				}
				ev.Delta = ev.Delta[:remaining]
			}
		}
		state.Arguments += ev.Delta
	}
	snapshot := *state
	return &snapshot
}

func (p *StreamProcessor) overflow(name string, attempted int) {
	if p.opts.Logger != nil {
		p.opts.Logger.Warn("stream buffer overflow",
			logger.String("buffer", name),
			logger.Int("attempted_size", attempted),
		)
	}
	if p.opts.OnOverflow != nil {
		p.opts.OnOverflow(name, attempted)
	}
}

// Usage returns the running merged usage total, or nil if no usage
// updates arrived.
func (p *StreamProcessor) Usage() *llm.Usage {
	if !p.sawUsage {
		return nil
	}
	u := p.usage
	return &u
}

// FinalResponse assembles the final response from the accumulated
// state. A single text part stays plain text; otherwise the content is
// multi-part, ordered text, then tool calls in first-seen order, then
// reasoning. Consumers may rely on that order.
func (p *StreamProcessor) FinalResponse() llm.ChatResponse {
	var resp llm.ChatResponse
	if p.endResponse != nil {
		resp = *p.endResponse
	}
	if p.metadata != nil {
		if resp.ID == "" {
			resp.ID = p.metadata.ID
		}
		if resp.Model == "" {
			resp.Model = p.metadata.Model
		}
		if resp.Provider == "" {
			resp.Provider = p.metadata.Provider
		}
	}
	if resp.FinishReason == "" {
		resp.FinishReason = llm.FinishReasonUnknown
	}

	toolCalls := make([]llm.ToolCall, 0, len(p.toolOrder))
	for _, id := range p.toolOrder {
		state := p.toolCalls[id]
		toolCalls = append(toolCalls, llm.ToolCall{
			ID:   state.ID,
			Type: "function",
			Function: &llm.FunctionCall{
				Name:      state.Name,
				Arguments: state.Arguments,
			},
		})
	}

	content := p.content.String()
	thinking := p.thinking.String()
	if content == "" && thinking == "" && len(toolCalls) == 0 {
		// No deltas accumulated; the end response already carries the
		// final content and any embedded tool calls.
		if u := p.Usage(); u != nil {
			resp.Usage = u
		}
		return resp
	}
	if len(toolCalls) == 0 {
		toolCalls = append(toolCalls, resp.ToolCalls...)
	}
	if content == "" {
		content = resp.Content
	}
	if len(toolCalls) == 0 && thinking == "" {
		resp.Content = content
		resp.Parts = nil
	} else {
		var parts []llm.ContentPart
		if content != "" {
			parts = append(parts, llm.TextPart(content))
		}
		for _, call := range toolCalls {
			parts = append(parts, llm.ToolCallPart(call))
		}
		if thinking != "" {
			parts = append(parts, llm.ReasoningPart(thinking))
		}
		resp.Content = ""
		resp.Parts = parts
	}
	resp.ToolCalls = toolCalls
	if u := p.Usage(); u != nil {
		resp.Usage = u
	}
	return resp
}
