package llmcore

import (
	"testing"

	"github.com/xraph/llmcore/llm"
)

func TestProcessorContentAccumulation(t *testing.T) {
	p := NewStreamProcessor(ProcessorOptions{})

	p.ProcessEvent(llm.NewContentDeltaEvent("Hello, ", nil))
	out := p.ProcessEvent(llm.NewContentDeltaEvent("world", nil))

	if out.Type != ProcessedContent {
		t.Fatalf("expected content event, got %s", out.Type)
	}
	if out.Accumulated != "Hello, world" {
		t.Errorf("accumulated = %q, want %q", out.Accumulated, "Hello, world")
	}

	resp := p.FinalResponse()
	if resp.Content != "Hello, world" {
		t.Errorf("final content = %q, want plain text", resp.Content)
	}
	if len(resp.Parts) != 0 {
		t.Errorf("single text part should not produce multipart content")
	}
}

func TestProcessorContentOverflow(t *testing.T) {
	var overflowBuffer string
	var overflowSize int
	calls := 0

	p := NewStreamProcessor(ProcessorOptions{
		MaxContentBytes: 8,
		OnOverflow: func(buffer string, attempted int) {
			calls++
			overflowBuffer = buffer
			overflowSize = attempted
		},
	})

	out := p.ProcessEvent(llm.NewContentDeltaEvent("hello world", nil))

	if calls != 1 {
		t.Fatalf("overflow callback fired %d times, want 1", calls)
	}
	if overflowBuffer != OverflowContentBuffer {
		t.Errorf("buffer name = %q, want %q", overflowBuffer, OverflowContentBuffer)
	}
	if overflowSize != 11 {
		t.Errorf("attempted size = %d, want 11", overflowSize)
	}
	if got := out.Accumulated; len(got) > 8 {
		t.Errorf("accumulated %d bytes, cap is 8", len(got))
	}
	if out.Accumulated != "hello wo" {
		t.Errorf("accumulated = %q, want truncation to remaining capacity", out.Accumulated)
	}

	// Already-buffered data survives further oversized deltas.
	p.ProcessEvent(llm.NewContentDeltaEvent("more", nil))
	if got := p.FinalResponse().Content; got != "hello wo" {
		t.Errorf("content after second overflow = %q, want %q", got, "hello wo")
	}
}

func TestProcessorToolCallReassemblyByID(t *testing.T) {
	p := NewStreamProcessor(ProcessorOptions{})

	idx0, idx1 := 0, 1
	p.ProcessEvent(llm.NewToolCallDeltaEvent("t1", "search", `{"a"`, &idx0))
	// Same id under a different positional index: identity is the id.
	out := p.ProcessEvent(llm.NewToolCallDeltaEvent("t1", "", `:1}`, &idx1))

	if out.ToolCall == nil {
		t.Fatal("expected tool call state")
	}
	if out.ToolCall.Arguments != `{"a":1}` {
		t.Errorf("arguments = %q, want %q", out.ToolCall.Arguments, `{"a":1}`)
	}
	if out.ToolCall.Name != "search" {
		t.Errorf("name = %q, want %q", out.ToolCall.Name, "search")
	}

	resp := p.FinalResponse()
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
}

func TestProcessorEmptyIDAttachesToLastCall(t *testing.T) {
	p := NewStreamProcessor(ProcessorOptions{})

	p.ProcessEvent(llm.NewToolCallDeltaEvent("t1", "search", `{"q":`, nil))
	out := p.ProcessEvent(llm.NewToolCallDeltaEvent("", "", `"go"}`, nil))

	if out.ToolCall == nil || out.ToolCall.ID != "t1" {
		t.Fatalf("continuation delta should attach to last call, got %+v", out.ToolCall)
	}
	if out.ToolCall.Arguments != `{"q":"go"}` {
		t.Errorf("arguments = %q", out.ToolCall.Arguments)
	}
}

func TestProcessorToolCallCountCap(t *testing.T) {
	overflows := 0
	p := NewStreamProcessor(ProcessorOptions{
		MaxToolCalls: 2,
		OnOverflow: func(buffer string, attempted int) {
			overflows++
			if buffer != OverflowToolCalls {
				t.Errorf("buffer = %q, want %q", buffer, OverflowToolCalls)
			}
		},
	})

	p.ProcessEvent(llm.NewToolCallDeltaEvent("t1", "a", "{}", nil))
	p.ProcessEvent(llm.NewToolCallDeltaEvent("t2", "b", "{}", nil))
	out := p.ProcessEvent(llm.NewToolCallDeltaEvent("t3", "c", `{"x":1}`, nil))

	if overflows == 0 {
		t.Error("expected a tool_calls overflow")
	}
	// The over-cap call is acknowledged with empty state; the stream
	// itself is not errored.
	if out.Type != ProcessedToolCall || out.ToolCall == nil {
		t.Fatalf("over-cap call should still report an update, got %+v", out)
	}
	if out.ToolCall.Arguments != "" || out.ToolCall.Name != "" {
		t.Errorf("over-cap call accumulated state: %+v", out.ToolCall)
	}
	if got := len(p.FinalResponse().ToolCalls); got != 2 {
		t.Errorf("final tool calls = %d, want 2", got)
	}
}

func TestProcessorToolArgumentCap(t *testing.T) {
	overflows := 0
	p := NewStreamProcessor(ProcessorOptions{
		MaxToolArgumentBytes: 4,
		OnOverflow: func(buffer string, attempted int) {
			overflows++
			if buffer != OverflowToolArguments {
				t.Errorf("buffer = %q, want %q", buffer, OverflowToolArguments)
			}
		},
	})

	p.ProcessEvent(llm.NewToolCallDeltaEvent("t1", "a", "{}", nil))
	out := p.ProcessEvent(llm.NewToolCallDeltaEvent("t1", "", `{"x":1}`, nil))

	if overflows != 1 {
		t.Errorf("overflow fired %d times, want 1", overflows)
	}
	if len(out.ToolCall.Arguments) != 4 {
		t.Errorf("arguments len = %d, want 4", len(out.ToolCall.Arguments))
	}
}

func TestProcessorUsageMergeIsAdditive(t *testing.T) {
	p := NewStreamProcessor(ProcessorOptions{})

	p.ProcessEvent(llm.NewUsageUpdateEvent(llm.Usage{InputTokens: 3, OutputTokens: 5}))
	out := p.ProcessEvent(llm.NewUsageUpdateEvent(llm.Usage{InputTokens: 2, OutputTokens: 1}))

	if out.Usage.InputTokens != 5 || out.Usage.OutputTokens != 6 {
		t.Errorf("merged usage = %+v, want input=5 output=6", out.Usage)
	}
	if out.Usage.TotalTokens != 11 {
		t.Errorf("total = %d, want 11", out.Usage.TotalTokens)
	}
}

func TestProcessorFinalMultipartOrder(t *testing.T) {
	p := NewStreamProcessor(ProcessorOptions{})

	p.ProcessEvent(llm.NewThinkingDeltaEvent("considering..."))
	p.ProcessEvent(llm.NewContentDeltaEvent("answer", nil))
	p.ProcessEvent(llm.NewToolCallDeltaEvent("t2", "second", "{}", nil))
	p.ProcessEvent(llm.NewToolCallDeltaEvent("t1", "first", "{}", nil))

	resp := p.FinalResponse()
	if len(resp.Parts) != 4 {
		t.Fatalf("expected 4 parts, got %d", len(resp.Parts))
	}
	// Stable order: text, tool calls first-seen, reasoning last.
	if resp.Parts[0].Type != llm.PartText {
		t.Errorf("part 0 = %s, want text", resp.Parts[0].Type)
	}
	if resp.Parts[1].ToolCall == nil || resp.Parts[1].ToolCall.ID != "t2" {
		t.Errorf("part 1 should be first-seen tool call t2")
	}
	if resp.Parts[2].ToolCall == nil || resp.Parts[2].ToolCall.ID != "t1" {
		t.Errorf("part 2 should be tool call t1")
	}
	if resp.Parts[3].Type != llm.PartReasoning {
		t.Errorf("part 3 = %s, want reasoning", resp.Parts[3].Type)
	}
}

func TestProcessorStreamEndCarriesMetadata(t *testing.T) {
	p := NewStreamProcessor(ProcessorOptions{})

	p.ProcessEvent(llm.NewStreamStartEvent(llm.StreamMetadata{ID: "resp-1", Model: "m", Provider: "p"}))
	p.ProcessEvent(llm.NewContentDeltaEvent("hi", nil))
	out := p.ProcessEvent(llm.NewStreamEndEvent(llm.ChatResponse{FinishReason: llm.FinishReasonStop}))

	if out.Response == nil {
		t.Fatal("stream end should carry the final response")
	}
	if out.Response.ID != "resp-1" || out.Response.Provider != "p" {
		t.Errorf("metadata not merged into final response: %+v", out.Response)
	}
	if out.Response.FinishReason != llm.FinishReasonStop {
		t.Errorf("finish reason = %q", out.Response.FinishReason)
	}
	if out.Response.Content != "hi" {
		t.Errorf("content = %q", out.Response.Content)
	}
}

func TestProcessorStreamEndResponseSurvivesWithoutDeltas(t *testing.T) {
	p := NewStreamProcessor(ProcessorOptions{})

	p.ProcessEvent(llm.NewStreamStartEvent(llm.StreamMetadata{ID: "resp-1"}))
	out := p.ProcessEvent(llm.NewStreamEndEvent(llm.ChatResponse{
		Content:      "calling lookup",
		ToolCalls:    []llm.ToolCall{{ID: "t1", Type: "function", Function: &llm.FunctionCall{Name: "lookup", Arguments: `{"id":7}`}}},
		FinishReason: llm.FinishReasonToolCalls,
	}))

	if out.Response == nil {
		t.Fatal("stream end should carry the final response")
	}
	if out.Response.Content != "calling lookup" {
		t.Errorf("content = %q, want the end response's content", out.Response.Content)
	}
	if len(out.Response.ToolCalls) != 1 || out.Response.ToolCalls[0].ID != "t1" {
		t.Fatalf("tool calls = %+v, want the end response's embedded call", out.Response.ToolCalls)
	}
}

func TestProcessorEndResponseToolCallsMergeWithContentDeltas(t *testing.T) {
	p := NewStreamProcessor(ProcessorOptions{})

	p.ProcessEvent(llm.NewContentDeltaEvent("looking that up", nil))
	resp := p.ProcessEvent(llm.NewStreamEndEvent(llm.ChatResponse{
		ToolCalls:    []llm.ToolCall{{ID: "t1", Type: "function", Function: &llm.FunctionCall{Name: "lookup", Arguments: "{}"}}},
		FinishReason: llm.FinishReasonToolCalls,
	})).Response

	// Deltas win where they exist; fields only the end response carries
	// are kept.
	if resp.Text() != "looking that up" {
		t.Errorf("text = %q", resp.Text())
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "t1" {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
}
