package llmcore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/llmcore/llm"
	"github.com/xraph/llmcore/testhelpers"
)

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Type: "function", Function: &llm.FunctionCall{Name: name, Arguments: args}}
}

func toolCallResponse(calls ...llm.ToolCall) llm.ChatResponse {
	return llm.ChatResponse{ToolCalls: calls, FinishReason: llm.FinishReasonToolCalls}
}

func textResponse(text string) llm.ChatResponse {
	return llm.ChatResponse{Content: text, FinishReason: llm.FinishReasonStop}
}

// scriptedModel returns canned responses in sequence.
func scriptedModel(t *testing.T, responses ...llm.ChatResponse) *testhelpers.MockChatModel {
	t.Helper()
	i := 0
	return &testhelpers.MockChatModel{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			if i >= len(responses) {
				t.Fatalf("unexpected model call %d", i)
			}
			resp := responses[i]
			i++
			return resp, nil
		},
	}
}

func echoResolver(calls *[]string) FuncResolver {
	return FuncResolver{
		"search": func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			if calls != nil {
				*calls = append(*calls, string(args))
			}
			return json.RawMessage(`{"result":"found"}`), nil
		},
	}
}

func TestOrchestratorStopsAfterTextResponse(t *testing.T) {
	model := scriptedModel(t,
		toolCallResponse(toolCall("c1", "search", `{"q":"go"}`)),
		textResponse("done"),
	)
	var executed []string
	o := NewOrchestrator(model, echoResolver(&executed), nil, OrchestratorOptions{})

	resp, steps, err := o.Run(context.Background(), llm.ChatRequest{
		Messages: []llm.ChatMessage{llm.NewUserMessage("find go")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(steps))
	}
	if resp.Content != "done" {
		t.Errorf("final content = %q", resp.Content)
	}
	if len(executed) != 1 {
		t.Errorf("tool executions = %d, want 1", len(executed))
	}
	// Step 1: assistant with tool calls + tool result message.
	if len(steps[0].Messages) != 2 {
		t.Errorf("step 0 messages = %d, want 2", len(steps[0].Messages))
	}
	if steps[0].Messages[1].Role != llm.RoleTool || steps[0].Messages[1].ToolCallID != "c1" {
		t.Errorf("tool message = %+v", steps[0].Messages[1])
	}
}

func TestOrchestratorDedupByCallID(t *testing.T) {
	// The model (erroneously) reports the same call id in both steps.
	model := scriptedModel(t,
		toolCallResponse(toolCall("dup", "search", `{"q":"a"}`)),
		toolCallResponse(toolCall("dup", "search", `{"q":"a"}`)),
		textResponse("done"),
	)
	var executed []string
	o := NewOrchestrator(model, echoResolver(&executed), nil, OrchestratorOptions{})

	_, steps, err := o.Run(context.Background(), llm.ChatRequest{
		Messages: []llm.ChatMessage{llm.NewUserMessage("go")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(executed) != 1 {
		t.Errorf("tool executed %d times, duplicate ids must not re-run", len(executed))
	}
	if len(steps) != 3 {
		t.Errorf("steps = %d", len(steps))
	}
}

func TestOrchestratorValidatesArguments(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`)
	model := scriptedModel(t,
		toolCallResponse(toolCall("c1", "search", `{"wrong":1}`)),
		textResponse("done"),
	)
	var executed []string
	o := NewOrchestrator(model, echoResolver(&executed), nil, OrchestratorOptions{})

	_, steps, err := o.Run(context.Background(), llm.ChatRequest{
		Messages: []llm.ChatMessage{llm.NewUserMessage("go")},
		Tools: []llm.Tool{{
			Type:     "function",
			Function: llm.ToolFunction{Name: "search", Parameters: schema},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(executed) != 0 {
		t.Error("resolver must not run for invalid arguments")
	}
	toolMsg := steps[0].Messages[1]
	if !strings.Contains(toolMsg.Content, "invalid_args") {
		t.Errorf("tool message = %q, want invalid_args payload", toolMsg.Content)
	}
}

func TestOrchestratorApproval(t *testing.T) {
	t.Run("deny synthesizes a structured result", func(t *testing.T) {
		model := scriptedModel(t,
			toolCallResponse(toolCall("c1", "search", `{"q":"x"}`)),
			textResponse("done"),
		)
		var executed []string
		o := NewOrchestrator(model, echoResolver(&executed), nil, OrchestratorOptions{
			OnToolApproval: func(name string, args json.RawMessage) ApprovalDecision {
				return Deny("not allowed here")
			},
		})

		_, steps, err := o.Run(context.Background(), llm.ChatRequest{
			Messages: []llm.ChatMessage{llm.NewUserMessage("go")},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(executed) != 0 {
			t.Error("denied call must not execute")
		}
		var payload map[string]string
		if err := json.Unmarshal([]byte(steps[0].Messages[1].Content), &payload); err != nil {
			t.Fatalf("denial payload: %v", err)
		}
		if payload["error"] != "denied" || payload["reason"] != "not allowed here" {
			t.Errorf("payload = %v", payload)
		}
	})

	t.Run("modify replaces arguments", func(t *testing.T) {
		model := scriptedModel(t,
			toolCallResponse(toolCall("c1", "search", `{"q":"original"}`)),
			textResponse("done"),
		)
		var executed []string
		o := NewOrchestrator(model, echoResolver(&executed), nil, OrchestratorOptions{
			OnToolApproval: func(name string, args json.RawMessage) ApprovalDecision {
				return ModifyArguments(json.RawMessage(`{"q":"modified"}`))
			},
		})

		if _, _, err := o.Run(context.Background(), llm.ChatRequest{
			Messages: []llm.ChatMessage{llm.NewUserMessage("go")},
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(executed) != 1 || !strings.Contains(executed[0], "modified") {
			t.Errorf("executed = %v", executed)
		}
	})
}

func TestOrchestratorToolErrorIsCapturedNotFatal(t *testing.T) {
	model := scriptedModel(t,
		toolCallResponse(toolCall("c1", "flaky", `{}`)),
		textResponse("recovered"),
	)
	resolver := FuncResolver{
		"flaky": func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			return nil, errors.New("tool exploded")
		},
	}
	o := NewOrchestrator(model, resolver, nil, OrchestratorOptions{})

	resp, steps, err := o.Run(context.Background(), llm.ChatRequest{
		Messages: []llm.ChatMessage{llm.NewUserMessage("go")},
	})
	if err != nil {
		t.Fatalf("tool failure must not abort the run: %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("final = %q", resp.Content)
	}
	if !strings.Contains(steps[0].Messages[1].Content, "tool_failed") {
		t.Errorf("tool message = %q", steps[0].Messages[1].Content)
	}
}

func TestOrchestratorModelErrorIsFatal(t *testing.T) {
	wantErr := llm.NewAPIError("test", 500, "boom")
	model := &testhelpers.MockChatModel{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			return llm.ChatResponse{}, wantErr
		},
	}
	o := NewOrchestrator(model, nil, nil, OrchestratorOptions{})

	_, steps, err := o.Run(context.Background(), llm.ChatRequest{
		Messages: []llm.ChatMessage{llm.NewUserMessage("go")},
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v", err)
	}
	if len(steps) != 0 {
		t.Errorf("no partial step may be recorded, got %d", len(steps))
	}
}

func TestOrchestratorMaxStepsBudget(t *testing.T) {
	calls := 0
	model := &testhelpers.MockChatModel{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			calls++
			return toolCallResponse(toolCall("c"+string(rune('0'+calls)), "search", `{}`)), nil
		},
	}
	o := NewOrchestrator(model, echoResolver(nil), nil, OrchestratorOptions{MaxSteps: 3})

	_, steps, err := o.Run(context.Background(), llm.ChatRequest{
		Messages: []llm.ChatMessage{llm.NewUserMessage("go")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || len(steps) != 3 {
		t.Errorf("calls=%d steps=%d, want budget of 3", calls, len(steps))
	}
}

func TestOrchestratorStopCondition(t *testing.T) {
	model := scriptedModel(t,
		toolCallResponse(toolCall("c1", "search", `{}`)),
		toolCallResponse(toolCall("c2", "search", `{}`)),
	)
	o := NewOrchestrator(model, echoResolver(nil), []StopCondition{StepCountIs(1)}, OrchestratorOptions{})

	_, steps, err := o.Run(context.Background(), llm.ChatRequest{
		Messages: []llm.ChatMessage{llm.NewUserMessage("go")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(steps) != 1 {
		t.Errorf("steps = %d, stop condition must fire after step 1", len(steps))
	}
}

func TestOrchestratorPrepareStepNarrowsTools(t *testing.T) {
	var seenTools [][]string
	model := &testhelpers.MockChatModel{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			names := make([]string, 0, len(req.Tools))
			for _, tool := range req.Tools {
				names = append(names, tool.Function.Name)
			}
			seenTools = append(seenTools, names)
			return textResponse("ok"), nil
		},
	}
	o := NewOrchestrator(model, nil, nil, OrchestratorOptions{
		PrepareStep: func(ctx PrepareStepContext) PrepareStepResult {
			return PrepareStepResult{ActiveTools: []string{"b"}, System: "step system"}
		},
	})

	_, _, err := o.Run(context.Background(), llm.ChatRequest{
		Messages: []llm.ChatMessage{llm.NewUserMessage("go")},
		Tools: []llm.Tool{
			{Type: "function", Function: llm.ToolFunction{Name: "a"}},
			{Type: "function", Function: llm.ToolFunction{Name: "b"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seenTools) != 1 || len(seenTools[0]) != 1 || seenTools[0][0] != "b" {
		t.Errorf("tools seen by model = %v, want narrowed to [b]", seenTools)
	}
}

func TestMergeStepUsage(t *testing.T) {
	steps := []StepResult{
		{Usage: &llm.Usage{InputTokens: 3, OutputTokens: 5}},
		{Usage: &llm.Usage{InputTokens: 2, OutputTokens: 1}},
		{},
	}
	total := MergeStepUsage(steps)
	if total.InputTokens != 5 || total.OutputTokens != 6 || total.TotalTokens != 11 {
		t.Errorf("total = %+v", total)
	}
}

func TestOrchestratorPreliminaryToolResults(t *testing.T) {
	model := scriptedModel(t,
		toolCallResponse(toolCall("c1", "progress", `{}`)),
		textResponse("done"),
	)
	resolver := &streamingResolver{}
	var preliminary []string
	o := NewOrchestrator(model, resolver, nil, OrchestratorOptions{
		OnPreliminaryToolResult: func(name string, output json.RawMessage) {
			preliminary = append(preliminary, string(output))
		},
	})

	_, steps, err := o.Run(context.Background(), llm.ChatRequest{
		Messages: []llm.ChatMessage{llm.NewUserMessage("go")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preliminary) != 2 {
		t.Errorf("preliminary results = %v, want 2", preliminary)
	}
	// Only the final output enters the conversation.
	if !strings.Contains(steps[0].Messages[1].Content, "final") {
		t.Errorf("tool message = %q", steps[0].Messages[1].Content)
	}
}

type streamingResolver struct{}

func (r *streamingResolver) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	return r.CallToolStream(ctx, name, args, func(json.RawMessage) {})
}

func (r *streamingResolver) CallToolStream(ctx context.Context, name string, args json.RawMessage, emit func(json.RawMessage)) (json.RawMessage, error) {
	emit(json.RawMessage(`{"progress":50}`))
	emit(json.RawMessage(`{"progress":90}`))
	return json.RawMessage(`{"status":"final"}`), nil
}
