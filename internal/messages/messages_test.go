package messages

import (
	"encoding/json"
	"testing"

	"github.com/xraph/llmcore/llm"
)

func TestBuild(t *testing.T) {
	history := []llm.ChatMessage{llm.NewUserMessage("earlier")}

	out := Build("be helpful", history, "now")
	if len(out) != 3 {
		t.Fatalf("messages = %d", len(out))
	}
	if out[0].Role != llm.RoleSystem || out[0].Content != "be helpful" {
		t.Errorf("system = %+v", out[0])
	}
	if out[1].Content != "earlier" || out[2].Content != "now" {
		t.Errorf("order wrong: %+v", out)
	}

	out = Build("", nil, "")
	if len(out) != 0 {
		t.Errorf("empty inputs produced %d messages", len(out))
	}
}

func TestWithSystem(t *testing.T) {
	t.Run("replaces leading system message", func(t *testing.T) {
		history := []llm.ChatMessage{
			llm.NewSystemMessage("old"),
			llm.NewUserMessage("hi"),
		}
		out := WithSystem(history, "new")
		if len(out) != 2 || out[0].Content != "new" {
			t.Errorf("out = %+v", out)
		}
		if history[0].Content != "old" {
			t.Error("input slice mutated")
		}
	})

	t.Run("prepends when absent", func(t *testing.T) {
		history := []llm.ChatMessage{llm.NewUserMessage("hi")}
		out := WithSystem(history, "sys")
		if len(out) != 2 || out[0].Role != llm.RoleSystem || out[1].Content != "hi" {
			t.Errorf("out = %+v", out)
		}
	})

	t.Run("empty prompt is a no-op", func(t *testing.T) {
		history := []llm.ChatMessage{llm.NewUserMessage("hi")}
		out := WithSystem(history, "")
		if len(out) != 1 {
			t.Errorf("out = %+v", out)
		}
	})
}

func TestAssistant(t *testing.T) {
	calls := []llm.ToolCall{{ID: "c1", Function: &llm.FunctionCall{Name: "t"}}}
	msg := Assistant("thinking done", calls)
	if msg.Role != llm.RoleAssistant || msg.Content != "thinking done" {
		t.Errorf("msg = %+v", msg)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].ID != "c1" {
		t.Errorf("tool calls = %+v", msg.ToolCalls)
	}
}

func TestToolResult(t *testing.T) {
	msg := ToolResult(json.RawMessage(`{"answer":42}`), "c1")
	if msg.Role != llm.RoleTool || msg.ToolCallID != "c1" {
		t.Errorf("msg = %+v", msg)
	}
	if msg.Content != `{"answer":42}` {
		t.Errorf("content = %q", msg.Content)
	}
}

func TestToolError(t *testing.T) {
	msg := ToolError("denied", "not allowed", "c2")
	var payload map[string]string
	if err := json.Unmarshal([]byte(msg.Content), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["error"] != "denied" || payload["reason"] != "not allowed" {
		t.Errorf("payload = %v", payload)
	}
	if msg.ToolCallID != "c2" {
		t.Errorf("tool call id = %q", msg.ToolCallID)
	}
}
