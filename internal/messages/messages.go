// Package messages provides shared conversation building utilities.
package messages

import (
	"encoding/json"

	"github.com/xraph/llmcore/llm"
)

// Build constructs a slice of ChatMessages from optional system prompt, history, and user prompt.
// Messages are added in order: system (if non-empty), history, user (if non-empty).
func Build(systemPrompt string, history []llm.ChatMessage, userPrompt string) []llm.ChatMessage {
	// Pre-calculate capacity
	capacity := len(history)
	if systemPrompt != "" {
		capacity++
	}
	if userPrompt != "" {
		capacity++
	}

	out := make([]llm.ChatMessage, 0, capacity)

	if systemPrompt != "" {
		out = append(out, llm.NewSystemMessage(systemPrompt))
	}

	out = append(out, history...)

	if userPrompt != "" {
		out = append(out, llm.NewUserMessage(userPrompt))
	}

	return out
}

// WithSystem injects a system message at the front of history,
// replacing an existing leading system message if present. Used for
// per-step system overrides in the tool loop.
func WithSystem(history []llm.ChatMessage, systemPrompt string) []llm.ChatMessage {
	if systemPrompt == "" {
		return history
	}
	if len(history) > 0 && history[0].Role == llm.RoleSystem {
		out := make([]llm.ChatMessage, len(history))
		copy(out, history)
		out[0] = llm.NewSystemMessage(systemPrompt)
		return out
	}
	out := make([]llm.ChatMessage, 0, len(history)+1)
	out = append(out, llm.NewSystemMessage(systemPrompt))
	out = append(out, history...)
	return out
}

// Assistant builds the assistant message recorded after a model turn,
// carrying the model's text and any embedded tool calls verbatim.
func Assistant(content string, toolCalls []llm.ToolCall) llm.ChatMessage {
	msg := llm.NewAssistantMessage(content)
	msg.ToolCalls = toolCalls
	return msg
}

// ToolResult builds the tool-role message for a completed tool call.
// The tool_call_id link is required by every provider that supports
// tools.
func ToolResult(output json.RawMessage, toolCallID string) llm.ChatMessage {
	return llm.NewToolMessage(string(output), toolCallID)
}

// ToolError builds a tool-role message carrying a structured error
// payload, used when a call is denied, its arguments fail validation,
// or the tool itself fails.
func ToolError(code, reason, toolCallID string) llm.ChatMessage {
	payload, err := json.Marshal(map[string]string{
		"error":  code,
		"reason": reason,
	})
	if err != nil {
		payload = []byte(`{"error":"` + code + `"}`)
	}
	return llm.NewToolMessage(string(payload), toolCallID)
}
