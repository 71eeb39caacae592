package llm

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Finish reasons reported by providers, normalized to a small set.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
	FinishReasonError         = "error"
	FinishReasonUnknown       = "unknown"
)

// ChatMessage is a single message in a conversation.
type ChatMessage struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// NewSystemMessage returns a system-role message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage returns a user-role message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// NewAssistantMessage returns an assistant-role message.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// NewToolMessage returns a tool-role message carrying the result for a
// specific tool call. ToolCallID is required by every provider that
// supports tools.
func NewToolMessage(content, toolCallID string) ChatMessage {
	return ChatMessage{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// Tool declares a callable function the model may request.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a tool's name and JSON-schema parameters.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall is a model-requested invocation of a declared tool.
type ToolCall struct {
	ID       string        `json:"id"`
	Type     string        `json:"type,omitempty"`
	Function *FunctionCall `json:"function,omitempty"`
}

// FunctionCall carries the tool name and its arguments as a JSON string.
// While a call is still streaming, Arguments holds a prefix of the final
// JSON object and may not parse until the last delta arrives.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// PartType discriminates multi-part response content.
type PartType string

const (
	PartText      PartType = "text"
	PartToolCall  PartType = "tool_call"
	PartReasoning PartType = "reasoning"
)

// ContentPart is one element of a multi-part response.
type ContentPart struct {
	Type     PartType  `json:"type"`
	Text     string    `json:"text,omitempty"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
}

// TextPart returns a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ToolCallPart returns a tool-call content part.
func ToolCallPart(call ToolCall) ContentPart {
	return ContentPart{Type: PartToolCall, ToolCall: &call}
}

// ReasoningPart returns a reasoning-trace content part.
func ReasoningPart(text string) ContentPart {
	return ContentPart{Type: PartReasoning, Text: text}
}

// Usage tracks token consumption. Counters are additive so partial
// updates from a stream can be merged as they arrive.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Merge adds other's counters into u.
func (u *Usage) Merge(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens = u.InputTokens + u.OutputTokens
}

// ChatRequest is a provider-agnostic chat request. Requests are treated
// as immutable per attempt; middleware that needs to change one returns
// a new value.
type ChatRequest struct {
	Provider string        `json:"provider,omitempty"`
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`

	Tools      []Tool `json:"tools,omitempty"`
	ToolChoice string `json:"tool_choice,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`

	// Headers are per-request HTTP header overrides; they win over the
	// provider's base headers on conflict.
	Headers map[string]string `json:"-"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Clone returns a shallow copy with its own message and tool slices, so
// middleware can append without aliasing the caller's request.
func (r ChatRequest) Clone() ChatRequest {
	out := r
	out.Messages = append([]ChatMessage(nil), r.Messages...)
	out.Tools = append([]Tool(nil), r.Tools...)
	out.Stop = append([]string(nil), r.Stop...)
	return out
}

// ChatResponse is the normalized final result of a chat call.
type ChatResponse struct {
	ID       string `json:"id,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// Content holds plain text when the response is a single text part.
	// Multi-part responses populate Parts instead.
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`

	ToolCalls    []ToolCall     `json:"tool_calls,omitempty"`
	Usage        *Usage         `json:"usage,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Text returns the full text content, joining text parts for
// multi-part responses.
func (r *ChatResponse) Text() string {
	if r.Content != "" || len(r.Parts) == 0 {
		return r.Content
	}
	var sb strings.Builder
	for _, p := range r.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// HasToolCalls reports whether the response requested any tool calls.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}
