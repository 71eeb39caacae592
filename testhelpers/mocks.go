package testhelpers

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/xraph/go-utils/log"
	"github.com/xraph/llmcore/llm"
)

// MockChatModel for testing.
type MockChatModel struct {
	ChatFunc       func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
	ChatStreamFunc func(ctx context.Context, req llm.ChatRequest, handler func(llm.ChatStreamEvent) error) error
}

func (m *MockChatModel) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}

	return llm.ChatResponse{}, nil
}

func (m *MockChatModel) ChatStream(ctx context.Context, req llm.ChatRequest, handler func(llm.ChatStreamEvent) error) error {
	if m.ChatStreamFunc != nil {
		return m.ChatStreamFunc(ctx, req, handler)
	}

	return nil
}

// NewMockChatModel returns a new mock chat model for testing.
func NewMockChatModel() *MockChatModel {
	return &MockChatModel{}
}

// MockRequestTransformer renders requests with TransformFunc, or the
// request's JSON encoding by default.
type MockRequestTransformer struct {
	TransformFunc func(req llm.ChatRequest) (json.RawMessage, error)
}

func (m *MockRequestTransformer) TransformChat(req llm.ChatRequest) (json.RawMessage, error) {
	if m.TransformFunc != nil {
		return m.TransformFunc(req)
	}

	return json.Marshal(req)
}

// MockResponseTransformer decodes bodies with TransformFunc, or
// directly into a ChatResponse by default.
type MockResponseTransformer struct {
	TransformFunc func(body json.RawMessage) (llm.ChatResponse, error)
}

func (m *MockResponseTransformer) TransformChatResponse(body json.RawMessage) (llm.ChatResponse, error) {
	if m.TransformFunc != nil {
		return m.TransformFunc(body)
	}

	var resp llm.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return llm.ChatResponse{}, err
	}

	return resp, nil
}

// MockProviderSpec serves a fixed URL and headers.
type MockProviderSpec struct {
	URL     string
	Headers http.Header

	// HeadersFunc overrides Headers when set; it is re-invoked on the
	// 401 retry, so tests can swap credentials between attempts.
	HeadersFunc func() http.Header
}

func (m *MockProviderSpec) RequestURL(req llm.ChatRequest) string {
	return m.URL
}

func (m *MockProviderSpec) BaseHeaders(req llm.ChatRequest) http.Header {
	if m.HeadersFunc != nil {
		return m.HeadersFunc()
	}
	if m.Headers != nil {
		return m.Headers
	}

	return http.Header{}
}

// NewMockLogger returns a new mock logger for testing.
func NewMockLogger() logger.Logger {
	return logger.NewTestLogger()
}
