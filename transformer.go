package llmcore

import (
	"encoding/json"
	"net/http"

	"github.com/xraph/llmcore/llm"
)

// RequestTransformer maps a unified request to a provider's wire JSON.
// Implementations live with each provider, outside this module; the
// core only ever sees the interface.
type RequestTransformer interface {
	// TransformChat renders the request body. Providers that lack a
	// capability the request needs return an unsupported-operation
	// error.
	TransformChat(req llm.ChatRequest) (json.RawMessage, error)
}

// ResponseTransformer maps a provider's response JSON back to the
// unified response.
type ResponseTransformer interface {
	TransformChatResponse(body json.RawMessage) (llm.ChatResponse, error)
}

// ProviderSpec supplies the endpoint and base headers for a request.
// Implementations hold the provider context (API key, base URL, extra
// headers). BaseHeaders is re-invoked when the executor retries after a
// 401, so refreshed credentials are picked up.
type ProviderSpec interface {
	RequestURL(req llm.ChatRequest) string
	BaseHeaders(req llm.ChatRequest) http.Header
}
