package llmcore

import (
	"context"
	"net/http"

	"github.com/xraph/llmcore/llm"
)

// HTTPInterceptor hooks into the executor around each HTTP send.
// Interceptors are the extension point for logging, auth refresh, and
// tracing.
type HTTPInterceptor interface {
	// OnBeforeSend runs before the request goes out, in registration
	// order. It may mutate the request; returning an error aborts the
	// call.
	OnBeforeSend(ctx context.Context, req *http.Request) error

	// OnResponse runs after a successful (2xx) response, best-effort:
	// errors are logged and ignored.
	OnResponse(ctx context.Context, req *http.Request, resp *http.Response) error
}

// BeforeSendHook observes the unified request just before the body is
// built. Returning an error aborts the call.
type BeforeSendHook func(ctx context.Context, req llm.ChatRequest) error

// StreamFraming selects how a provider frames its stream bytes before
// the converter sees them.
type StreamFraming string

const (
	// FramingSSE is Server-Sent-Events framing (the default).
	FramingSSE StreamFraming = "sse"
	// FramingNDJSON is one JSON document per line.
	FramingNDJSON StreamFraming = "ndjson"
)

// ExecutionPolicy bundles the cross-cutting knobs of the HTTP executor.
// Build one per client and share it by pointer across requests; it must
// not be mutated after construction.
type ExecutionPolicy struct {
	Interceptors []HTTPInterceptor
	BeforeSend   BeforeSendHook
	Retry        RetryOptions

	// Transport overrides the default http.Transport when set.
	Transport http.RoundTripper

	// Framing selects the stream transport framing. Empty means SSE.
	Framing StreamFraming

	// DisableStreamCompression asks the provider for an identity
	// encoding on streaming requests, for proxies that choke on
	// compressed SSE.
	DisableStreamCompression bool
}

// DefaultExecutionPolicy returns a policy with default retry options
// and no interceptors.
func DefaultExecutionPolicy() *ExecutionPolicy {
	return &ExecutionPolicy{Retry: DefaultRetryOptions()}
}
