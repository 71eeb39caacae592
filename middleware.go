package llmcore

import (
	"context"

	"github.com/xraph/llmcore/llm"
)

// GenerateFunc is the base async generate operation a middleware wraps.
type GenerateFunc func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)

// StreamFunc is the base streaming operation a middleware wraps.
type StreamFunc func(ctx context.Context, req llm.ChatRequest, handler func(llm.ChatStreamEvent) error) error

// StreamSource feeds a canned stream to a handler; a pre-stream hook
// returns one to short-circuit the HTTP path entirely.
type StreamSource func(ctx context.Context, handler func(llm.ChatStreamEvent) error) error

// Middleware hooks into generation. Embed BaseMiddleware and override
// what you need.
type Middleware interface {
	Name() string

	// TransformRequest rewrites the request before any network call.
	TransformRequest(ctx context.Context, req llm.ChatRequest) (llm.ChatRequest, error)

	// PreGenerate may short-circuit generation by returning a non-nil
	// response; the HTTP path is skipped.
	PreGenerate(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)

	// PreStream may short-circuit streaming by returning a non-nil
	// source.
	PreStream(ctx context.Context, req llm.ChatRequest) (StreamSource, error)

	// WrapGenerate wraps the base generate function.
	WrapGenerate(next GenerateFunc) GenerateFunc

	// WrapStream wraps the base stream function.
	WrapStream(next StreamFunc) StreamFunc

	// PostGenerate rewrites the final response.
	PostGenerate(ctx context.Context, req llm.ChatRequest, resp llm.ChatResponse) (llm.ChatResponse, error)

	// OnStreamEvent may drop, replace, or expand one stream event into
	// several.
	OnStreamEvent(ctx context.Context, ev llm.ChatStreamEvent) []llm.ChatStreamEvent
}

// BaseMiddleware is a no-op Middleware for embedding.
type BaseMiddleware struct{}

func (BaseMiddleware) Name() string { return "middleware" }

func (BaseMiddleware) TransformRequest(_ context.Context, req llm.ChatRequest) (llm.ChatRequest, error) {
	return req, nil
}

func (BaseMiddleware) PreGenerate(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, nil
}

func (BaseMiddleware) PreStream(context.Context, llm.ChatRequest) (StreamSource, error) {
	return nil, nil
}

func (BaseMiddleware) WrapGenerate(next GenerateFunc) GenerateFunc { return next }

func (BaseMiddleware) WrapStream(next StreamFunc) StreamFunc { return next }

func (BaseMiddleware) PostGenerate(_ context.Context, _ llm.ChatRequest, resp llm.ChatResponse) (llm.ChatResponse, error) {
	return resp, nil
}

func (BaseMiddleware) OnStreamEvent(_ context.Context, ev llm.ChatStreamEvent) []llm.ChatStreamEvent {
	return []llm.ChatStreamEvent{ev}
}

// MiddlewareChain composes middlewares with fixed ordering semantics:
// transforms and post hooks run in registration order, pre hooks are
// tried in reverse registration order with the first non-nil result
// winning, and around-wrappers are folded from the last-registered
// inward so the first-registered middleware sits outermost.
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewMiddlewareChain returns a chain over the given middlewares in
// registration order.
func NewMiddlewareChain(middlewares ...Middleware) *MiddlewareChain {
	return &MiddlewareChain{middlewares: middlewares}
}

// Len reports the number of registered middlewares.
func (c *MiddlewareChain) Len() int { return len(c.middlewares) }

// ApplyTransforms runs every transform in registration order.
func (c *MiddlewareChain) ApplyTransforms(ctx context.Context, req llm.ChatRequest) (llm.ChatRequest, error) {
	var err error
	for _, mw := range c.middlewares {
		req, err = mw.TransformRequest(ctx, req)
		if err != nil {
			return req, err
		}
	}
	return req, nil
}

// TryPreGenerate probes pre-generate hooks in reverse registration
// order; the first non-nil response wins.
func (c *MiddlewareChain) TryPreGenerate(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		resp, err := c.middlewares[i].PreGenerate(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return resp, nil
		}
	}
	return nil, nil
}

// TryPreStream probes pre-stream hooks in reverse registration order;
// the first non-nil source wins.
func (c *MiddlewareChain) TryPreStream(ctx context.Context, req llm.ChatRequest) (StreamSource, error) {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		source, err := c.middlewares[i].PreStream(ctx, req)
		if err != nil {
			return nil, err
		}
		if source != nil {
			return source, nil
		}
	}
	return nil, nil
}

// WrapGenerate folds wrappers from the last-registered inward, so the
// first-registered middleware ends up outermost.
func (c *MiddlewareChain) WrapGenerate(base GenerateFunc) GenerateFunc {
	wrapped := base
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		wrapped = c.middlewares[i].WrapGenerate(wrapped)
	}
	return wrapped
}

// WrapStream folds stream wrappers the same way as WrapGenerate.
func (c *MiddlewareChain) WrapStream(base StreamFunc) StreamFunc {
	wrapped := base
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		wrapped = c.middlewares[i].WrapStream(wrapped)
	}
	return wrapped
}

// ApplyPostGenerate runs post hooks in registration order.
func (c *MiddlewareChain) ApplyPostGenerate(ctx context.Context, req llm.ChatRequest, resp llm.ChatResponse) (llm.ChatResponse, error) {
	var err error
	for _, mw := range c.middlewares {
		resp, err = mw.PostGenerate(ctx, req, resp)
		if err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// ApplyStreamEvent fans one event through every middleware in
// registration order; each middleware sees the events produced by the
// previous one.
func (c *MiddlewareChain) ApplyStreamEvent(ctx context.Context, ev llm.ChatStreamEvent) []llm.ChatStreamEvent {
	events := []llm.ChatStreamEvent{ev}
	for _, mw := range c.middlewares {
		var next []llm.ChatStreamEvent
		for _, e := range events {
			next = append(next, mw.OnStreamEvent(ctx, e)...)
		}
		events = next
	}
	return events
}
