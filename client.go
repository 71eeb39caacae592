package llmcore

import (
	"bytes"
	"context"
	"io"
	"time"

	logger "github.com/xraph/go-utils/log"
	"github.com/xraph/go-utils/metrics"
	"github.com/xraph/llmcore/llm"
)

// Config assembles a Client from already-constructed provider pieces.
// There is no registry: callers hand the core concrete transformer and
// spec instances directly.
type Config struct {
	Provider string

	RequestTransformer  RequestTransformer
	ResponseTransformer ResponseTransformer
	Spec                ProviderSpec

	// NewConverter builds one stream converter per streaming call;
	// converters are stateful. Nil means the provider does not
	// support streaming.
	NewConverter func() StreamConverter

	// Policy is shared read-only across requests. Nil means defaults.
	Policy *ExecutionPolicy

	Middlewares []Middleware

	Logger  logger.Logger
	Metrics metrics.Metrics
}

// Client is the unified chat surface over one provider: middleware
// chain, retry engine, HTTP executor, transformers. It implements
// ChatModel, so an Orchestrator can drive it directly.
type Client struct {
	provider     string
	reqTransform RequestTransformer
	respTrans    ResponseTransformer
	newConverter func() StreamConverter
	policy       *ExecutionPolicy
	chain        *MiddlewareChain
	executor     *HTTPExecutor
	logger       logger.Logger
	metrics      metrics.Metrics
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Provider == "" {
		return nil, llm.NewConfigurationError("provider name is required")
	}
	if cfg.RequestTransformer == nil || cfg.ResponseTransformer == nil {
		return nil, llm.NewConfigurationError("request and response transformers are required")
	}
	if cfg.Spec == nil {
		return nil, llm.NewConfigurationError("provider spec is required")
	}
	policy := cfg.Policy
	if policy == nil {
		policy = DefaultExecutionPolicy()
	}
	return &Client{
		provider:     cfg.Provider,
		reqTransform: cfg.RequestTransformer,
		respTrans:    cfg.ResponseTransformer,
		newConverter: cfg.NewConverter,
		policy:       policy,
		chain:        NewMiddlewareChain(cfg.Middlewares...),
		executor:     NewHTTPExecutor(cfg.Provider, cfg.Spec, policy, cfg.Logger, cfg.Metrics),
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}, nil
}

// Provider returns the provider name this client talks to.
func (c *Client) Provider() string { return c.provider }

// SupportsStreaming reports whether a stream converter is configured.
func (c *Client) SupportsStreaming() bool { return c.newConverter != nil }

// Chat performs one blocking generation through the full pipeline:
// transforms, pre-generate short-circuit, wrapped HTTP call with
// retries, response transform, post-generate.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	startTime := time.Now()
	req.Provider = c.provider

	req, err := c.chain.ApplyTransforms(ctx, req)
	if err != nil {
		return llm.ChatResponse{}, err
	}

	if short, err := c.chain.TryPreGenerate(ctx, req); err != nil {
		return llm.ChatResponse{}, err
	} else if short != nil {
		// A short-circuit takes the same completion path as a real
		// HTTP result.
		resp, err := c.chain.ApplyPostGenerate(ctx, req, *short)
		c.recordChat(req.Model, startTime, err, true)
		return resp, err
	}

	base := func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
		return Retry(ctx, c.policy.Retry, func(ctx context.Context) (llm.ChatResponse, error) {
			return c.chatOnce(ctx, req)
		})
	}

	resp, err := c.chain.WrapGenerate(base)(ctx, req)
	if err != nil {
		c.recordChat(req.Model, startTime, err, false)
		return llm.ChatResponse{}, err
	}

	resp, err = c.chain.ApplyPostGenerate(ctx, req, resp)
	c.recordChat(req.Model, startTime, err, false)
	return resp, err
}

// chatOnce is one full attempt: hook, body build, HTTP exchange (with
// its own one-shot 401 retry inside), response transform.
func (c *Client) chatOnce(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if c.policy.BeforeSend != nil {
		if err := c.policy.BeforeSend(ctx, req); err != nil {
			return llm.ChatResponse{}, err
		}
	}

	result, err := c.executor.Execute(ctx, req, c.bodyBuilder(req))
	if err != nil {
		return llm.ChatResponse{}, err
	}

	resp, err := c.respTrans.TransformChatResponse(result.Body)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	if resp.Provider == "" {
		resp.Provider = c.provider
	}
	return resp, nil
}

// ChatStream performs one streaming generation; handler receives each
// canonical event after middleware fan-out.
func (c *Client) ChatStream(ctx context.Context, req llm.ChatRequest, handler func(llm.ChatStreamEvent) error) error {
	if c.newConverter == nil {
		return llm.NewUnsupportedOperation(c.provider, "streaming")
	}
	startTime := time.Now()
	req.Provider = c.provider

	req, err := c.chain.ApplyTransforms(ctx, req)
	if err != nil {
		return err
	}

	fanOut := func(ev llm.ChatStreamEvent) error {
		for _, out := range c.chain.ApplyStreamEvent(ctx, ev) {
			if err := handler(out); err != nil {
				return err
			}
		}
		return nil
	}

	if source, err := c.chain.TryPreStream(ctx, req); err != nil {
		return err
	} else if source != nil {
		err := source(ctx, fanOut)
		c.recordStream(req.Model, startTime, err, true)
		return err
	}

	base := func(ctx context.Context, req llm.ChatRequest, handler func(llm.ChatStreamEvent) error) error {
		if c.policy.BeforeSend != nil {
			if err := c.policy.BeforeSend(ctx, req); err != nil {
				return err
			}
		}
		return c.executor.ExecuteStream(ctx, req, c.bodyBuilder(req), c.newConverter(), handler)
	}

	err = c.chain.WrapStream(base)(ctx, req, fanOut)
	c.recordStream(req.Model, startTime, err, false)
	return err
}

// bodyBuilder renders the wire body lazily so the 401 retry can rebuild
// it; the transform runs once per attempt, on purpose.
func (c *Client) bodyBuilder(req llm.ChatRequest) BodyBuilder {
	return func() (io.Reader, error) {
		body, err := c.reqTransform.TransformChat(req)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(body), nil
	}
}

func (c *Client) recordChat(model string, startTime time.Time, err error, shortCircuit bool) {
	c.record("chat", model, startTime, err, shortCircuit)
}

func (c *Client) recordStream(model string, startTime time.Time, err error, shortCircuit bool) {
	c.record("stream", model, startTime, err, shortCircuit)
}

func (c *Client) record(op, model string, startTime time.Time, err error, shortCircuit bool) {
	if c.logger != nil {
		if err != nil {
			c.logger.Error("chat call failed",
				logger.String("provider", c.provider),
				logger.String("op", op),
				logger.String("model", model),
				logger.String("error", err.Error()),
			)
		} else {
			c.logger.Debug("chat call completed",
				logger.String("provider", c.provider),
				logger.String("op", op),
				logger.String("model", model),
				logger.Bool("short_circuit", shortCircuit),
				logger.Duration("duration", time.Since(startTime)),
			)
		}
	}
	if c.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.Counter("llmcore.chat.calls",
		metrics.WithLabel("provider", c.provider),
		metrics.WithLabel("op", op),
		metrics.WithLabel("outcome", outcome),
	).Inc()
	c.metrics.Histogram("llmcore.chat.duration",
		metrics.WithLabel("provider", c.provider),
		metrics.WithLabel("op", op),
	).Observe(time.Since(startTime).Seconds())
}
